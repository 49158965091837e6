package annotate

import (
	"errors"
	"os"
	"regexp"

	"github.com/wasmcov/wasmcov/pkg/debug"
	"github.com/wasmcov/wasmcov/pkg/utils"
	"github.com/wasmcov/wasmcov/pkg/wat"
	"gopkg.in/yaml.v3"
)

var ErrProfile = errors.New("invalid printer profile")

// PrinterProfile captures the printer-dependent constants of the
// instrumentation pass. The defaults match the printer this tool is
// normally paired with; a different printer can be described in a YAML
// profile instead of patching the code.
type PrinterProfile struct {
	// HighPCAdjust is subtracted from DWARF's offset-form high pc: the
	// printed form includes the closing return instruction.
	HighPCAdjust uint64 `yaml:"high_pc_adjust"`
	// OffsetCommentPattern matches the binary-offset comments, with the
	// hex offset in the first capture group.
	OffsetCommentPattern string `yaml:"offset_comment_pattern"`

	offsetCommentRe *regexp.Regexp
}

// DefaultProfile returns the profile of the paired printer
func DefaultProfile() PrinterProfile {
	return PrinterProfile{
		HighPCAdjust:         debug.HighPCAdjustDefault,
		OffsetCommentPattern: wat.OffsetCommentPattern,
	}
}

// LoadProfile reads a printer profile from a YAML file. Fields omitted in
// the file keep their defaults.
func LoadProfile(path string) (PrinterProfile, error) {
	profile := DefaultProfile()

	contents, err := os.ReadFile(path)
	if err != nil {
		return profile, utils.MakeError(ErrProfile, "reading %s: %v", path, err)
	}
	if err := yaml.Unmarshal(contents, &profile); err != nil {
		return profile, utils.MakeError(ErrProfile, "parsing %s: %v", path, err)
	}
	if err := profile.compile(); err != nil {
		return profile, err
	}
	return profile, nil
}

func (p *PrinterProfile) compile() error {
	re, err := regexp.Compile(p.OffsetCommentPattern)
	if err != nil {
		return utils.MakeError(ErrProfile, "offset comment pattern: %v", err)
	}
	if re.NumSubexp() != 1 {
		return utils.MakeError(ErrProfile, "offset comment pattern must have exactly one capture group")
	}
	p.offsetCommentRe = re
	return nil
}

// commentPattern returns the profile's compiled comment pattern, nil until
// compile has run
func (p *PrinterProfile) commentPattern() *regexp.Regexp {
	return p.offsetCommentRe
}
