package debug

// DWARF Line & Function Reader
//
// Components compiled with debug info carry the DWARF sections of each
// core module as custom sections (.debug_info, .debug_line, .debug_abbrev,
// .debug_str, ...). This reader parses them with Go's debug/dwarf package,
// configured for little-endian as the wasm toolchains emit them, and
// fills a LineTable with:
//
//   1. One DebugLineRecord per line-program row (end-of-sequence rows are
//      skipped): the row address is an offset within the owning module's
//      code section.
//   2. One FunctionRecord per DW_TAG_subprogram carrying low/high pc, a
//      declaration file, and a name. The printed form's high pc covers
//      the closing return instruction, so a printer-dependent adjustment
//      (2 bytes for the current printer) is subtracted.
//
// Rows name files by (directory index, file name); paths are
// canonicalized by joining the compilation directory, the directory
// entry, and the filename. Rows whose file cannot be resolved are
// dropped with a warning.

import (
	"debug/dwarf"
	"errors"
	"io"
	"path"

	"github.com/wasmcov/wasmcov/pkg/diag"
	"github.com/wasmcov/wasmcov/pkg/utils"
)

var ErrDWARF = errors.New("malformed DWARF custom section")

// HighPCAdjustDefault is the observed difference between DWARF's high pc
// and the last printed instruction of a function: the printed form
// includes the closing return.
const HighPCAdjustDefault = 2

// Reader extracts line and function records from the DWARF custom
// sections of a component's inline core modules.
type Reader struct {
	table        *LineTable
	sink         *diag.Sink
	highPCAdjust uint64

	// raw subprograms, resolved against the line records once the whole
	// component has been read
	pending []rawFunc
}

type rawFunc struct {
	lowPC     uint64
	highPC    uint64
	name      string
	declFile  string // resolved path, "" when unresolved
	moduleIdx int
}

// NewReader creates a reader that fills the given table. highPCAdjust is
// the printer profile's high-pc correction, normally HighPCAdjustDefault.
func NewReader(table *LineTable, sink *diag.Sink, highPCAdjust uint64) *Reader {
	return &Reader{
		table:        table,
		sink:         sink,
		highPCAdjust: highPCAdjust,
	}
}

// ReadModule parses the DWARF sections of one inline core module.
// Modules without debug info are skipped silently.
func (r *Reader) ReadModule(moduleIdx int, sections map[string][]byte) error {
	if len(sections[".debug_info"]) == 0 {
		r.sink.Debugf("module has no debug info", "module", moduleIdx)
		return nil
	}

	data, err := dwarf.New(
		sections[".debug_abbrev"],
		nil, // aranges
		nil, // frame
		sections[".debug_info"],
		sections[".debug_line"],
		nil, // pubnames
		sections[".debug_ranges"],
		sections[".debug_str"],
	)
	if err != nil {
		return utils.MakeError(ErrDWARF, "module %d: %v", moduleIdx, err)
	}
	for _, name := range []string{".debug_line_str", ".debug_str_offsets", ".debug_addr", ".debug_rnglists"} {
		if sec, ok := sections[name]; ok {
			if err := data.AddSection(name, sec); err != nil {
				return utils.MakeError(ErrDWARF, "module %d section %s: %v", moduleIdx, name, err)
			}
		}
	}

	return r.readUnits(data, moduleIdx)
}

func (r *Reader) readUnits(data *dwarf.Data, moduleIdx int) error {
	reader := data.Reader()

	var cuFiles []*dwarf.LineFile
	var cuDir string

	for {
		entry, err := reader.Next()
		if err != nil {
			return utils.MakeError(ErrDWARF, "module %d: %v", moduleIdx, err)
		}
		if entry == nil {
			break
		}

		switch entry.Tag {
		case dwarf.TagCompileUnit:
			cuDir, _ = entry.Val(dwarf.AttrCompDir).(string)
			cuFiles = nil

			lineReader, err := data.LineReader(entry)
			if err != nil {
				return utils.MakeError(ErrDWARF, "module %d line program: %v", moduleIdx, err)
			}
			if lineReader == nil {
				continue
			}
			cuFiles = lineReader.Files()

			if err := r.readRows(lineReader, cuDir, moduleIdx); err != nil {
				return err
			}

		case dwarf.TagSubprogram:
			r.collectSubprogram(entry, cuFiles, cuDir, moduleIdx)
		}
	}
	return nil
}

func (r *Reader) readRows(lineReader *dwarf.LineReader, cuDir string, moduleIdx int) error {
	var entry dwarf.LineEntry
	for {
		err := lineReader.Next(&entry)
		if err == io.EOF {
			break
		}
		if err != nil {
			return utils.MakeError(ErrDWARF, "module %d line row: %v", moduleIdx, err)
		}
		if entry.EndSequence {
			continue
		}

		if entry.File == nil || entry.File.Name == "" {
			r.sink.Warnf("dropping line record with unresolvable file",
				"module", moduleIdx, "address", entry.Address)
			continue
		}
		filePath := resolvePath(cuDir, entry.File.Name)

		rec := DebugLineRecord{
			Address:       entry.Address,
			PathIdx:       r.table.FileIdx(filePath),
			Line:          uint64(entry.Line),
			Column:        uint64(entry.Column),
			CodeModuleIdx: moduleIdx,
		}
		if err := r.table.AddRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) collectSubprogram(entry *dwarf.Entry, cuFiles []*dwarf.LineFile, cuDir string, moduleIdx int) {
	lowPC, ok := entry.Val(dwarf.AttrLowpc).(uint64)
	if !ok {
		return
	}
	name, _ := entry.Val(dwarf.AttrName).(string)
	if name == "" {
		return
	}

	var highPC uint64
	switch v := entry.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		highPC = v
	case int64:
		// offset form: high pc is relative to low pc
		highPC = lowPC + uint64(v)
	default:
		return
	}
	if highPC >= r.highPCAdjust {
		highPC -= r.highPCAdjust
	}

	fn := rawFunc{
		lowPC:     lowPC,
		highPC:    highPC,
		name:      name,
		moduleIdx: moduleIdx,
	}

	if declFile, ok := entry.Val(dwarf.AttrDeclFile).(int64); ok {
		if declFile > 0 && declFile < int64(len(cuFiles)) && cuFiles[declFile] != nil {
			fn.declFile = resolvePath(cuDir, cuFiles[declFile].Name)
		}
	}

	r.pending = append(r.pending, fn)
}

// Finalize resolves the collected subprograms against the line records:
// the record's line is the line of the lowest-address record at or past
// low pc, its end line the highest line of any record at or before high
// pc. Subprograms whose start line cannot be mapped are dropped with a
// warning.
func (r *Reader) Finalize() {
	for _, fn := range r.pending {
		start, ok := r.lowestRecordFrom(fn.moduleIdx, fn.lowPC)
		if !ok {
			r.sink.Warnf("dropping function with unmappable start line",
				"module", fn.moduleIdx, "function", fn.name)
			continue
		}

		pathIdx := start.PathIdx
		if fn.declFile != "" {
			pathIdx = r.table.FileIdx(fn.declFile)
		}

		record := FunctionRecord{
			StartLine:    start.Line,
			Name:         fn.name,
			StartAddress: fn.lowPC,
		}
		if endLine, ok := r.highestLineUpTo(fn.moduleIdx, fn.highPC); ok {
			record.EndLine = &endLine
		}
		r.table.AddFunction(pathIdx, record)
	}
	r.pending = nil
}

func (r *Reader) lowestRecordFrom(moduleIdx int, addr uint64) (DebugLineRecord, bool) {
	var best DebugLineRecord
	found := false
	for _, rec := range r.table.Records() {
		if rec.CodeModuleIdx != moduleIdx || rec.Address < addr {
			continue
		}
		if !found || rec.Address < best.Address {
			best = rec
			found = true
		}
	}
	return best, found
}

func (r *Reader) highestLineUpTo(moduleIdx int, addr uint64) (uint64, bool) {
	var best uint64
	found := false
	for _, rec := range r.table.Records() {
		if rec.CodeModuleIdx != moduleIdx || rec.Address > addr {
			continue
		}
		if rec.Line > best {
			best = rec.Line
			found = true
		}
	}
	return best, found
}

// resolvePath canonicalizes a DWARF file name against the compilation
// directory. Wasm toolchains emit slash-separated paths regardless of the
// host, so the join is done with path, not filepath.
func resolvePath(cuDir, name string) string {
	if path.IsAbs(name) {
		return path.Clean(name)
	}
	if cuDir == "" {
		return path.Clean(name)
	}
	return path.Join(cuDir, name)
}
