package annotate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmcov/wasmcov/pkg/debug"
)

func TestDefaultProfile_MatchesPairedPrinter(t *testing.T) {
	profile := DefaultProfile()
	assert.Equal(t, uint64(debug.HighPCAdjustDefault), profile.HighPCAdjust)
	require.NoError(t, profile.compile())
}

func TestLoadProfile_OverridesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("high_pc_adjust: 0\n"), 0o644))

	profile, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), profile.HighPCAdjust)
	// untouched fields keep their defaults
	assert.NotEmpty(t, profile.OffsetCommentPattern)
}

func TestLoadProfile_RejectsBadPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`offset_comment_pattern: "(no capture"`), 0o644))

	_, err := LoadProfile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfile)
}

func TestLoadProfile_RejectsMissingFile(t *testing.T) {
	_, err := LoadProfile("/nope/printer.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfile)
}
