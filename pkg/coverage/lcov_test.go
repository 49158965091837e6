package coverage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmcov/wasmcov/pkg/debug"
)

func lineEnd(v uint64) *uint64 { return &v }

// writeSource drops a real file on disk so the SF block is not omitted
func writeSource(t *testing.T, lines int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foo.rs")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x\n", lines)), 0o644))
	return path
}

func traceFixture(t *testing.T, path string) (*GCovFile, *debug.SourceDebugInfo) {
	data := &debug.DebugData{
		FileMap: []string{path},
		BlocksPerLine: map[int][]debug.LineBlocks{
			0: {
				{Line: 2, Count: 1},
				{Line: 3, Count: 1},
				{Line: 7, Count: 1},
			},
		},
	}
	set := NewCounterSet()
	require.NoError(t, set.Record(HitRecord{Idx: 0, FileIdx: 0, Line: 2, Column: 1}))
	require.NoError(t, set.Record(HitRecord{Idx: 0, FileIdx: 0, Line: 2, Column: 1}))
	require.NoError(t, set.Record(HitRecord{Idx: 1, FileIdx: 0, Line: 3, Column: 5}))

	sdi := &debug.SourceDebugInfo{
		PathIdx: 0,
		Functions: []debug.FunctionRecord{
			{StartLine: 2, EndLine: lineEnd(5), Name: "run", StartAddress: 0x10},
			{StartLine: 7, EndLine: lineEnd(9), Name: "cold", StartAddress: 0x40},
		},
	}
	return NewGCovFile(data, 0, set), sdi
}

func TestTraceFile_EmitsStandardRecordSequence(t *testing.T) {
	path := writeSource(t, 10)
	listing, sdi := traceFixture(t, path)

	trace := NewTraceFile("smoke", []*SourceFile{NewSourceFile(listing, sdi)})
	rendered := trace.Render()

	assert.True(t, strings.HasPrefix(rendered, "TN:smoke\n"))
	assert.Contains(t, rendered, "SF:"+path+"\n")
	assert.Contains(t, rendered, "FN:2,run\n")
	assert.Contains(t, rendered, "FN:7,cold\n")
	// both function start lines are instrumented, so both get FNDA
	assert.Contains(t, rendered, "FNDA:2,run\n")
	assert.Contains(t, rendered, "FNDA:0,cold\n")
	assert.Contains(t, rendered, "FNF:2\n")
	assert.Contains(t, rendered, "FNH:2\n")
	assert.Contains(t, rendered, "BRF:0\n")
	assert.Contains(t, rendered, "BRH:0\n")
	assert.Contains(t, rendered, "DA:2,2\n")
	assert.Contains(t, rendered, "DA:3,1\n")
	assert.Contains(t, rendered, "DA:7,0\n")
	assert.Contains(t, rendered, "LH:2\n")
	assert.Contains(t, rendered, "LF:3\n")
	assert.True(t, strings.HasSuffix(rendered, "end_of_record\n"))
}

func TestTraceFile_OmitsMissingFiles(t *testing.T) {
	listing, sdi := traceFixture(t, "/definitely/not/here/foo.rs")

	trace := NewTraceFile("", []*SourceFile{NewSourceFile(listing, sdi)})
	assert.Empty(t, trace.Render())
}

func TestTraceFile_NoTestNameOmitsTN(t *testing.T) {
	path := writeSource(t, 10)
	listing, sdi := traceFixture(t, path)

	trace := NewTraceFile("", []*SourceFile{NewSourceFile(listing, sdi)})
	rendered := trace.Render()
	assert.NotContains(t, rendered, "TN:")
	assert.True(t, strings.HasPrefix(rendered, "SF:"))
}

func TestSourceFile_WithoutDebugInfoEmitsNoLineData(t *testing.T) {
	path := writeSource(t, 5)
	listing, _ := traceFixture(t, path)

	sf := NewSourceFile(listing, nil)
	var out strings.Builder
	sf.render(&out)
	rendered := out.String()

	assert.Contains(t, rendered, "FNF:0\n")
	// no function records bound the scan, so no DA lines either
	assert.Contains(t, rendered, "LF:0\n")
}
