package debug

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmcov/wasmcov/pkg/diag"
	"github.com/wasmcov/wasmcov/pkg/testwasm"
)

func readUnit(t *testing.T, table *LineTable, moduleIdx int, unit testwasm.Unit) *Reader {
	reader := NewReader(table, diag.Discard(), HighPCAdjustDefault)
	require.NoError(t, reader.ReadModule(moduleIdx, testwasm.BuildSections(unit)))
	return reader
}

func TestReader_EmitsOneRecordPerRow(t *testing.T) {
	table := NewLineTable([]int{0x40})
	readUnit(t, table, 0, testwasm.Unit{
		Name:    "app",
		CompDir: "/src/app",
		Files:   []string{"foo.rs"},
		Rows: []testwasm.LineRow{
			{Address: 0x05, Line: 7, Column: 5},
			{Address: 0x07, Line: 8, Column: 9},
			{Address: 0x0b, Line: 8, Column: 13},
		},
	})

	records := table.Records()
	require.Len(t, records, 3)
	assert.Equal(t, DebugLineRecord{Address: 0x05, PathIdx: 0, Line: 7, Column: 5, CodeModuleIdx: 0}, records[0])
	assert.Equal(t, DebugLineRecord{Address: 0x07, PathIdx: 0, Line: 8, Column: 9, CodeModuleIdx: 0}, records[1])
	assert.Equal(t, DebugLineRecord{Address: 0x0b, PathIdx: 0, Line: 8, Column: 13, CodeModuleIdx: 0}, records[2])

	require.Len(t, table.FileMap(), 1)
	assert.Equal(t, "/src/app/foo.rs", table.FileMap()[0])
}

func TestReader_SkipsModulesWithoutDebugInfo(t *testing.T) {
	table := NewLineTable([]int{0x40})
	reader := NewReader(table, diag.Discard(), HighPCAdjustDefault)

	require.NoError(t, reader.ReadModule(0, map[string][]byte{}))
	assert.Empty(t, table.Records())
}

func TestReader_DeduplicatesFilesAcrossModules(t *testing.T) {
	table := NewLineTable([]int{0x40, 0x90})
	unit := testwasm.Unit{
		Name:    "app",
		CompDir: "/src/app",
		Files:   []string{"foo.rs"},
		Rows:    []testwasm.LineRow{{Address: 0x02, Line: 3, Column: 1}},
	}
	readUnit(t, table, 0, unit)
	readUnit(t, table, 1, unit)

	require.Len(t, table.Records(), 2)
	assert.Equal(t, 0, table.Records()[0].PathIdx)
	assert.Equal(t, 0, table.Records()[1].PathIdx)
	assert.Len(t, table.FileMap(), 1)
}

func TestReader_DuplicateRecordIsFatal(t *testing.T) {
	table := NewLineTable([]int{0x40})
	unit := testwasm.Unit{
		Name:    "app",
		CompDir: "/src/app",
		Files:   []string{"foo.rs"},
		Rows:    []testwasm.LineRow{{Address: 0x02, Line: 3, Column: 1}},
	}
	readUnit(t, table, 0, unit)

	// the same module read twice replays identical rows
	reader := NewReader(table, diag.Discard(), HighPCAdjustDefault)
	err := reader.ReadModule(0, testwasm.BuildSections(unit))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestReader_FunctionRecordsResolveLines(t *testing.T) {
	table := NewLineTable([]int{0x40})
	reader := readUnit(t, table, 0, testwasm.Unit{
		Name:    "app",
		CompDir: "/src/app",
		Files:   []string{"foo.rs"},
		Rows: []testwasm.LineRow{
			{Address: 0x05, Line: 7, Column: 5},
			{Address: 0x09, Line: 9, Column: 1},
			{Address: 0x10, Line: 12, Column: 1},
		},
		Funcs: []testwasm.FuncDIE{
			// high pc offset form: 0x05..0x0e, minus the printed return
			{Name: "run", DeclFile: 1, LowPC: 0x05, HighPCOffset: 0x0b},
		},
	})
	reader.Finalize()

	info := table.SDIFor(0)
	require.NotNil(t, info)
	require.Len(t, info.Functions, 1)

	fn := info.Functions[0]
	assert.Equal(t, "run", fn.Name)
	assert.Equal(t, uint64(0x05), fn.StartAddress)
	assert.Equal(t, uint64(7), fn.StartLine)
	// high pc 0x05+0x0b-2 = 0x0e covers the row at 0x09 but not 0x10
	require.NotNil(t, fn.EndLine)
	assert.Equal(t, uint64(9), *fn.EndLine)
}

func TestReader_FunctionWithoutMappableStartIsDropped(t *testing.T) {
	table := NewLineTable([]int{0x40})
	sink := diag.Discard()
	reader := NewReader(table, sink, HighPCAdjustDefault)
	require.NoError(t, reader.ReadModule(0, testwasm.BuildSections(testwasm.Unit{
		Name:    "app",
		CompDir: "/src/app",
		Files:   []string{"foo.rs"},
		Rows:    []testwasm.LineRow{{Address: 0x02, Line: 3, Column: 1}},
		Funcs: []testwasm.FuncDIE{
			// starts past every line record
			{Name: "ghost", DeclFile: 1, LowPC: 0x80, HighPCOffset: 0x10},
		},
	})))
	reader.Finalize()

	assert.Nil(t, table.SDIFor(0))
	assert.NotEmpty(t, sink.Warnings())
}

func TestLineTable_BlocksPerLineCountsRecords(t *testing.T) {
	table := NewLineTable([]int{0})
	table.FileIdx("/src/app/foo.rs")
	for _, rec := range []DebugLineRecord{
		{Address: 1, PathIdx: 0, Line: 7, Column: 5},
		{Address: 2, PathIdx: 0, Line: 8, Column: 1},
		{Address: 3, PathIdx: 0, Line: 8, Column: 9},
	} {
		require.NoError(t, table.AddRecord(rec))
	}

	data := table.IntoDebugData()
	require.Contains(t, data.BlocksPerLine, 0)
	assert.ElementsMatch(t, []LineBlocks{{Line: 7, Count: 1}, {Line: 8, Count: 2}}, data.BlocksPerLine[0])
}

func TestDebugData_JSONFieldNamesAreStable(t *testing.T) {
	data := &DebugData{
		FileMap:       []string{"/src/app/foo.rs"},
		BlocksPerLine: map[int][]LineBlocks{0: {{Line: 7, Count: 1}}},
		SDI:           []SourceDebugInfo{{PathIdx: 0, Functions: []FunctionRecord{}, Branches: []BranchRecord{}}},
	}

	raw, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "file_map")
	assert.Contains(t, decoded, "blocks_per_line")
	assert.Contains(t, decoded, "sdi_vec")
}

func TestCounterTypeFromInt_ValidatesRange(t *testing.T) {
	for n, want := range map[int32]CounterType{0: CounterBlock, 1: CounterIf, 2: CounterElse, 3: CounterLoop} {
		got, ok := CounterTypeFromInt(n)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := CounterTypeFromInt(4)
	assert.False(t, ok)
	_, ok = CounterTypeFromInt(-1)
	assert.False(t, ok)
}
