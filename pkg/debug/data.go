package debug

// Debug Data Model
//
// This file defines the structures the instrumenter extracts from a
// component's DWARF sections and hands to the report printers:
//
//   - DebugLineRecord: one source-position-to-binary-address mapping,
//     the unit the instrumenter turns into a counter prelude
//   - SourceDebugInfo: per-source-file aggregation of function records,
//     used to build the LCov FN/FNDA blocks
//   - DebugData: the serialized bundle (file map, blocks-per-line table,
//     SDI vector) that crosses the tool boundary as JSON
//
// Addresses in a DebugLineRecord are offsets within the code section of
// the owning inline core module, not within the component binary. The
// code-section offsets recovered from the binary translate them to the
// absolute addresses that the printer's offset comments use.
//
// Line and column numbers are 1-based everywhere; a zero column means the
// left edge of the line, as in DWARF.

import (
	"errors"

	"github.com/wasmcov/wasmcov/pkg/utils"
)

var ErrDuplicateRecord = errors.New("duplicate debug line record")

// DebugLineRecord maps an address within a module's code section to a
// source position. Two records are equal when all five fields are equal.
type DebugLineRecord struct {
	// Address is the offset within the code section of the owning module
	Address uint64 `json:"address"`
	// PathIdx indexes the file map
	PathIdx int `json:"path_idx"`
	// Line is the 1-based source line
	Line uint64 `json:"line"`
	// Column is the source column, 0 for the left edge
	Column uint64 `json:"column"`
	// CodeModuleIdx is the index of the owning inline core module
	CodeModuleIdx int `json:"code_module_idx"`
}

// FunctionRecord is one function definition of a source file
type FunctionRecord struct {
	StartLine    uint64  `json:"start_line"`
	EndLine      *uint64 `json:"end_line"`
	Name         string  `json:"name"`
	StartAddress uint64  `json:"start_address"`
}

// BranchRecord is reserved for branch coverage; the instrumenter never
// emits any, but the field layout is part of the output schema.
type BranchRecord struct {
	Line     uint64 `json:"line"`
	BlockIdx uint64 `json:"block_idx"`
}

// SourceDebugInfo groups the function definitions of one source file
type SourceDebugInfo struct {
	PathIdx   int              `json:"path_idx"`
	Functions []FunctionRecord `json:"functions"`
	Branches  []BranchRecord   `json:"branches"`
}

// LineBlocks records how many basic blocks a source line holds
type LineBlocks struct {
	Line  uint64 `json:"line"`
	Count uint64 `json:"count"`
}

// DebugData is the bundle handed to the report printers. Field names are
// part of the tool interface and must not change.
type DebugData struct {
	FileMap       []string             `json:"file_map"`
	BlocksPerLine map[int][]LineBlocks `json:"blocks_per_line"`
	SDI           []SourceDebugInfo    `json:"sdi_vec"`
}

// LineTable accumulates the debug information of one component: the line
// records of every inline core module, the deduplicated file map, and the
// per-file function records.
type LineTable struct {
	codeOffsets []int
	records     []DebugLineRecord
	fileMap     []string
	sdi         map[int]*SourceDebugInfo
}

// NewLineTable creates a line table over the code-section offsets of the
// component's inline core modules, in source order.
func NewLineTable(codeOffsets []int) *LineTable {
	return &LineTable{
		codeOffsets: codeOffsets,
		sdi:         map[int]*SourceDebugInfo{},
	}
}

// CodeOffset returns the absolute code-section offset of a module
func (t *LineTable) CodeOffset(moduleIdx int) int {
	if moduleIdx < 0 || moduleIdx >= len(t.codeOffsets) {
		return -1
	}
	return t.codeOffsets[moduleIdx]
}

// Records returns all line records in insertion order
func (t *LineTable) Records() []DebugLineRecord {
	return t.records
}

// FileMap returns the deduplicated source file paths
func (t *LineTable) FileMap() []string {
	return t.fileMap
}

// FileIdx interns a path into the file map, deduplicating by exact
// equality, and returns its index.
func (t *LineTable) FileIdx(path string) int {
	for i, p := range t.fileMap {
		if p == path {
			return i
		}
	}
	t.fileMap = append(t.fileMap, path)
	return len(t.fileMap) - 1
}

// AddRecord appends a line record. A record equal to an existing one on
// all five fields indicates a broken reader invariant and is a hard
// error.
func (t *LineTable) AddRecord(rec DebugLineRecord) error {
	for _, existing := range t.records {
		if existing == rec {
			return utils.MakeError(ErrDuplicateRecord, "module %d address %#x %s:%d:%d",
				rec.CodeModuleIdx, rec.Address, t.fileMap[rec.PathIdx], rec.Line, rec.Column)
		}
	}
	t.records = append(t.records, rec)
	return nil
}

// AddFunction appends a function record to the SDI of its file
func (t *LineTable) AddFunction(pathIdx int, fn FunctionRecord) {
	info, ok := t.sdi[pathIdx]
	if !ok {
		info = &SourceDebugInfo{PathIdx: pathIdx, Branches: []BranchRecord{}}
		t.sdi[pathIdx] = info
	}
	info.Functions = append(info.Functions, fn)
}

// SDIFor returns the SDI of a file, or nil when the file has no functions
func (t *LineTable) SDIFor(pathIdx int) *SourceDebugInfo {
	return t.sdi[pathIdx]
}

// IntoDebugData consumes the table and builds the output bundle
func (t *LineTable) IntoDebugData() *DebugData {
	blocks := map[int][]LineBlocks{}
	for _, rec := range t.records {
		perFile := blocks[rec.PathIdx]
		found := false
		for i := range perFile {
			if perFile[i].Line == rec.Line {
				perFile[i].Count++
				found = true
				break
			}
		}
		if !found {
			perFile = append(perFile, LineBlocks{Line: rec.Line, Count: 1})
		}
		blocks[rec.PathIdx] = perFile
	}

	sdi := make([]SourceDebugInfo, 0, len(t.sdi))
	for pathIdx := 0; pathIdx < len(t.fileMap); pathIdx++ {
		if info, ok := t.sdi[pathIdx]; ok {
			sdi = append(sdi, *info)
		}
	}

	return &DebugData{
		FileMap:       t.fileMap,
		BlocksPerLine: blocks,
		SDI:           sdi,
	}
}
