package annotate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmcov/wasmcov/pkg/debug"
	"github.com/wasmcov/wasmcov/pkg/diag"
	"github.com/wasmcov/wasmcov/pkg/testwasm"
	"github.com/wasmcov/wasmcov/pkg/wasmbin"
	"github.com/wasmcov/wasmcov/pkg/wat"
)

// buildBinary encodes a component whose modules carry the given synthetic
// debug units and a placeholder code section, and returns the binary with
// the scanned code-section offsets.
func buildBinary(t *testing.T, units []testwasm.Unit) ([]byte, []int) {
	var modules [][]byte
	for _, unit := range units {
		sections := testwasm.BuildSections(unit)
		customs := []wasmbin.CustomSection{
			{Name: ".debug_abbrev", Data: sections[".debug_abbrev"]},
			{Name: ".debug_info", Data: sections[".debug_info"]},
			{Name: ".debug_line", Data: sections[".debug_line"]},
		}
		modules = append(modules, wasmbin.EncodeModule(customs, []byte{0x01, 0x00}))
	}
	binary := wasmbin.EncodeComponent(modules...)

	infos, err := wasmbin.ScanComponent(binary)
	require.NoError(t, err)
	offsets := make([]int, len(infos))
	for i, info := range infos {
		require.GreaterOrEqual(t, info.CodeSectionOffset, 0)
		offsets[i] = info.CodeSectionOffset
	}
	return binary, offsets
}

// render substitutes {{Bn}} placeholders with the hex form of
// codeOff+addr, the way the printer stamps instruction offsets.
func render(template string, codeOff int, addrs map[string]uint64) string {
	out := template
	for name, addr := range addrs {
		out = strings.ReplaceAll(out, "{{"+name+"}}", fmt.Sprintf("%x", uint64(codeOff)+addr))
	}
	return out
}

const minimalTemplate = `(component
  (type (;0;) (func))
  (import "host" (func (;0;) (type 0)))
  (core module (;0;)
    (type (;0;) (func))
    (import "env" "log" (func (;0;) (type 0)))
    (func (;1;) (type 0)
      (;@{{B0}};) block
      (;@{{B1}};) nop
      (;@{{B2}};) end
    )
    (export "run" (func 1))
  )
  (core instance (;0;) (instantiate 0))
  (alias core export 0 "run" (core func (;0;)))
  (type (;1;) (func))
  (func (;1;) (type 1) (canon lift (core func 0)))
  (export (;1;) "run" (func 1))
)
`

func annotateMinimal(t *testing.T, rows []testwasm.LineRow, funcs []testwasm.FuncDIE) (*Result, *diag.Sink) {
	unit := testwasm.Unit{
		Name:    "app",
		CompDir: "/src/app",
		Files:   []string{"foo.rs"},
		Rows:    rows,
		Funcs:   funcs,
	}
	binary, offsets := buildBinary(t, []testwasm.Unit{unit})

	text := render(minimalTemplate, offsets[0], map[string]uint64{
		"B0": 0x05,
		"B1": 0x07,
		"B2": 0x09,
	})

	sink := diag.Discard()
	result, err := Annotate(text, binary, Options{Sink: sink})
	require.NoError(t, err)
	return result, sink
}

func TestAnnotate_MinimalComponentGetsOnePreludePerRecord(t *testing.T) {
	result, _ := annotateMinimal(t, []testwasm.LineRow{
		{Address: 0x05, Line: 7, Column: 5},
		{Address: 0x07, Line: 8, Column: 3},
	}, nil)

	// counter 0 carries the first record's source position
	assert.Contains(t, result.Text,
		"i32.const 0 i32.const 0 i32.const 0 i32.const 7 i32.const 5 call $inc-counter\n")
	assert.Contains(t, result.Text,
		"i32.const 1 i32.const 0 i32.const 0 i32.const 8 i32.const 3 call $inc-counter\n")
	assert.Equal(t, 2, strings.Count(result.Text, "call $inc-counter"),
		"one prelude per record, nothing else")

	require.Len(t, result.Counters, 2)
	assert.Equal(t, uint64(7), result.Counters[0].Line)
	assert.Equal(t, uint64(8), result.Counters[1].Line)
}

func TestAnnotate_WiresImportsAndCounterInstance(t *testing.T) {
	result, _ := annotateMinimal(t, []testwasm.LineRow{{Address: 0x05, Line: 7, Column: 5}}, nil)

	assert.Contains(t, result.Text,
		`(import "inc-counter" (func $inc-counter (param "idx" s32) (param "type" s32) (param "file-idx" s32) (param "line-num" s32) (param "column" s32)))`)
	assert.Contains(t, result.Text,
		`(import "inc-counter-module" "inc-counter" (func $inc-counter (param i32) (param i32) (param i32) (param i32) (param i32)))`)
	assert.Contains(t, result.Text,
		"(core func $inc-counter (canon lower (func $inc-counter)))")
	assert.Contains(t, result.Text,
		`(core instance $inc-counter-module (export "inc-counter" (func $inc-counter)))`)
	assert.Contains(t, result.Text,
		`(with "inc-counter-module" (instance $inc-counter-module))`)

	// the component import precedes the first core module
	assert.Less(t,
		strings.Index(result.Text, `(import "inc-counter"`),
		strings.Index(result.Text, "(core module"))
}

func TestAnnotate_BumpsEveryIndexSpace(t *testing.T) {
	result, _ := annotateMinimal(t, []testwasm.LineRow{{Address: 0x05, Line: 7, Column: 5}}, nil)

	// core function space: the lift target shifted for the new lowering
	assert.Contains(t, result.Text, "(canon lift (core func 1))")
	// instance space: the alias points past the prepended counter instance
	assert.Contains(t, result.Text, "(alias core export 1 \"run\"")
	// type space: references at the bound shifted for the import's type
	assert.Contains(t, result.Text, "(func (;1;) (type 2)")
	// references below the bound stay put
	assert.Contains(t, result.Text, "(import \"host\" (func (;0;) (type 0)))")
}

func TestAnnotate_OutputRescansCleanly(t *testing.T) {
	result, _ := annotateMinimal(t, []testwasm.LineRow{
		{Address: 0x05, Line: 7, Column: 5},
		{Address: 0x07, Line: 8, Column: 3},
	}, nil)

	comp, err := wat.Scan(result.Text)
	require.NoError(t, err)
	require.Len(t, comp.Modules, 1)
	// the module gained the counter import
	assert.Equal(t, 2, comp.Modules[0].NumFuncImports)
}

func TestAnnotate_UnmatchedRecordIsSkippedWithoutMisalignment(t *testing.T) {
	result, _ := annotateMinimal(t, []testwasm.LineRow{
		{Address: 0x05, Line: 7, Column: 5},
		{Address: 0x30, Line: 20, Column: 1}, // matches no offset comment
		{Address: 0x09, Line: 9, Column: 1},
	}, nil)

	require.Len(t, result.Counters, 2)
	assert.Equal(t, uint64(7), result.Counters[0].Line)
	assert.Equal(t, uint64(9), result.Counters[1].Line)
	// the skipped record still counts as a block of its line
	assert.Contains(t, result.Data.BlocksPerLine[0], debug.LineBlocks{Line: 20, Count: 1})
}

func TestAnnotate_DuplicateAddressGetsOnePrelude(t *testing.T) {
	result, _ := annotateMinimal(t, []testwasm.LineRow{
		{Address: 0x05, Line: 7, Column: 5},
		{Address: 0x05, Line: 7, Column: 9}, // same address, DWARF redundancy
	}, nil)

	require.Len(t, result.Counters, 1)
	assert.Equal(t, 1, strings.Count(result.Text, "call $inc-counter"))
}

func TestAnnotate_FunctionStartOverrideAnchorsFirstInstruction(t *testing.T) {
	// the record at the function's start address has no matching offset
	// comment (the printer elided the prologue address), but the body
	// holds later comments, so the prelude anchors to the first
	// instruction
	result, _ := annotateMinimal(t, []testwasm.LineRow{
		{Address: 0x03, Line: 6, Column: 1},
	}, []testwasm.FuncDIE{
		{Name: "run", DeclFile: 1, LowPC: 0x03, HighPCOffset: 0x08},
	})

	require.Len(t, result.Counters, 1)
	idx := strings.Index(result.Text, "i32.const 0 i32.const 0 i32.const 0 i32.const 6 i32.const 1 call $inc-counter\nblock")
	assert.GreaterOrEqual(t, idx, 0, "prelude must sit immediately ahead of the first mnemonic")
}

func TestAnnotate_RequiresBinary(t *testing.T) {
	_, err := Annotate("(component)", nil, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, wat.ErrShape)
}

func TestAnnotate_ModuleCountMismatchIsFatal(t *testing.T) {
	unit := testwasm.Unit{Name: "app", CompDir: "/src", Files: []string{"a.rs"}}
	binary, _ := buildBinary(t, []testwasm.Unit{unit, unit})

	text := render(minimalTemplate, 0, map[string]uint64{"B0": 1, "B1": 2, "B2": 3})
	_, err := Annotate(text, binary, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, wat.ErrShape)
}

const reallocTemplate = `(component
  (type (;0;) (func))
  (import "host" (func (;0;) (type 0)))
  (core module (;0;)
    (type (;0;) (func))
    (import "env" "log" (func (;0;) (type 0)))
    (func (;1;) (type 0)
      (;@{{R0}};) block
      (;@{{R1}};) end
    )
    (func (;2;) (type 0)
      (;@{{R2}};) call 3
      (;@{{R3}};) call 4
    )
    (func (;3;) (type 0)
      (;@{{R4}};) block
      (;@{{R5}};) end
    )
    (func (;4;) (type 0)
      (;@{{R6}};) nop
    )
    (export "run" (func 1))
    (export "cabi_realloc" (func 2))
  )
  (core instance (;0;) (instantiate 0))
  (alias core export 0 "run" (core func (;0;)))
  (alias core export 0 "cabi_realloc" (core func (;1;)))
  (type (;1;) (func))
  (func (;1;) (type 1) (canon lift (core func 0) (realloc 1)))
  (export (;1;) "run" (func 1))
)
`

func TestAnnotate_BlacklistSuppressesReallocChain(t *testing.T) {
	unit := testwasm.Unit{
		Name:    "app",
		CompDir: "/src/app",
		Files:   []string{"foo.rs"},
		Rows: []testwasm.LineRow{
			{Address: 0x05, Line: 7, Column: 5},  // run's block
			{Address: 0x10, Line: 20, Column: 1}, // inside cabi_realloc
			{Address: 0x14, Line: 25, Column: 1}, // inside its first callee
			{Address: 0x18, Line: 30, Column: 1}, // inside its second callee
		},
	}
	binary, offsets := buildBinary(t, []testwasm.Unit{unit})

	text := render(reallocTemplate, offsets[0], map[string]uint64{
		"R0": 0x05, "R1": 0x07,
		"R2": 0x10, "R3": 0x12,
		"R4": 0x14, "R5": 0x16,
		"R6": 0x18,
	})

	result, err := Annotate(text, binary, Options{Sink: diag.Discard()})
	require.NoError(t, err)

	// only run's record is instrumented; the whole realloc chain is
	// excluded even though its records match offset comments
	require.Len(t, result.Counters, 1)
	assert.Equal(t, uint64(7), result.Counters[0].Line)
	assert.Equal(t, 1, strings.Count(result.Text, "call $inc-counter"))

	// the realloc option itself was bumped for the new lowering
	assert.Contains(t, result.Text, "(realloc 2)")
}

const twoModuleTemplate = `(component
  (type (;0;) (func))
  (import "host" (func (;0;) (type 0)))
  (core module (;0;)
    (type (;0;) (func))
    (import "env" "log" (func (;0;) (type 0)))
    (func (;1;) (type 0)
      (;@{{M0}};) block
      (;@{{M1}};) end
    )
    (export "run" (func 1))
  )
  (core module (;1;)
    (type (;0;) (func))
    (import "env" "log" (func (;0;) (type 0)))
    (func (;1;) (type 0)
      (;@{{N0}};) block
      (;@{{N1}};) end
    )
    (export "go" (func 1))
  )
  (core instance (;0;) (instantiate 0))
  (core instance (;1;) (instantiate 1))
  (alias core export 0 "run" (core func (;0;)))
  (type (;1;) (func))
  (func (;1;) (type 1) (canon lift (core func 0)))
  (export (;1;) "run" (func 1))
)
`

func TestAnnotate_TwoModulesAssignCountersInSourceOrder(t *testing.T) {
	unitA := testwasm.Unit{
		Name: "a", CompDir: "/src/app", Files: []string{"a.rs"},
		Rows: []testwasm.LineRow{{Address: 0x05, Line: 3, Column: 1}},
	}
	unitB := testwasm.Unit{
		Name: "b", CompDir: "/src/app", Files: []string{"b.rs"},
		Rows: []testwasm.LineRow{{Address: 0x05, Line: 4, Column: 2}},
	}
	binary, offsets := buildBinary(t, []testwasm.Unit{unitA, unitB})

	text := render(twoModuleTemplate, offsets[0], map[string]uint64{"M0": 0x05, "M1": 0x07})
	text = render(text, offsets[1], map[string]uint64{"N0": 0x05, "N1": 0x07})

	result, err := Annotate(text, binary, Options{Sink: diag.Discard()})
	require.NoError(t, err)

	require.Len(t, result.Counters, 2)
	assert.Equal(t, 0, result.Counters[0].CodeModuleIdx)
	assert.Equal(t, 1, result.Counters[1].CodeModuleIdx)
	// the two records come from different files
	assert.NotEqual(t, result.Counters[0].PathIdx, result.Counters[1].PathIdx)
	assert.Equal(t, []string{"/src/app/a.rs", "/src/app/b.rs"}, result.Data.FileMap)

	// both instantiations got the counter instance wired in; module
	// indices are a separate space and stay put
	assert.Equal(t, 2, strings.Count(result.Text, `(with "inc-counter-module"`))
	assert.Contains(t, result.Text, "(instantiate 0(with")
	assert.Contains(t, result.Text, "(instantiate 1(with")
}
