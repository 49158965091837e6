package annotate

// Component Instrumenter
//
// Given the textual form of a component and its binary form, the
// annotator produces a semantically equivalent component in which every
// source basic-block entry is preceded by a call to an imported host
// counter function, and a debug-data bundle mapping counters back to
// source positions.
//
// The pass pipeline runs in a fixed order; every pass addresses offsets
// of the *original* text and routes its edits through one OffsetTracker,
// so no pass ever depends on the byte shifts another pass produced:
//
//    1. component-level import of the counter function
//    2. core-level import in every inline module
//    3. core-function index bump (collects the realloc blacklist seed)
//    4. blacklist closure over intra-module calls
//    5. counter prelude insertion, one per debug line record
//    6. instance index bump
//    7. component-function index bump
//    8. type index bump (at or above the leading-type bound)
//    9. counter instance wired into every core instantiation
//   10. canon lower + counter instance emitted after the core modules
//
// Fatal errors abort the pass; the caller keeps the untouched input. The
// produced text stays well-formed even when individual records are
// dropped.

import (
	"github.com/wasmcov/wasmcov/pkg/debug"
	"github.com/wasmcov/wasmcov/pkg/diag"
	"github.com/wasmcov/wasmcov/pkg/utils"
	"github.com/wasmcov/wasmcov/pkg/wasmbin"
	"github.com/wasmcov/wasmcov/pkg/wat"
)

// Options configures one instrumentation pass
type Options struct {
	// Profile holds the printer-dependent constants; zero value means
	// DefaultProfile
	Profile PrinterProfile
	// Sink receives non-fatal diagnostics; nil means a collecting sink
	Sink *diag.Sink
}

// Result is the outcome of a successful instrumentation pass
type Result struct {
	// Text is the instrumented component text
	Text string
	// Data is the debug bundle handed to the report printers
	Data *debug.DebugData
	// Counters lists, per counter index, the line record it instruments
	Counters []debug.DebugLineRecord
}

type annotator struct {
	comp    *wat.Component
	tracker *OffsetTracker
	output  *string
	profile *PrinterProfile
	sink    *diag.Sink
}

// Annotate instruments the component text. binary must hold the encoded
// form of the same component: it is the only way to learn the
// code-section offsets that anchor DWARF addresses. The input text is
// never modified; on error the caller's view is unchanged.
func Annotate(text string, binary []byte, opts Options) (*Result, error) {
	sink := opts.Sink
	if sink == nil {
		sink = diag.Discard()
	}
	profile := opts.Profile
	if profile.OffsetCommentPattern == "" {
		profile = DefaultProfile()
	}
	if err := profile.compile(); err != nil {
		return nil, err
	}

	if binary == nil {
		return nil, utils.MakeError(wat.ErrShape,
			"no binary form supplied: instrumentation needs the encoded component to interpret DWARF addresses")
	}

	comp, err := wat.Scan(text)
	if err != nil {
		return nil, err
	}

	modules, err := wasmbin.ScanComponent(binary)
	if err != nil {
		return nil, err
	}
	if len(modules) != len(comp.Modules) {
		return nil, utils.MakeError(wat.ErrShape,
			"text has %d inline core modules but binary has %d", len(comp.Modules), len(modules))
	}

	codeOffsets := make([]int, len(modules))
	for i, m := range modules {
		codeOffsets[i] = m.CodeSectionOffset
	}
	table := debug.NewLineTable(codeOffsets)
	reader := debug.NewReader(table, sink, profile.HighPCAdjust)
	for i, m := range modules {
		if err := reader.ReadModule(i, m.CustomSections); err != nil {
			return nil, err
		}
	}
	reader.Finalize()

	output := text
	a := &annotator{
		comp:    comp,
		tracker: NewOffsetTracker(),
		output:  &output,
		profile: &profile,
		sink:    sink,
	}

	typeIdxBound, err := a.addComponentImport()
	if err != nil {
		return nil, err
	}
	a.addModuleImports()

	seeds := a.bumpCoreFuncIdxs()
	blacklist, err := a.expandBlacklist(seeds)
	if err != nil {
		return nil, err
	}
	counters := a.insertPreludes(blacklist, table)

	a.bumpInstanceIdxs()
	a.bumpCompFuncIdxs()
	a.bumpTypeIdxs(typeIdxBound)
	a.addInstantiationArgs()
	if err := a.addCanonLowerAndInstance(); err != nil {
		return nil, err
	}

	return &Result{
		Text:     output,
		Data:     table.IntoDebugData(),
		Counters: counters,
	}, nil
}
