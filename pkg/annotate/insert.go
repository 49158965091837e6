package annotate

import (
	"fmt"

	"github.com/wasmcov/wasmcov/pkg/debug"
	"github.com/wasmcov/wasmcov/pkg/wat"
)

// insertPreludes converts each debug line record into one counter prelude
// inserted at the textual position of the instruction whose binary offset
// the record names. Iteration is module source order, then function
// order, then record order, so counter indices are assigned
// deterministically.
//
// Records whose address matches no offset comment in the owning function
// are skipped; a record whose address was already instrumented (DWARF
// redundancy collapses several rows onto one address) is skipped too, so
// later counters never misalign.
func (a *annotator) insertPreludes(blacklist map[int]bool, table *debug.LineTable) []debug.DebugLineRecord {
	var inserted []debug.DebugLineRecord
	instrumented := map[uint64]bool{} // absolute addresses already holding a prelude

	records := table.Records()
	for moduleIdx, module := range a.comp.Modules {
		codeOff := table.CodeOffset(moduleIdx)
		if codeOff < 0 {
			a.sink.Warnf("module has no code section, skipping instrumentation", "module", moduleIdx)
			continue
		}

		for _, fn := range module.Funcs {
			if blacklist[fn.Span] {
				continue
			}
			comments := a.comp.OffsetComments(a.profile.commentPattern(), fn.Span, fn.Node.Close)
			if len(comments) == 0 {
				continue
			}

			for _, rec := range records {
				if rec.CodeModuleIdx != moduleIdx {
					continue
				}
				trueAddr := uint64(codeOff) + rec.Address
				if instrumented[trueAddr] {
					continue
				}

				insertAt, ok := a.insertionPoint(fn, comments, table, rec, trueAddr, uint64(codeOff))
				if !ok {
					continue
				}

				msg := fmt.Sprintf("i32.const %d i32.const %d i32.const %d i32.const %d i32.const %d call $%s\n",
					len(inserted), debug.CounterBlock, rec.PathIdx, rec.Line, rec.Column, incFuncName)
				a.tracker.AddToString(a.output, insertAt, msg)

				instrumented[trueAddr] = true
				inserted = append(inserted, rec)
			}
		}
	}
	return inserted
}

// insertionPoint picks the textual offset for a record's prelude within a
// function body.
//
// When the record's address is the start address of a function definition
// and the body holds a comment at or past that address, the prelude is
// anchored to the function's very first instruction: DWARF prologue
// addresses are elided by the printer, so the matching comment does not
// exist, but the first real instruction is a stable, visible location.
//
// Otherwise the prelude goes just past the comment whose binary offset
// equals the record's absolute address, right ahead of the instruction it
// annotates. No match means the record is unplaceable in this function.
func (a *annotator) insertionPoint(fn *wat.FuncBody, comments []wat.OffsetComment, table *debug.LineTable, rec debug.DebugLineRecord, trueAddr, codeOff uint64) (int, bool) {
	if start, ok := a.functionStartAddress(table, rec); ok && fn.FirstInstrOff >= 0 {
		for _, comment := range comments {
			if comment.BinOff >= codeOff+start {
				return fn.FirstInstrOff, true
			}
		}
	}

	for _, comment := range comments {
		if comment.BinOff == trueAddr {
			return comment.After, true
		}
	}

	a.sink.Debugf("no offset comment matches line record",
		"module", rec.CodeModuleIdx, "address", rec.Address, "line", rec.Line)
	return 0, false
}

// functionStartAddress reports whether the record's address is the start
// address of a function definition in the SDI of the record's file.
func (a *annotator) functionStartAddress(table *debug.LineTable, rec debug.DebugLineRecord) (uint64, bool) {
	info := table.SDIFor(rec.PathIdx)
	if info == nil {
		return 0, false
	}
	for _, fn := range info.Functions {
		if fn.StartAddress == rec.Address {
			return fn.StartAddress, true
		}
	}
	return 0, false
}
