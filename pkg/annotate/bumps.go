package annotate

import (
	"github.com/wasmcov/wasmcov/pkg/wat"
)

// The four index spaces touched by the instrumentation (core function,
// core instance, component function, type) renumber independently, so
// each gets its own pass over its own use sites. All passes address
// original coordinates and route edits through the tracker, which is what
// lets them run in any order relative to the insertion passes.

// bumpCoreFuncIdxs increments every component-level use of a core
// function index: the canon lift target and every realloc option. It
// returns the realloc targets, which seed the blacklist.
func (a *annotator) bumpCoreFuncIdxs() []wat.Token {
	uses, reallocTargets := a.comp.CoreFuncUses()
	for _, token := range uses {
		a.tracker.IncrementIdx(a.output, token, nil)
	}
	return reallocTargets
}

// bumpInstanceIdxs increments every instance-index use: alias
// core-export targets and instantiation arguments of kind instance. The
// counter instance lands ahead of every existing instance in the space.
func (a *annotator) bumpInstanceIdxs() {
	for _, token := range a.comp.InstanceUses() {
		a.tracker.IncrementIdx(a.output, token, nil)
	}
}

// bumpCompFuncIdxs increments every use of a component-level function
// index: canon lower arguments and instantiate items/exports of kind
// func.
func (a *annotator) bumpCompFuncIdxs() {
	for _, token := range a.comp.ComponentFuncUses() {
		a.tracker.IncrementIdx(a.output, token, nil)
	}
}

// bumpTypeIdxs increments every type reference at or above the bound
// computed from the leading fields; references below it point into the
// pre-import type space and stay put.
func (a *annotator) bumpTypeIdxs(typeIdxBound uint64) {
	for _, token := range a.comp.TypeUses() {
		a.tracker.IncrementIdx(a.output, token, &typeIdxBound)
	}
}
