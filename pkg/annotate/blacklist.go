package annotate

import (
	"errors"

	"github.com/wasmcov/wasmcov/pkg/utils"
	"github.com/wasmcov/wasmcov/pkg/wat"
)

var ErrBlacklist = errors.New("blacklist resolution error")

// The component model requires canonical-ABI helpers (realloc and
// everything it calls) to stay free of outbound instance calls, so the
// counter prelude must never be inserted into them. The blacklist is the
// closure of the realloc targets under intra-module calls, keyed by the
// function's textual span: spans are the only identifier stable across
// the index rewrites.

type blacklistItem struct {
	moduleIdx int
	fn        *wat.FuncBody
}

// expandBlacklist resolves the realloc seed indices to functions and
// closes the set over intra-module calls. Calls that leave the module
// (imports or unresolvable indices) terminate the frontier.
func (a *annotator) expandBlacklist(seeds []wat.Token) (map[int]bool, error) {
	queue, err := a.resolveSeeds(seeds)
	if err != nil {
		return nil, err
	}

	visited := map[int]bool{} // keyed by function span
	for len(queue) > 0 {
		item := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		if visited[item.fn.Span] {
			continue
		}
		visited[item.fn.Span] = true
		a.sink.Debugf("blacklisting function", "module", item.moduleIdx, "span", item.fn.Span, "id", item.fn.ID)

		module := a.comp.Modules[item.moduleIdx]
		for _, instr := range item.fn.Instrs {
			if instr.Op != "call" || len(instr.Args) == 0 {
				continue
			}
			callee, ok := module.LocalFunc(instr.Args[0])
			if !ok {
				// import or out-of-module target: the call already
				// leaves the instance, nothing further to exclude
				continue
			}
			if !visited[callee.Span] {
				queue = append(queue, blacklistItem{moduleIdx: item.moduleIdx, fn: callee})
			}
		}
	}
	return visited, nil
}

// resolveSeeds maps component-level core-function indices to the defined
// functions of their inline core modules. A realloc target reaches its
// module through the alias that exported it: the alias names a core
// instance and an export name, the instance names the module, the module
// export names the function.
func (a *annotator) resolveSeeds(seeds []wat.Token) ([]blacklistItem, error) {
	if len(seeds) == 0 {
		return nil, nil
	}

	space := a.comp.CoreFuncSpace()
	instanceModules := a.comp.CoreInstanceModules()

	var queue []blacklistItem
	for _, seed := range seeds {
		idx, ok := seed.Num()
		if !ok {
			continue
		}
		if idx >= uint64(len(space)) {
			return nil, utils.MakeError(ErrBlacklist, "core function index %d is outside the index space", idx)
		}
		entry := space[idx]
		if !entry.IsAliasExport {
			// a canon-defined core function has no wasm body to scan
			continue
		}
		if entry.InstanceIdx >= uint64(len(instanceModules)) {
			return nil, utils.MakeError(ErrBlacklist, "alias references core instance %d which does not exist", entry.InstanceIdx)
		}
		moduleIdx := instanceModules[entry.InstanceIdx]
		if moduleIdx < 0 || moduleIdx >= len(a.comp.Modules) {
			return nil, utils.MakeError(ErrBlacklist, "core instance %d does not instantiate an inline module", entry.InstanceIdx)
		}
		fn, ok := a.comp.Modules[moduleIdx].ExportedFunc(entry.ExportName)
		if !ok {
			return nil, utils.MakeError(ErrBlacklist, "module %d does not export function %q", moduleIdx, entry.ExportName)
		}
		queue = append(queue, blacklistItem{moduleIdx: moduleIdx, fn: fn})
	}
	return queue, nil
}
