package annotate

import (
	"fmt"
)

const (
	incFuncName   = "inc-counter"
	incModuleName = "inc-counter-module"
)

const instantiationPattern = `core instance \(;[0-9]+;\) \(instantiate [0-9]+`

// addComponentImport inserts the component-level import of the counter
// function right after the last leading Type/Import/Alias field. It
// returns the number of types among the leading fields: references to
// types below that bound point into the pre-import type space and must
// not be bumped.
func (a *annotator) addComponentImport() (uint64, error) {
	offset, typeIdxBound, err := a.comp.LeadingInsertPoint()
	if err != nil {
		return 0, err
	}

	msg := fmt.Sprintf(
		"(import %q (func $%s (param \"idx\" s32) (param \"type\" s32) (param \"file-idx\" s32) (param \"line-num\" s32) (param \"column\" s32)))",
		incFuncName, incFuncName)
	a.tracker.AddToString(a.output, offset, msg)

	return typeIdxBound, nil
}

// addModuleImports inserts the core-level counter import into every
// inline core module, right after the module's last leading import.
// Modules with no imports, or no field after their imports, cannot host
// the insertion point and are skipped with a warning.
func (a *annotator) addModuleImports() {
	for i, module := range a.comp.Modules {
		offset, ok := module.ModuleImportInsertPoint()
		if !ok {
			a.sink.Warnf("module had no fields after imports", "module", i)
			continue
		}

		msg := fmt.Sprintf(
			"(import %q %q (func $%s (param i32) (param i32) (param i32) (param i32) (param i32)))\n",
			incModuleName, incFuncName, incFuncName)
		a.tracker.AddToString(a.output, offset, msg)
	}
}
