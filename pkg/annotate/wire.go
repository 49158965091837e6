package annotate

import (
	"fmt"
	"regexp"
)

var instantiationRe = regexp.MustCompile(instantiationPattern)

// addInstantiationArgs appends the counter instance to the argument list
// of every core instantiation, so every pre-existing module instance can
// satisfy its new import.
func (a *annotator) addInstantiationArgs() {
	msg := fmt.Sprintf("(with %q (instance $%s))", incModuleName, incModuleName)

	for _, field := range a.comp.CoreInstantiateFields() {
		matched := a.tracker.ModifyWithRegexMatch(a.output, instantiationRe, field.Span,
			func(s *string, _, end int) (int, int) {
				*s = (*s)[:end] + msg + (*s)[end:]
				// the edited end overestimates its original location, so
				// the delta never leaks into translations that precede
				// the physical insertion point
				return end, len(msg)
			})
		if !matched {
			a.sink.Warnf("core instantiation did not match the printer form", "span", field.Span)
		}
	}
}

// addCanonLowerAndInstance inserts, right after the last core module, the
// lowering of the counter import and the core instance exporting it. The
// instance lands ahead of every pre-existing core instance in the index
// space, which is what the instance bump pass accounts for.
func (a *annotator) addCanonLowerAndInstance() error {
	offset, err := a.comp.AfterModulesInsertPoint()
	if err != nil {
		return err
	}

	canonLower := fmt.Sprintf("(core func $%s (canon lower (func $%s)))", incFuncName, incFuncName)
	instance := fmt.Sprintf("(core instance $%s (export %q (func $%s)))", incModuleName, incFuncName, incFuncName)

	a.tracker.AddToString(a.output, offset, canonLower+"\n"+instance+"\n")
	return nil
}
