package wat

import (
	"regexp"
	"strconv"

	"github.com/wasmcov/wasmcov/pkg/utils"
)

// LeadingInsertPoint returns the offset at which the component-level import
// goes (one byte before the first field following the last leading
// Type/Import/Alias run) and the number of Type fields seen among the
// leading fields, which is the bound below which type references must not
// be bumped.
func (c *Component) LeadingInsertPoint() (int, uint64, error) {
	wasLeading := false
	var typeCount uint64
	for i := range c.Fields {
		field := &c.Fields[i]
		switch field.Kind {
		case KindType, KindImport, KindAlias:
			wasLeading = true
			if field.Kind == KindType {
				typeCount++
			}
		default:
			if wasLeading && field.HasSpan() {
				return field.Span - 1, typeCount, nil
			}
		}
	}
	return 0, 0, utils.MakeError(ErrShape, "no field follows the leading type/import/alias run")
}

// ModuleImportInsertPoint returns the offset at which the core-level
// import goes for the given module: one byte before the first field that
// follows the module's last import. ok is false when the module has no
// imports or no spanned field follows them, in which case the module must
// be skipped.
func (m *CoreModule) ModuleImportInsertPoint() (int, bool) {
	wasImport := false
	for i := range m.Fields {
		field := &m.Fields[i]
		if field.Kind == ModImport {
			wasImport = true
			continue
		}
		if wasImport {
			wasImport = false
			if field.HasSpan() {
				return field.Span - 1, true
			}
		}
	}
	return 0, false
}

// AfterModulesInsertPoint returns the offset at which the canon lower and
// counter instance fields go: one byte before the first spanned field that
// follows the last core module.
func (c *Component) AfterModulesInsertPoint() (int, error) {
	passedModules := false
	for i := range c.Fields {
		field := &c.Fields[i]
		if field.Kind == KindCoreModule {
			passedModules = true
			continue
		}
		if passedModules && field.HasSpan() {
			return field.Span - 1, nil
		}
	}
	return 0, utils.MakeError(ErrShape, "no field follows the core modules")
}

// CoreFuncUses returns every numeric use of a core-function index at
// component level (canon lift core func refs and canon realloc options)
// together with the realloc targets, which seed the blacklist.
func (c *Component) CoreFuncUses() (uses []Token, reallocTargets []Token) {
	for i := range c.Fields {
		field := &c.Fields[i]
		switch field.Kind {
		case KindFunc, KindCanonicalFunc:
			if lift := findCanon(field.Node, "lift"); lift != nil {
				if ref := lift.FindList("core", "func"); ref != nil {
					if tok, ok := ref.FirstNum(); ok {
						uses = append(uses, tok)
					}
				}
				reallocTargets = append(reallocTargets, reallocRefs(lift)...)
				uses = append(uses, reallocRefs(lift)...)
			}
		case KindCoreFunc:
			if lower := findCanon(field.Node, "lower"); lower != nil {
				reallocTargets = append(reallocTargets, reallocRefs(lower)...)
				uses = append(uses, reallocRefs(lower)...)
			}
		}
	}
	return uses, reallocTargets
}

// findCanon locates a (canon <verb> ...) list nested in a func field
func findCanon(node *Node, verb string) *Node {
	if node.headIs("canon", verb) {
		return node
	}
	for _, list := range node.Lists() {
		if found := findCanon(list, verb); found != nil {
			return found
		}
	}
	return nil
}

// reallocRefs collects the numeric (realloc N) and (realloc (func N))
// option tokens of a canon list
func reallocRefs(canon *Node) []Token {
	var refs []Token
	for _, list := range canon.Lists() {
		if !list.headIs("realloc") {
			continue
		}
		if tok, ok := list.FirstNum(); ok {
			refs = append(refs, tok)
			continue
		}
		if ref := list.FindList("func"); ref != nil {
			if tok, ok := ref.FirstNum(); ok {
				refs = append(refs, tok)
			}
		}
	}
	return refs
}

// InstanceUses returns every numeric instance-index use: alias core-export
// targets and instantiation arguments of kind instance, at both core and
// component level.
func (c *Component) InstanceUses() []Token {
	var uses []Token
	for i := range c.Fields {
		field := &c.Fields[i]
		switch field.Kind {
		case KindAlias:
			if field.Node.headIs("alias", "core", "export") {
				if tok, ok := field.Node.FirstNum(); ok {
					uses = append(uses, tok)
				}
			}
		case KindCoreInstance, KindInstance:
			inst := field.Node.FindList("instantiate")
			if inst == nil {
				continue
			}
			for _, with := range inst.Lists() {
				if !with.headIs("with") {
					continue
				}
				if ref := with.FindList("instance"); ref != nil {
					if tok, ok := ref.FirstNum(); ok {
						uses = append(uses, tok)
					}
				}
			}
		}
	}
	return uses
}

// ComponentFuncUses returns every numeric use of a function index that
// shifts when the counter import is prepended: canon lower's func
// argument, and instantiate/export arguments of kind func.
func (c *Component) ComponentFuncUses() []Token {
	var uses []Token
	for i := range c.Fields {
		field := &c.Fields[i]
		switch field.Kind {
		case KindCoreFunc:
			if lower := findCanon(field.Node, "lower"); lower != nil {
				if ref := lower.FindList("func"); ref != nil {
					if tok, ok := ref.FirstNum(); ok {
						uses = append(uses, tok)
					}
				}
			}
		case KindCoreInstance, KindInstance:
			uses = append(uses, funcArgRefs(field.Node)...)
		}
	}
	return uses
}

// funcArgRefs collects (func N) refs from instantiation arguments and
// export bundles of an instance field
func funcArgRefs(node *Node) []Token {
	var refs []Token
	for _, list := range node.Lists() {
		switch {
		case list.headIs("instantiate"):
			refs = append(refs, funcArgRefs(list)...)
		case list.headIs("with"), list.headIs("export"):
			if ref := list.FindList("func"); ref != nil {
				if tok, ok := ref.FirstNum(); ok {
					refs = append(refs, tok)
				}
			}
		}
	}
	return refs
}

// TypeUses returns every numeric type reference at component level:
// (type N) uses on funcs and canon fields, resource.drop targets, and
// type-to-type references inside type definitions. The caller bumps only
// references at or above the leading-type bound.
func (c *Component) TypeUses() []Token {
	var uses []Token
	for i := range c.Fields {
		field := &c.Fields[i]
		switch field.Kind {
		case KindFunc, KindCoreFunc, KindCanonicalFunc:
			if ref := field.Node.FindList("type"); ref != nil {
				if tok, ok := ref.FirstNum(); ok {
					uses = append(uses, tok)
				}
			}
			if drop := findCanon(field.Node, "resource.drop"); drop != nil {
				if tok, ok := drop.FirstNum(); ok {
					uses = append(uses, tok)
				}
			}
		case KindType:
			uses = append(uses, typeRefsInType(field.Node)...)
		}
	}
	return uses
}

// typeRefsInType recursively collects numeric type references from the
// value positions of a type definition: (param "name" N), (result N),
// (result "name" N), and nested component/instance decls.
func typeRefsInType(node *Node) []Token {
	var refs []Token
	for _, list := range node.Lists() {
		head := list.Head(1)
		if len(head) > 0 && (head[0] == "param" || head[0] == "result") {
			if tok, ok := list.FirstNum(); ok {
				refs = append(refs, tok)
			}
			continue
		}
		refs = append(refs, typeRefsInType(list)...)
	}
	return refs
}

// CoreInstantiateFields returns the core instance fields created by
// instantiate, in source order
func (c *Component) CoreInstantiateFields() []*Field {
	var fields []*Field
	for i := range c.Fields {
		field := &c.Fields[i]
		if field.Kind == KindCoreInstance && field.Node.FindList("instantiate") != nil {
			fields = append(fields, field)
		}
	}
	return fields
}

// CoreFuncSpaceEntry is one entry of the component-level core-function
// index space, in order of appearance.
type CoreFuncSpaceEntry struct {
	// IsAliasExport is set when the entry is an alias of a core-instance
	// export of kind func; InstanceIdx and ExportName identify it
	IsAliasExport bool
	InstanceIdx   uint64
	ExportName    string
}

// CoreFuncSpace returns the component-level core-function index space:
// alias core-export entries of kind func and core func fields, in order.
func (c *Component) CoreFuncSpace() []CoreFuncSpaceEntry {
	var entries []CoreFuncSpaceEntry
	for i := range c.Fields {
		field := &c.Fields[i]
		switch field.Kind {
		case KindAlias:
			if !field.Node.headIs("alias", "core", "export") {
				continue
			}
			// (alias core export N "name" (core <kind> (;M;)))
			kindList := field.Node.FindList("core")
			if kindList == nil {
				continue
			}
			head := kindList.Head(2)
			if len(head) < 2 || head[1] != "func" {
				continue
			}
			entry := CoreFuncSpaceEntry{IsAliasExport: true}
			if tok, ok := field.Node.FirstNum(); ok {
				entry.InstanceIdx, _ = tok.Num()
			}
			for _, item := range field.Node.Items {
				if item.Str != nil {
					entry.ExportName = unquote(item.Str.Text)
					break
				}
			}
			entries = append(entries, entry)
		case KindCoreFunc:
			entries = append(entries, CoreFuncSpaceEntry{})
		}
	}
	return entries
}

// CoreInstanceModules returns, per core instance in source order, the
// index of the inline core module it instantiates, or -1 for export
// bundles and symbolic references.
func (c *Component) CoreInstanceModules() []int {
	var modules []int
	for i := range c.Fields {
		field := &c.Fields[i]
		if field.Kind != KindCoreInstance {
			continue
		}
		inst := field.Node.FindList("instantiate")
		if inst == nil {
			modules = append(modules, -1)
			continue
		}
		if tok, ok := inst.FirstNum(); ok {
			n, _ := tok.Num()
			modules = append(modules, int(n))
		} else {
			modules = append(modules, -1)
		}
	}
	return modules
}

// LocalFunc resolves a call target against the module's local function
// index space: imported functions come first, then defined functions.
// ok is false for imports and out-of-range indices (external calls).
func (m *CoreModule) LocalFunc(target Token) (*FuncBody, bool) {
	if n, isNum := target.Num(); isNum {
		idx := int(n) - m.NumFuncImports
		if idx < 0 || idx >= len(m.Funcs) {
			return nil, false
		}
		return m.Funcs[idx], true
	}
	// symbolic target
	name := target.Text
	if len(name) > 0 && name[0] == '$' {
		name = name[1:]
	}
	for _, f := range m.Funcs {
		if f.ID != "" && f.ID == name {
			return f, true
		}
	}
	return nil, false
}

// ExportedFunc resolves an export name to the module's defined function
func (m *CoreModule) ExportedFunc(name string) (*FuncBody, bool) {
	for _, exp := range m.Exports {
		if exp.Name == name && exp.Kind == "func" {
			return m.LocalFunc(exp.Idx)
		}
	}
	// inline export form: (func $f (export "name") ...)
	for _, f := range m.Funcs {
		for _, list := range f.Node.Lists() {
			if !list.headIs("export") {
				continue
			}
			for _, item := range list.Items {
				if item.Str != nil && unquote(item.Str.Text) == name {
					return f, true
				}
			}
		}
	}
	return nil, false
}

// OffsetCommentPattern matches the binary-offset comments the printer
// leaves ahead of every instruction. The single capture group holds the
// hex offset. Printers that format the comment differently can supply
// their own pattern.
const OffsetCommentPattern = `^\(;@([0-9a-fA-F]+);\)$`

var offsetCommentRe = regexp.MustCompile(OffsetCommentPattern)

// OffsetComment is one binary-offset comment the printer left in the text
type OffsetComment struct {
	BinOff uint64
	After  int // text offset just past the comment
}

// OffsetComments returns the parsed binary-offset comments whose text
// position falls inside [start, end). A nil pattern uses the default
// printer's format.
func (c *Component) OffsetComments(re *regexp.Regexp, start, end int) []OffsetComment {
	if re == nil {
		re = offsetCommentRe
	}
	var out []OffsetComment
	for _, comment := range c.comments {
		if comment.Off < start || comment.Off >= end {
			continue
		}
		m := re.FindStringSubmatch(comment.Text)
		if m == nil {
			continue
		}
		off, err := strconv.ParseUint(m[1], 16, 64)
		if err != nil {
			continue
		}
		out = append(out, OffsetComment{BinOff: off, After: comment.End()})
	}
	return out
}
