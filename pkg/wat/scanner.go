package wat

import (
	"strings"

	"github.com/wasmcov/wasmcov/pkg/utils"
)

// FieldKind classifies the top-level fields of a component
type FieldKind int

const (
	KindCoreModule FieldKind = iota
	KindCoreInstance
	KindCoreType
	KindCoreFunc
	KindComponent
	KindInstance
	KindAlias
	KindType
	KindCanonicalFunc
	KindFunc
	KindStart
	KindImport
	KindExport
	KindCustom
	KindProducers
	KindUnknown
)

// Field is one top-level component field. Span is the byte offset of the
// opening paren; Start and Producers fields carry no span and report -1.
type Field struct {
	Kind FieldKind
	Node *Node
	Span int
}

// HasSpan reports whether the field participates in span-dependent passes
func (f *Field) HasSpan() bool {
	return f.Span >= 0
}

// ModuleFieldKind classifies the fields of an inline core module
type ModuleFieldKind int

const (
	ModType ModuleFieldKind = iota
	ModRec
	ModImport
	ModFunc
	ModTable
	ModMemory
	ModGlobal
	ModExport
	ModStart
	ModElem
	ModData
	ModTag
	ModCustom
	ModUnknown
)

// ModuleField is one field of an inline core module, with the span of its
// opening paren. Start and Custom fields carry no span.
type ModuleField struct {
	Kind ModuleFieldKind
	Node *Node
	Span int
}

// HasSpan reports whether the module field has a usable span
func (f *ModuleField) HasSpan() bool {
	return f.Span >= 0
}

// Instr is a single instruction of a function body in the printed flat
// form: one instruction per line, offset comment ahead of the mnemonic.
type Instr struct {
	Span int // offset of the mnemonic
	Op   string
	Args []Token // bare operand tokens outside any nested list
}

// FuncBody is a defined function of an inline core module
type FuncBody struct {
	Node          *Node
	Span          int
	ID            string // symbolic id without the leading $, or ""
	Instrs        []Instr
	FirstInstrOff int // offset of the first instruction mnemonic, -1 if empty
	BodyStart     int // offset where the body slice begins
}

// ModuleExport is an (export "name" (kind idx)) field of a core module
type ModuleExport struct {
	Name string
	Kind string
	Idx  Token
}

// CoreModule is an inline core module of the component
type CoreModule struct {
	Field          *Field
	Inline         bool
	Fields         []ModuleField
	Funcs          []*FuncBody
	NumFuncImports int
	Exports        []ModuleExport
}

// Component is the shallow parse of a component's text form
type Component struct {
	Text     string
	Root     *Node
	Fields   []Field
	Modules  []*CoreModule // inline core modules in source order
	comments []Token
}

// Scan parses the component text into its typed field sequence. The parse
// is shallow: it classifies fields and records spans, it does not validate
// the component.
func Scan(text string) (*Component, error) {
	root, comments, err := parseTree(text)
	if err != nil {
		return nil, err
	}

	head := root.Head(1)
	if len(head) == 0 {
		return nil, utils.MakeError(ErrParse, "top-level form has no keyword")
	}
	if head[0] == "module" {
		return nil, utils.MakeError(ErrShape, "input is a core module, not a component")
	}
	if head[0] != "component" {
		return nil, utils.MakeError(ErrShape, "top-level form is %q, expected component", head[0])
	}

	comp := &Component{
		Text:     text,
		Root:     root,
		comments: comments,
	}

	for _, node := range root.Lists() {
		field := Field{Kind: classifyField(node), Node: node, Span: node.Open}
		if field.Kind == KindStart || field.Kind == KindProducers {
			field.Span = -1
		}
		comp.Fields = append(comp.Fields, field)
	}
	// resolve modules after Fields is fully built so Field pointers are stable
	for i := range comp.Fields {
		if comp.Fields[i].Kind == KindCoreModule {
			m := scanModule(&comp.Fields[i], text)
			if m.Inline {
				comp.Modules = append(comp.Modules, m)
			}
		}
	}

	return comp, nil
}

func classifyField(node *Node) FieldKind {
	head := node.Head(2)
	if len(head) == 0 {
		return KindUnknown
	}
	if head[0] == "core" && len(head) > 1 {
		switch head[1] {
		case "module":
			return KindCoreModule
		case "instance":
			return KindCoreInstance
		case "type":
			return KindCoreType
		case "func":
			return KindCoreFunc
		}
		return KindUnknown
	}
	switch head[0] {
	case "component":
		return KindComponent
	case "instance":
		return KindInstance
	case "alias":
		return KindAlias
	case "type":
		return KindType
	case "canon":
		return KindCanonicalFunc
	case "func":
		return KindFunc
	case "start":
		return KindStart
	case "import":
		return KindImport
	case "export":
		return KindExport
	case "@custom", "custom":
		return KindCustom
	case "@producers", "producers":
		return KindProducers
	}
	return KindUnknown
}

func classifyModuleField(node *Node) ModuleFieldKind {
	head := node.Head(1)
	if len(head) == 0 {
		return ModUnknown
	}
	switch head[0] {
	case "type":
		return ModType
	case "rec":
		return ModRec
	case "import":
		return ModImport
	case "func":
		return ModFunc
	case "table":
		return ModTable
	case "memory":
		return ModMemory
	case "global":
		return ModGlobal
	case "export":
		return ModExport
	case "start":
		return ModStart
	case "elem":
		return ModElem
	case "data":
		return ModData
	case "tag":
		return ModTag
	case "@custom", "custom":
		return ModCustom
	}
	return ModUnknown
}

func scanModule(field *Field, text string) *CoreModule {
	m := &CoreModule{Field: field}

	node := field.Node
	for _, inner := range node.Lists() {
		kind := classifyModuleField(inner)
		mf := ModuleField{Kind: kind, Node: inner, Span: inner.Open}
		if kind == ModStart || kind == ModCustom {
			mf.Span = -1
		}
		m.Fields = append(m.Fields, mf)
		m.Inline = true

		switch kind {
		case ModImport:
			if isFuncImport(inner) {
				m.NumFuncImports++
			}
		case ModFunc:
			m.Funcs = append(m.Funcs, scanFunc(inner, text))
		case ModExport:
			if exp, ok := scanExport(inner); ok {
				m.Exports = append(m.Exports, exp)
			}
		}
	}

	return m
}

func isFuncImport(node *Node) bool {
	return node.FindList("func") != nil
}

func scanExport(node *Node) (ModuleExport, bool) {
	var name string
	for _, item := range node.Items {
		if item.Str != nil {
			name = unquote(item.Str.Text)
			break
		}
	}
	for _, list := range node.Lists() {
		atoms := list.Atoms()
		if len(atoms) >= 2 {
			return ModuleExport{Name: name, Kind: atoms[0].Text, Idx: atoms[1]}, true
		}
	}
	return ModuleExport{}, false
}

func unquote(s string) string {
	s = strings.TrimPrefix(s, "\"")
	s = strings.TrimSuffix(s, "\"")
	return s
}

// signature list heads that precede the instruction stream of a function
var funcHeaderLists = map[string]bool{
	"export": true,
	"type":   true,
	"param":  true,
	"result": true,
	"local":  true,
}

func scanFunc(node *Node, text string) *FuncBody {
	f := &FuncBody{Node: node, Span: node.Open, FirstInstrOff: -1, BodyStart: node.Close - 1}

	// locate the end of the signature: skip the func keyword, optional
	// symbolic id, index comments, and the leading signature lists
	sawKeyword := false
	for _, item := range node.Items {
		if item.Atom != nil {
			if !sawKeyword && item.Atom.Text == "func" {
				sawKeyword = true
				continue
			}
			if strings.HasPrefix(item.Atom.Text, "$") {
				// symbolic id; mnemonics are never $-prefixed
				f.ID = strings.TrimPrefix(item.Atom.Text, "$")
				continue
			}
			// first bare atom past the signature is the first mnemonic
			f.BodyStart = item.Atom.Off
			break
		}
		if item.Comment != nil {
			continue
		}
		if item.List != nil {
			head := item.List.Head(1)
			if len(head) > 0 && funcHeaderLists[head[0]] {
				continue
			}
			// a non-signature list inside the body ((result ...) of a
			// block) cannot appear before the first mnemonic, so reaching
			// one means the body is empty of plain instructions
			f.BodyStart = item.List.Open
			break
		}
	}

	f.Instrs = scanInstrs(text, f.BodyStart, node.Close-1)
	if len(f.Instrs) > 0 {
		f.FirstInstrOff = f.Instrs[0].Span
	}
	return f
}

// scanInstrs performs the line-oriented instruction scan of a body slice.
// The printer emits one instruction per line with offset comments ahead of
// the mnemonic, so the first bare token of each line is the mnemonic and
// the rest of the line holds its immediate operands.
func scanInstrs(text string, start, end int) []Instr {
	if start >= end {
		return nil
	}
	var instrs []Instr

	lineStart := start
	for lineStart < end {
		lineEnd := strings.IndexByte(text[lineStart:end], '\n')
		if lineEnd < 0 {
			lineEnd = end
		} else {
			lineEnd += lineStart
		}

		if instr, ok := scanInstrLine(text, lineStart, lineEnd); ok {
			instrs = append(instrs, instr)
		}
		lineStart = lineEnd + 1
	}
	return instrs
}

func scanInstrLine(text string, start, end int) (Instr, bool) {
	instr := Instr{Span: -1}
	depth := 0
	i := start
	for i < end {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == ';' && i+1 < end && text[i+1] == ';':
			i = end
		case c == '(' && i+1 < end && text[i+1] == ';':
			// skip the block comment
			d := 0
			for i < end {
				if i+1 < end && text[i] == '(' && text[i+1] == ';' {
					d++
					i += 2
				} else if i+1 <= end-1 && text[i] == ';' && text[i+1] == ')' {
					d--
					i += 2
					if d == 0 {
						break
					}
				} else {
					i++
				}
			}
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case c == '"':
			i++
			for i < end && text[i] != '"' {
				if text[i] == '\\' {
					i++
				}
				i++
			}
			i++
		default:
			tokStart := i
			for i < end {
				c := text[i]
				if c == ' ' || c == '\t' || c == '\r' || c == '(' || c == ')' || c == '"' || c == ';' {
					break
				}
				i++
			}
			if i == tokStart {
				// stray delimiter, never emitted by the printer
				i++
				continue
			}
			tok := Token{Off: tokStart, Text: text[tokStart:i]}
			if depth == 0 {
				if instr.Span < 0 {
					instr.Span = tokStart
					instr.Op = tok.Text
				} else {
					instr.Args = append(instr.Args, tok)
				}
			}
		}
	}
	return instr, instr.Span >= 0
}
