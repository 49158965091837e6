package wat

import (
	"github.com/wasmcov/wasmcov/pkg/utils"
)

// Node is one parenthesized list of the component text. Items preserve
// source order, including block comments, because the offset comments the
// printer leaves between tokens are load-bearing for the instrumenter.
type Node struct {
	Open  int // offset of the opening paren
	Close int // offset just past the closing paren
	Items []Item
}

// Item is a single entry of a Node: exactly one of Atom, Str, Comment or
// List is set.
type Item struct {
	Atom    *Token
	Str     *Token // quoted string, text includes the quotes
	Comment *Token // block comment, text includes the (; ;) delimiters
	List    *Node
}

// Head returns the first count atoms of the node, skipping comments and
// strings. Fewer atoms are returned when the node runs out.
func (n *Node) Head(count int) []string {
	head := make([]string, 0, count)
	for _, item := range n.Items {
		if item.Atom != nil {
			head = append(head, item.Atom.Text)
			if len(head) == count {
				break
			}
		} else if item.List != nil {
			break
		}
	}
	return head
}

// headIs reports whether the node's leading atoms match the given words
func (n *Node) headIs(words ...string) bool {
	head := n.Head(len(words))
	if len(head) != len(words) {
		return false
	}
	for i, w := range words {
		if head[i] != w {
			return false
		}
	}
	return true
}

// Lists returns the nested list items of the node in order
func (n *Node) Lists() []*Node {
	var lists []*Node
	for _, item := range n.Items {
		if item.List != nil {
			lists = append(lists, item.List)
		}
	}
	return lists
}

// Atoms returns the atom items of the node in order
func (n *Node) Atoms() []Token {
	var atoms []Token
	for _, item := range n.Items {
		if item.Atom != nil {
			atoms = append(atoms, *item.Atom)
		}
	}
	return atoms
}

// FirstNum returns the first decimal index literal atom of the node
func (n *Node) FirstNum() (Token, bool) {
	for _, item := range n.Items {
		if item.Atom != nil && item.Atom.IsNum() {
			return *item.Atom, true
		}
	}
	return Token{}, false
}

// FindList returns the first nested list whose head atoms match words,
// searching this node's direct children only.
func (n *Node) FindList(words ...string) *Node {
	for _, list := range n.Lists() {
		if list.headIs(words...) {
			return list
		}
	}
	return nil
}

// parseTree builds the node tree of the whole input and collects every
// block comment with its offset.
func parseTree(input string) (*Node, []Token, error) {
	lex := &lexer{input: input}
	var comments []Token
	var stack []*Node
	var root *Node

	for {
		tok, ok, err := lex.next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}

		switch tok.kind {
		case tokLParen:
			node := &Node{Open: tok.off}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Items = append(parent.Items, Item{List: node})
			} else if root == nil {
				root = node
			} else {
				return nil, nil, utils.MakeError(ErrParse, "multiple top-level forms at offset %d", tok.off)
			}
			stack = append(stack, node)
		case tokRParen:
			if len(stack) == 0 {
				return nil, nil, utils.MakeError(ErrParse, "unbalanced ')' at offset %d", tok.off)
			}
			stack[len(stack)-1].Close = tok.off + 1
			stack = stack[:len(stack)-1]
		case tokAtom:
			if len(stack) == 0 {
				return nil, nil, utils.MakeError(ErrParse, "stray atom %q at offset %d", tok.text, tok.off)
			}
			t := Token{Off: tok.off, Text: tok.text}
			node := stack[len(stack)-1]
			node.Items = append(node.Items, Item{Atom: &t})
		case tokString:
			if len(stack) == 0 {
				return nil, nil, utils.MakeError(ErrParse, "stray string at offset %d", tok.off)
			}
			t := Token{Off: tok.off, Text: tok.text}
			node := stack[len(stack)-1]
			node.Items = append(node.Items, Item{Str: &t})
		case tokComment:
			t := Token{Off: tok.off, Text: tok.text}
			comments = append(comments, t)
			if len(stack) > 0 {
				node := stack[len(stack)-1]
				node.Items = append(node.Items, Item{Comment: &t})
			}
		}
	}

	if len(stack) != 0 {
		return nil, nil, utils.MakeError(ErrParse, "unbalanced '(' at offset %d", stack[len(stack)-1].Open)
	}
	if root == nil {
		return nil, nil, utils.MakeError(ErrParse, "empty input")
	}
	return root, comments, nil
}
