// Package syntax defines the normalized syntax tree the analysis engine
// consumes. Surface parsers (internal/parser) lower language-specific
// concrete trees into this form; everything downstream of the parser layer is
// language independent.
package syntax

import (
	"fmt"
	"strings"
)

// Location identifies a position in an analyzed source file. Lines are
// 1-indexed, columns 0-indexed (tree-sitter convention).
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// ParseStatus distinguishes a successfully parsed file from one the parser
// rejected. A rejected file is skipped by the engine but does not abort the
// run.
type ParseStatus int

const (
	StatusOK ParseStatus = iota
	StatusSyntaxError
	StatusSkipped
)

// Import is the raw, unclassified import record produced by a parser.
// Classification into edge kinds happens in the module graph builder.
type Import struct {
	// Name is the imported module (or symbol, for from-imports) as written.
	// Empty when the target is a non-literal expression.
	Name string
	// Alias is the local binding name when the import is aliased.
	Alias string
	// From is the module part of a from-import ("from pkg import x").
	From string
	// Dots counts leading dots on a relative import.
	Dots int
	// Dynamic marks a computed import target (importlib.import_module(expr),
	// dynamic import(expr)).
	Dynamic bool
	// Reflective marks a literal-target reflective import (__import__("x")).
	Reflective bool
	// Conditional marks an import nested under a branch or try block.
	Conditional bool
	// Wildcard marks "from module import *" re-export forms.
	Wildcard bool
	Loc      Location
}

// Function is one function definition with its lowered body.
type Function struct {
	Name   string
	Params []string
	Body   []*Node
	Loc    Location
}

// File is one analyzed source file in normalized form.
type File struct {
	Path   string
	Module string // project-relative dotted module name
	Status ParseStatus
	Err    string // parser diagnostic when Status != StatusOK

	Imports   []Import
	Functions []*Function
	// Body holds top-level statements outside any function definition.
	Body []*Node
	// Exports lists top-level symbol names the file defines.
	Exports []string
}

// Kind discriminates normalized node shapes.
type Kind uint8

const (
	// Statements.
	KindAssign Kind = iota // Name = Value
	KindCall               // Name(Args...); also usable as an expression
	KindIf                 // Cond, Body, Else
	KindWhile              // Cond, Body
	KindReturn             // Value (may be nil)

	// Expressions.
	KindIdent   // Name, possibly dotted ("request.args")
	KindLiteral // Text, Lit
	KindBinary  // X Op Y
	KindUnary   // Op X
)

// LitKind classifies literal nodes.
type LitKind uint8

const (
	LitString LitKind = iota
	LitInt
	LitFloat
	LitBool
	LitNone
)

// Node is a normalized statement or expression. Field use depends on Kind;
// unused fields are zero.
type Node struct {
	Kind Kind
	Loc  Location

	// Name holds an identifier or dotted path: the target of an assignment,
	// the callee of a call (empty when the callee is not a static path), or
	// the referenced symbol of an ident.
	Name string
	// Text is the raw literal text, Lit its class.
	Text string
	Lit  LitKind
	// Op is the operator of a binary/unary node ("==", ">", "and", "not", ...).
	Op string

	X, Y  *Node   // binary/unary operands
	Cond  *Node   // if/while condition
	Value *Node   // assignment RHS, return value
	Args  []*Node // call arguments
	Body  []*Node // if-then / while body
	Else  []*Node // if-else body
}

// String renders an expression node back to a compact source-like form, used
// when reporting guard conditions.
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KindIdent:
		return n.Name
	case KindLiteral:
		return n.Text
	case KindBinary:
		return fmt.Sprintf("%s %s %s", n.X.String(), n.Op, n.Y.String())
	case KindUnary:
		return fmt.Sprintf("%s %s", n.Op, n.X.String())
	case KindCall:
		parts := make([]string, 0, len(n.Args))
		for _, a := range n.Args {
			parts = append(parts, a.String())
		}
		name := n.Name
		if name == "" {
			name = "<dynamic>"
		}
		return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
	default:
		return "<stmt>"
	}
}

// IsLiteralBool reports whether the node is a boolean literal, and its value.
func (n *Node) IsLiteralBool() (value, ok bool) {
	if n == nil || n.Kind != KindLiteral || n.Lit != LitBool {
		return false, false
	}
	switch strings.ToLower(n.Text) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// IntValue returns the value of an integer literal node.
func (n *Node) IntValue() (int64, bool) {
	if n == nil || n.Kind != KindLiteral || n.Lit != LitInt {
		return 0, false
	}
	var v int64
	if _, err := fmt.Sscanf(n.Text, "%d", &v); err != nil {
		return 0, false
	}
	return v, true
}
