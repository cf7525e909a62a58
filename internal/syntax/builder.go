package syntax

import "strconv"

// Constructors for building normalized trees programmatically. The parser
// adapters and the engine's tests both use these so that hand-built and
// lowered trees are structurally identical.

// Ident builds an identifier or dotted-path reference.
func Ident(name string) *Node {
	return &Node{Kind: KindIdent, Name: name}
}

// Str builds a string literal.
func Str(s string) *Node {
	return &Node{Kind: KindLiteral, Lit: LitString, Text: s}
}

// Int builds an integer literal.
func Int(v int64) *Node {
	return &Node{Kind: KindLiteral, Lit: LitInt, Text: strconv.FormatInt(v, 10)}
}

// Bool builds a boolean literal.
func Bool(v bool) *Node {
	text := "False"
	if v {
		text = "True"
	}
	return &Node{Kind: KindLiteral, Lit: LitBool, Text: text}
}

// None builds a null/None literal.
func None() *Node {
	return &Node{Kind: KindLiteral, Lit: LitNone, Text: "None"}
}

// Call builds a call to a static dotted target.
func Call(target string, args ...*Node) *Node {
	return &Node{Kind: KindCall, Name: target, Args: args}
}

// Assign builds "name = value".
func Assign(name string, value *Node) *Node {
	return &Node{Kind: KindAssign, Name: name, Value: value}
}

// If builds a conditional with optional else body.
func If(cond *Node, body []*Node, els ...*Node) *Node {
	return &Node{Kind: KindIf, Cond: cond, Body: body, Else: els}
}

// While builds a loop.
func While(cond *Node, body []*Node) *Node {
	return &Node{Kind: KindWhile, Cond: cond, Body: body}
}

// Ret builds a return statement; value may be nil.
func Ret(value *Node) *Node {
	return &Node{Kind: KindReturn, Value: value}
}

// Bin builds a binary expression.
func Bin(op string, x, y *Node) *Node {
	return &Node{Kind: KindBinary, Op: op, X: x, Y: y}
}

// Not builds a logical negation.
func Not(x *Node) *Node {
	return &Node{Kind: KindUnary, Op: "not", X: x}
}

// Func builds a function definition.
func Func(name string, params []string, body ...*Node) *Function {
	return &Function{Name: name, Params: params, Body: body}
}

// At returns a copy of the node stamped with a location. Statements built for
// tests usually don't need one; the parser stamps every lowered node.
func At(n *Node, loc Location) *Node {
	c := *n
	c.Loc = loc
	return &c
}
