package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/xkilldash9x/crossflow/internal/syntax"
)

// Python lowers tree-sitter's Python grammar.
type Python struct{}

func NewPython() *Python { return &Python{} }

func (p *Python) Extensions() []string { return []string{".py"} }

func (p *Python) Parse(ctx context.Context, path, module string, src []byte) (*syntax.File, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	file := &syntax.File{Path: path, Module: module, Status: syntax.StatusOK}
	root := tree.RootNode()
	if root.HasError() {
		file.Status = syntax.StatusSyntaxError
		file.Err = "syntax errors detected"
		return file, nil
	}

	l := &pyLowerer{file: file, src: src, path: path}
	l.module(root)
	return file, nil
}

type pyLowerer struct {
	file *syntax.File
	src  []byte
	path string
	// depth > 0 while lowering inside a function, branch, loop, or try
	// block; imports found there are conditional.
	depth int
}

func (l *pyLowerer) text(n *sitter.Node) string { return n.Content(l.src) }

func (l *pyLowerer) loc(n *sitter.Node) syntax.Location {
	return loc(n.StartPoint().Row, n.StartPoint().Column, l.path)
}

func (l *pyLowerer) module(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "function_definition", "decorated_definition":
			l.function(child)
		default:
			if stmt := l.stmt(child); stmt != nil {
				l.file.Body = append(l.file.Body, stmt)
			}
		}
	}
}

func (l *pyLowerer) function(n *sitter.Node) {
	if n.Type() == "decorated_definition" {
		def := n.ChildByFieldName("definition")
		if def == nil || def.Type() != "function_definition" {
			return
		}
		n = def
	}
	name := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if name == nil || body == nil {
		return
	}
	fn := &syntax.Function{Name: l.text(name), Loc: l.loc(n)}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			switch p.Type() {
			case "identifier":
				fn.Params = append(fn.Params, l.text(p))
			case "default_parameter", "typed_parameter", "typed_default_parameter":
				if id := p.ChildByFieldName("name"); id != nil {
					fn.Params = append(fn.Params, l.text(id))
				} else if p.NamedChildCount() > 0 && p.NamedChild(0).Type() == "identifier" {
					fn.Params = append(fn.Params, l.text(p.NamedChild(0)))
				}
			}
		}
	}
	l.depth++
	fn.Body = l.block(body)
	l.depth--
	l.file.Functions = append(l.file.Functions, fn)
	l.file.Exports = append(l.file.Exports, fn.Name)
}

func (l *pyLowerer) block(n *sitter.Node) []*syntax.Node {
	var out []*syntax.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if stmt := l.stmt(n.NamedChild(i)); stmt != nil {
			out = append(out, stmt)
		}
	}
	return out
}

func (l *pyLowerer) stmt(n *sitter.Node) *syntax.Node {
	switch n.Type() {
	case "import_statement":
		l.importPlain(n)
	case "import_from_statement":
		l.importFrom(n)
	case "expression_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "assignment" {
				return l.assignment(child)
			}
			if expr := l.expr(child); expr != nil {
				return expr
			}
		}
	case "if_statement":
		return l.ifStmt(n)
	case "while_statement":
		return l.whileStmt(n)
	case "for_statement":
		// Loop bodies matter for taint even though the iteration variable
		// itself is opaque.
		stmt := &syntax.Node{Kind: syntax.KindWhile, Loc: l.loc(n), Cond: &syntax.Node{Kind: syntax.KindIdent, Name: "<iter>", Loc: l.loc(n)}}
		if body := n.ChildByFieldName("body"); body != nil {
			l.depth++
			stmt.Body = l.block(body)
			l.depth--
		}
		return stmt
	case "return_statement":
		ret := &syntax.Node{Kind: syntax.KindReturn, Loc: l.loc(n)}
		if n.NamedChildCount() > 0 {
			ret.Value = l.expr(n.NamedChild(0))
		}
		return ret
	case "try_statement":
		// Flatten try bodies; handler structure is irrelevant to dataflow.
		l.depth++
		defer func() { l.depth-- }()
		if body := n.ChildByFieldName("body"); body != nil {
			stmts := l.block(body)
			if len(stmts) == 1 {
				return stmts[0]
			}
			if len(stmts) > 1 {
				return &syntax.Node{Kind: syntax.KindIf, Loc: l.loc(n),
					Cond: &syntax.Node{Kind: syntax.KindLiteral, Text: "True", Lit: syntax.LitBool},
					Body: stmts}
			}
		}
	case "function_definition", "decorated_definition":
		l.function(n)
	}
	return nil
}

// importPlain handles "import a.b" and "import a.b as c" forms.
func (l *pyLowerer) importPlain(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			l.add(syntax.Import{Name: l.text(child), Loc: l.loc(child)})
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil && alias != nil {
				l.add(syntax.Import{Name: l.text(name), Alias: l.text(alias), Loc: l.loc(child)})
			}
		}
	}
}

// importFrom handles "from [.]*mod import x [as y], *" forms.
func (l *pyLowerer) importFrom(n *sitter.Node) {
	var from string
	var dots int
	mod := n.ChildByFieldName("module_name")
	if mod != nil {
		switch mod.Type() {
		case "dotted_name":
			from = l.text(mod)
		case "relative_import":
			raw := l.text(mod)
			dots = strings.Count(raw, ".")
			from = strings.TrimLeft(raw, ".")
		}
	}
	base := syntax.Import{Name: from, Dots: dots, Loc: l.loc(n)}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "wildcard_import":
			imp := base
			imp.Wildcard = true
			l.add(imp)
		case "dotted_name":
			if mod != nil && child.StartByte() == mod.StartByte() {
				continue
			}
			imp := base
			imp.From = l.text(child)
			l.add(imp)
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name != nil && alias != nil {
				imp := base
				imp.From = l.text(name)
				imp.Alias = l.text(alias)
				l.add(imp)
			}
		}
	}
}

func (l *pyLowerer) add(imp syntax.Import) {
	if l.depth > 0 {
		imp.Conditional = true
	}
	l.file.Imports = append(l.file.Imports, imp)
}

func (l *pyLowerer) assignment(n *sitter.Node) *syntax.Node {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil {
		return nil
	}
	target := ""
	switch left.Type() {
	case "identifier":
		target = l.text(left)
	case "attribute":
		target = l.dotted(left)
	default:
		return nil
	}
	return &syntax.Node{
		Kind:  syntax.KindAssign,
		Loc:   l.loc(n),
		Name:  target,
		Value: l.expr(right),
	}
}

func (l *pyLowerer) ifStmt(n *sitter.Node) *syntax.Node {
	stmt := &syntax.Node{Kind: syntax.KindIf, Loc: l.loc(n), Cond: l.expr(n.ChildByFieldName("condition"))}
	l.depth++
	defer func() { l.depth-- }()
	if body := n.ChildByFieldName("consequence"); body != nil {
		stmt.Body = l.block(body)
	}
	// An elif chain lowers to ifs nested in successive else arms.
	type arm struct {
		cond *syntax.Node
		body []*syntax.Node
		loc  syntax.Location
	}
	var arms []arm
	var tail []*syntax.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "elif_clause":
			a := arm{cond: l.expr(child.ChildByFieldName("condition")), loc: l.loc(child)}
			if body := child.ChildByFieldName("consequence"); body != nil {
				a.body = l.block(body)
			}
			arms = append(arms, a)
		case "else_clause":
			if body := child.ChildByFieldName("body"); body != nil {
				tail = l.block(body)
			}
		}
	}
	for i := len(arms) - 1; i >= 0; i-- {
		tail = []*syntax.Node{{
			Kind: syntax.KindIf,
			Loc:  arms[i].loc,
			Cond: arms[i].cond,
			Body: arms[i].body,
			Else: tail,
		}}
	}
	stmt.Else = tail
	return stmt
}

func (l *pyLowerer) whileStmt(n *sitter.Node) *syntax.Node {
	stmt := &syntax.Node{Kind: syntax.KindWhile, Loc: l.loc(n), Cond: l.expr(n.ChildByFieldName("condition"))}
	l.depth++
	if body := n.ChildByFieldName("body"); body != nil {
		stmt.Body = l.block(body)
	}
	l.depth--
	return stmt
}

func (l *pyLowerer) expr(n *sitter.Node) *syntax.Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		return &syntax.Node{Kind: syntax.KindIdent, Name: l.text(n), Loc: l.loc(n)}
	case "attribute", "subscript":
		if name := l.dotted(n); name != "" {
			return &syntax.Node{Kind: syntax.KindIdent, Name: name, Loc: l.loc(n)}
		}
		return nil
	case "call":
		return l.call(n)
	case "string", "concatenated_string":
		return l.stringNode(n)
	case "integer":
		return &syntax.Node{Kind: syntax.KindLiteral, Lit: syntax.LitInt, Text: l.text(n), Loc: l.loc(n)}
	case "float":
		return &syntax.Node{Kind: syntax.KindLiteral, Lit: syntax.LitFloat, Text: l.text(n), Loc: l.loc(n)}
	case "true":
		return &syntax.Node{Kind: syntax.KindLiteral, Lit: syntax.LitBool, Text: "True", Loc: l.loc(n)}
	case "false":
		return &syntax.Node{Kind: syntax.KindLiteral, Lit: syntax.LitBool, Text: "False", Loc: l.loc(n)}
	case "none":
		return &syntax.Node{Kind: syntax.KindLiteral, Lit: syntax.LitNone, Text: "None", Loc: l.loc(n)}
	case "parenthesized_expression":
		if n.NamedChildCount() > 0 {
			return l.expr(n.NamedChild(0))
		}
		return nil
	case "comparison_operator":
		return l.comparison(n)
	case "boolean_operator":
		return &syntax.Node{
			Kind: syntax.KindBinary,
			Loc:  l.loc(n),
			Op:   l.fieldText(n, "operator"),
			X:    l.expr(n.ChildByFieldName("left")),
			Y:    l.expr(n.ChildByFieldName("right")),
		}
	case "not_operator":
		return &syntax.Node{Kind: syntax.KindUnary, Op: "not", X: l.expr(n.ChildByFieldName("argument")), Loc: l.loc(n)}
	case "binary_operator":
		return &syntax.Node{
			Kind: syntax.KindBinary,
			Loc:  l.loc(n),
			Op:   l.fieldText(n, "operator"),
			X:    l.expr(n.ChildByFieldName("left")),
			Y:    l.expr(n.ChildByFieldName("right")),
		}
	case "interpolation":
		if n.NamedChildCount() > 0 {
			return l.expr(n.NamedChild(0))
		}
		return nil
	}
	// Composite expressions (f-strings, comprehensions, containers) fold
	// into a merge of their tainted parts.
	return l.fold(n)
}

// stringNode keeps plain strings as literals; f-string interpolations fold
// into a concatenation so taint inside them survives.
func (l *pyLowerer) stringNode(n *sitter.Node) *syntax.Node {
	lit := &syntax.Node{Kind: syntax.KindLiteral, Lit: syntax.LitString, Text: stripQuotes(l.text(n)), Loc: l.loc(n)}
	var parts []*syntax.Node
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "interpolation" {
				if e := l.expr(child); e != nil {
					parts = append(parts, e)
				}
				continue
			}
			walk(child)
		}
	}
	walk(n)
	acc := lit
	for _, p := range parts {
		acc = &syntax.Node{Kind: syntax.KindBinary, Op: "+", X: acc, Y: p, Loc: l.loc(n)}
	}
	return acc
}

// fold merges the lowered named children of an unmodeled composite so taint
// inside it still propagates.
func (l *pyLowerer) fold(n *sitter.Node) *syntax.Node {
	var parts []*syntax.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if e := l.expr(n.NamedChild(i)); e != nil {
			parts = append(parts, e)
		}
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	acc := parts[0]
	for _, p := range parts[1:] {
		acc = &syntax.Node{Kind: syntax.KindBinary, Op: "+", X: acc, Y: p, Loc: l.loc(n)}
	}
	return acc
}

func (l *pyLowerer) comparison(n *sitter.Node) *syntax.Node {
	if n.NamedChildCount() < 2 {
		return l.fold(n)
	}
	op := ""
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() {
			op = l.text(child)
			break
		}
	}
	return &syntax.Node{
		Kind: syntax.KindBinary,
		Loc:  l.loc(n),
		Op:   op,
		X:    l.expr(n.NamedChild(0)),
		Y:    l.expr(n.NamedChild(1)),
	}
}

func (l *pyLowerer) call(n *sitter.Node) *syntax.Node {
	fnNode := n.ChildByFieldName("function")
	argsNode := n.ChildByFieldName("arguments")
	call := &syntax.Node{Kind: syntax.KindCall, Loc: l.loc(n)}
	if fnNode != nil {
		call.Name = l.dotted(fnNode)
	}
	if argsNode != nil {
		for i := 0; i < int(argsNode.NamedChildCount()); i++ {
			arg := argsNode.NamedChild(i)
			if arg.Type() == "keyword_argument" {
				arg = arg.ChildByFieldName("value")
				if arg == nil {
					continue
				}
			}
			if e := l.expr(arg); e != nil {
				call.Args = append(call.Args, e)
			}
		}
	}
	l.reflectiveImport(call)
	return call
}

// reflectiveImport records __import__("x") and importlib.import_module("x")
// as graph edges.
func (l *pyLowerer) reflectiveImport(call *syntax.Node) {
	reflective := call.Name == "__import__"
	dynamic := call.Name == "importlib.import_module" || call.Name == "import_module"
	if !reflective && !dynamic {
		return
	}
	imp := syntax.Import{Reflective: reflective, Dynamic: dynamic, Loc: call.Loc}
	if len(call.Args) > 0 && call.Args[0].Kind == syntax.KindLiteral && call.Args[0].Lit == syntax.LitString {
		imp.Name = call.Args[0].Text
	}
	l.add(imp)
}

// dotted flattens identifier/attribute chains to "a.b.c"; subscripts keep
// the object path. Non-static bases yield "".
func (l *pyLowerer) dotted(n *sitter.Node) string {
	switch n.Type() {
	case "identifier":
		return l.text(n)
	case "attribute":
		obj := n.ChildByFieldName("object")
		attr := n.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return ""
		}
		base := l.dotted(obj)
		if base == "" {
			return ""
		}
		return base + "." + l.text(attr)
	case "subscript":
		if v := n.ChildByFieldName("value"); v != nil {
			return l.dotted(v)
		}
	case "call":
		// db.cursor().execute keeps the receiver path.
		if fn := n.ChildByFieldName("function"); fn != nil {
			return l.dotted(fn)
		}
	}
	return ""
}

func (l *pyLowerer) fieldText(n *sitter.Node, field string) string {
	if f := n.ChildByFieldName(field); f != nil {
		return l.text(f)
	}
	return ""
}

func stripQuotes(s string) string {
	for _, prefix := range []string{"f", "r", "b", "u", "F", "R", "B", "U"} {
		s = strings.TrimPrefix(s, prefix)
	}
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}
