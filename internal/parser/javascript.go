package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/xkilldash9x/crossflow/internal/syntax"
)

// JavaScript lowers tree-sitter's JavaScript grammar, covering both ES module
// imports and CommonJS require().
type JavaScript struct{}

func NewJavaScript() *JavaScript { return &JavaScript{} }

func (p *JavaScript) Extensions() []string { return []string{".js", ".mjs", ".cjs"} }

func (p *JavaScript) Parse(ctx context.Context, path, module string, src []byte) (*syntax.File, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
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

	l := &jsLowerer{file: file, src: src, path: path}
	l.program(root)
	return file, nil
}

type jsLowerer struct {
	file  *syntax.File
	src   []byte
	path  string
	depth int
}

func (l *jsLowerer) text(n *sitter.Node) string { return n.Content(l.src) }

func (l *jsLowerer) loc(n *sitter.Node) syntax.Location {
	return loc(n.StartPoint().Row, n.StartPoint().Column, l.path)
}

func (l *jsLowerer) program(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "function_declaration":
			l.function(child)
		case "export_statement":
			if decl := child.ChildByFieldName("declaration"); decl != nil && decl.Type() == "function_declaration" {
				l.function(decl)
			}
		default:
			if stmt := l.stmt(child); stmt != nil {
				l.file.Body = append(l.file.Body, stmt)
			}
		}
	}
}

func (l *jsLowerer) function(n *sitter.Node) {
	name := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if name == nil || body == nil {
		return
	}
	fn := &syntax.Function{Name: l.text(name), Loc: l.loc(n)}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p.Type() == "identifier" {
				fn.Params = append(fn.Params, l.text(p))
			}
		}
	}
	l.depth++
	fn.Body = l.block(body)
	l.depth--
	l.file.Functions = append(l.file.Functions, fn)
	l.file.Exports = append(l.file.Exports, fn.Name)
}

func (l *jsLowerer) block(n *sitter.Node) []*syntax.Node {
	var out []*syntax.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if stmt := l.stmt(n.NamedChild(i)); stmt != nil {
			out = append(out, stmt)
		}
	}
	return out
}

func (l *jsLowerer) stmt(n *sitter.Node) *syntax.Node {
	switch n.Type() {
	case "import_statement":
		l.importStmt(n)
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "variable_declarator" {
				if stmt := l.declarator(child); stmt != nil {
					return stmt
				}
			}
		}
	case "expression_statement":
		if n.NamedChildCount() > 0 {
			expr := n.NamedChild(0)
			if expr.Type() == "assignment_expression" {
				return l.assignment(expr)
			}
			return l.expr(expr)
		}
	case "if_statement":
		return l.ifStmt(n)
	case "while_statement", "do_statement":
		stmt := &syntax.Node{Kind: syntax.KindWhile, Loc: l.loc(n), Cond: l.condition(n.ChildByFieldName("condition"))}
		l.depth++
		if body := n.ChildByFieldName("body"); body != nil {
			stmt.Body = l.bodyOf(body)
		}
		l.depth--
		return stmt
	case "for_statement", "for_in_statement":
		stmt := &syntax.Node{Kind: syntax.KindWhile, Loc: l.loc(n), Cond: &syntax.Node{Kind: syntax.KindIdent, Name: "<iter>", Loc: l.loc(n)}}
		l.depth++
		if body := n.ChildByFieldName("body"); body != nil {
			stmt.Body = l.bodyOf(body)
		}
		l.depth--
		return stmt
	case "return_statement":
		ret := &syntax.Node{Kind: syntax.KindReturn, Loc: l.loc(n)}
		if n.NamedChildCount() > 0 {
			ret.Value = l.expr(n.NamedChild(0))
		}
		return ret
	case "function_declaration":
		l.function(n)
	case "statement_block":
		stmts := l.block(n)
		if len(stmts) == 1 {
			return stmts[0]
		}
		if len(stmts) > 1 {
			return &syntax.Node{Kind: syntax.KindIf, Loc: l.loc(n),
				Cond: &syntax.Node{Kind: syntax.KindLiteral, Text: "true", Lit: syntax.LitBool},
				Body: stmts}
		}
	}
	return nil
}

// bodyOf normalizes a single-statement or block body to a slice.
func (l *jsLowerer) bodyOf(n *sitter.Node) []*syntax.Node {
	if n.Type() == "statement_block" {
		return l.block(n)
	}
	if stmt := l.stmt(n); stmt != nil {
		return []*syntax.Node{stmt}
	}
	return nil
}

func (l *jsLowerer) importStmt(n *sitter.Node) {
	source := n.ChildByFieldName("source")
	if source == nil {
		return
	}
	module, dots := jsSpecifier(stripJSQuotes(l.text(source)))
	base := syntax.Import{Name: module, Dots: dots, Loc: l.loc(n)}

	clause := firstNamedOfType(n, "import_clause")
	if clause == nil {
		l.add(base)
		return
	}
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "identifier":
			// Default import binds like an aliased module import.
			imp := base
			imp.Alias = l.text(child)
			l.add(imp)
		case "namespace_import":
			imp := base
			if child.NamedChildCount() > 0 {
				imp.Alias = l.text(child.NamedChild(0))
			}
			l.add(imp)
		case "named_imports":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				imp := base
				if name := spec.ChildByFieldName("name"); name != nil {
					imp.From = l.text(name)
				}
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					imp.Alias = l.text(alias)
				}
				l.add(imp)
			}
		}
	}
}

func (l *jsLowerer) add(imp syntax.Import) {
	if l.depth > 0 {
		imp.Conditional = true
	}
	l.file.Imports = append(l.file.Imports, imp)
}

// declarator lowers "const x = expr", recognizing require() bindings.
func (l *jsLowerer) declarator(n *sitter.Node) *syntax.Node {
	name := n.ChildByFieldName("name")
	value := n.ChildByFieldName("value")
	if name == nil || name.Type() != "identifier" {
		return nil
	}
	if value != nil && value.Type() == "call_expression" {
		if callee := value.ChildByFieldName("function"); callee != nil && l.text(callee) == "require" {
			imp := syntax.Import{Alias: l.text(name), Loc: l.loc(n)}
			if args := value.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 0 {
				arg := args.NamedChild(0)
				if arg.Type() == "string" {
					imp.Name, imp.Dots = jsSpecifier(stripJSQuotes(l.text(arg)))
				} else {
					imp.Dynamic = true
				}
			}
			l.add(imp)
			return nil
		}
	}
	return &syntax.Node{Kind: syntax.KindAssign, Loc: l.loc(n), Name: l.text(name), Value: l.expr(value)}
}

func (l *jsLowerer) assignment(n *sitter.Node) *syntax.Node {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if left == nil || right == nil {
		return nil
	}
	target := ""
	switch left.Type() {
	case "identifier":
		target = l.text(left)
	case "member_expression":
		target = l.dotted(left)
	default:
		return nil
	}
	return &syntax.Node{Kind: syntax.KindAssign, Loc: l.loc(n), Name: target, Value: l.expr(right)}
}

func (l *jsLowerer) ifStmt(n *sitter.Node) *syntax.Node {
	stmt := &syntax.Node{Kind: syntax.KindIf, Loc: l.loc(n), Cond: l.condition(n.ChildByFieldName("condition"))}
	l.depth++
	defer func() { l.depth-- }()
	if body := n.ChildByFieldName("consequence"); body != nil {
		stmt.Body = l.bodyOf(body)
	}
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		// else_clause wraps either a block or a chained if.
		target := alt
		if alt.Type() == "else_clause" && alt.NamedChildCount() > 0 {
			target = alt.NamedChild(0)
		}
		if target.Type() == "if_statement" {
			stmt.Else = []*syntax.Node{l.ifStmt(target)}
		} else {
			stmt.Else = l.bodyOf(target)
		}
	}
	return stmt
}

// condition unwraps the parenthesized_expression around if/while conditions.
func (l *jsLowerer) condition(n *sitter.Node) *syntax.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "parenthesized_expression" && n.NamedChildCount() > 0 {
		return l.expr(n.NamedChild(0))
	}
	return l.expr(n)
}

func (l *jsLowerer) expr(n *sitter.Node) *syntax.Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier":
		return &syntax.Node{Kind: syntax.KindIdent, Name: l.text(n), Loc: l.loc(n)}
	case "member_expression", "subscript_expression":
		if name := l.dotted(n); name != "" {
			return &syntax.Node{Kind: syntax.KindIdent, Name: name, Loc: l.loc(n)}
		}
		return nil
	case "call_expression":
		return l.call(n)
	case "string":
		return &syntax.Node{Kind: syntax.KindLiteral, Lit: syntax.LitString, Text: stripJSQuotes(l.text(n)), Loc: l.loc(n)}
	case "template_string":
		return l.template(n)
	case "number":
		lit := syntax.LitInt
		if strings.ContainsAny(l.text(n), ".eE") {
			lit = syntax.LitFloat
		}
		return &syntax.Node{Kind: syntax.KindLiteral, Lit: lit, Text: l.text(n), Loc: l.loc(n)}
	case "true":
		return &syntax.Node{Kind: syntax.KindLiteral, Lit: syntax.LitBool, Text: "true", Loc: l.loc(n)}
	case "false":
		return &syntax.Node{Kind: syntax.KindLiteral, Lit: syntax.LitBool, Text: "false", Loc: l.loc(n)}
	case "null", "undefined":
		return &syntax.Node{Kind: syntax.KindLiteral, Lit: syntax.LitNone, Text: l.text(n), Loc: l.loc(n)}
	case "parenthesized_expression":
		if n.NamedChildCount() > 0 {
			return l.expr(n.NamedChild(0))
		}
		return nil
	case "binary_expression":
		op := l.fieldText(n, "operator")
		switch op {
		case "===":
			op = "=="
		case "!==":
			op = "!="
		}
		return &syntax.Node{
			Kind: syntax.KindBinary,
			Loc:  l.loc(n),
			Op:   op,
			X:    l.expr(n.ChildByFieldName("left")),
			Y:    l.expr(n.ChildByFieldName("right")),
		}
	case "unary_expression":
		op := l.fieldText(n, "operator")
		if op == "!" {
			op = "not"
		}
		return &syntax.Node{Kind: syntax.KindUnary, Op: op, X: l.expr(n.ChildByFieldName("argument")), Loc: l.loc(n)}
	case "await_expression":
		if n.NamedChildCount() > 0 {
			return l.expr(n.NamedChild(0))
		}
		return nil
	}
	return l.fold(n)
}

func (l *jsLowerer) fold(n *sitter.Node) *syntax.Node {
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

// template lowers a template string to the concatenation of its literal text
// and substitutions.
func (l *jsLowerer) template(n *sitter.Node) *syntax.Node {
	lit := &syntax.Node{Kind: syntax.KindLiteral, Lit: syntax.LitString, Text: l.text(n), Loc: l.loc(n)}
	var parts []*syntax.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "template_substitution" && child.NamedChildCount() > 0 {
			if e := l.expr(child.NamedChild(0)); e != nil {
				parts = append(parts, e)
			}
		}
	}
	acc := lit
	for _, p := range parts {
		acc = &syntax.Node{Kind: syntax.KindBinary, Op: "+", X: acc, Y: p, Loc: l.loc(n)}
	}
	return acc
}

func (l *jsLowerer) call(n *sitter.Node) *syntax.Node {
	callee := n.ChildByFieldName("function")
	argsNode := n.ChildByFieldName("arguments")
	call := &syntax.Node{Kind: syntax.KindCall, Loc: l.loc(n)}
	if callee != nil {
		if callee.Type() == "import" {
			// Dynamic import() expression.
			imp := syntax.Import{Dynamic: true, Loc: l.loc(n)}
			if argsNode != nil && argsNode.NamedChildCount() > 0 && argsNode.NamedChild(0).Type() == "string" {
				imp.Name, imp.Dots = jsSpecifier(stripJSQuotes(l.text(argsNode.NamedChild(0))))
			}
			l.add(imp)
		}
		call.Name = l.dotted(callee)
	}
	if argsNode != nil {
		for i := 0; i < int(argsNode.NamedChildCount()); i++ {
			if e := l.expr(argsNode.NamedChild(i)); e != nil {
				call.Args = append(call.Args, e)
			}
		}
	}
	return call
}

func (l *jsLowerer) dotted(n *sitter.Node) string {
	switch n.Type() {
	case "identifier", "property_identifier":
		return l.text(n)
	case "member_expression":
		obj := n.ChildByFieldName("object")
		prop := n.ChildByFieldName("property")
		if obj == nil || prop == nil {
			return ""
		}
		base := l.dotted(obj)
		if base == "" {
			return ""
		}
		return base + "." + l.text(prop)
	case "subscript_expression":
		if obj := n.ChildByFieldName("object"); obj != nil {
			return l.dotted(obj)
		}
	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil {
			return l.dotted(fn)
		}
	}
	return ""
}

func (l *jsLowerer) fieldText(n *sitter.Node, field string) string {
	if f := n.ChildByFieldName(field); f != nil {
		return l.text(f)
	}
	return ""
}

func firstNamedOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == typ {
			return child
		}
	}
	return nil
}

func stripJSQuotes(s string) string {
	for _, q := range []string{`"`, `'`, "`"} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2 {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// jsSpecifier maps a module specifier to a dotted name plus a relative
// depth: "./lib/db" is depth 1 (sibling), "../util" depth 2. Bare package
// specifiers stay as written with depth 0.
func jsSpecifier(spec string) (string, int) {
	dots := 0
	if strings.HasPrefix(spec, "./") {
		spec = strings.TrimPrefix(spec, "./")
		dots = 1
	}
	for strings.HasPrefix(spec, "../") {
		spec = strings.TrimPrefix(spec, "../")
		if dots == 0 {
			dots = 1
		}
		dots++
	}
	spec = strings.TrimSuffix(spec, ".js")
	spec = strings.TrimSuffix(spec, ".mjs")
	spec = strings.TrimSuffix(spec, ".cjs")
	return strings.ReplaceAll(spec, "/", "."), dots
}
