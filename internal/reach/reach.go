// Package reach decides whether the branch conditions dominating a sink hit
// can all hold at once. Guard trees are lowered to propositional atoms over a
// SAT solver, with integer comparisons against the same variable bridged by
// pairwise theory lemmas. Anything outside the theory becomes a free atom, so
// the analysis fails open: only a proven contradiction discards a finding.
package reach

import (
	"fmt"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"

	"github.com/xkilldash9x/crossflow/internal/syntax"
	"github.com/xkilldash9x/crossflow/internal/taint"
)

// Verdict is the outcome of a reachability check.
type Verdict uint8

const (
	Satisfiable Verdict = iota
	Unsatisfiable
	Unknown
)

func (v Verdict) String() string {
	switch v {
	case Unsatisfiable:
		return "unsatisfiable"
	case Unknown:
		return "unknown"
	}
	return "satisfiable"
}

// Pruner runs per-finding feasibility checks with a solver budget.
type Pruner struct {
	timeout time.Duration
}

// New returns a Pruner; timeout bounds each individual solver call.
func New(timeout time.Duration) *Pruner {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &Pruner{timeout: timeout}
}

// atom is one comparison lowered to a SAT variable.
type atom struct {
	lit     z.Lit
	varName string
	op      string
	isInt   bool
	rhsInt  int64
	rhsStr  string
}

type encoder struct {
	g       *gini.Gini
	next    z.Var
	atoms   map[string]*atom
	byVar   map[string][]*atom
	freeIDs map[string]z.Lit
}

// Check reports whether the conjunction of guards is satisfiable given the
// integer constants known to hold at the sink.
func (p *Pruner) Check(guards []taint.Guard, consts map[string]int64) Verdict {
	if len(guards) == 0 {
		return Satisfiable
	}
	// Literal booleans need no solver.
	for _, gd := range guards {
		if b, ok := gd.Cond.IsLiteralBool(); ok && b == gd.Negated {
			return Unsatisfiable
		}
	}

	e := &encoder{
		g:       gini.New(),
		next:    1,
		atoms:   make(map[string]*atom),
		byVar:   make(map[string][]*atom),
		freeIDs: make(map[string]z.Lit),
	}
	for _, gd := range guards {
		lit := e.encode(gd.Cond)
		if gd.Negated {
			lit = lit.Not()
		}
		e.g.Add(lit)
		e.g.Add(z.LitNull)
	}
	e.fixConstants(consts)
	e.theoryLemmas()

	switch e.g.GoSolve().Try(p.timeout) {
	case -1:
		return Unsatisfiable
	case 1:
		return Satisfiable
	}
	return Unknown
}

func (e *encoder) fresh() z.Lit {
	lit := e.next.Pos()
	e.next++
	return lit
}

// encode lowers a condition tree to a literal. Boolean structure is encoded
// with auxiliary variables; leaves become theory atoms or free atoms.
func (e *encoder) encode(n *syntax.Node) z.Lit {
	if n == nil {
		return e.free("<nil>")
	}
	switch n.Kind {
	case syntax.KindLiteral:
		lit := e.fresh()
		if b, ok := n.IsLiteralBool(); ok && !b {
			e.g.Add(lit.Not())
		} else {
			e.g.Add(lit)
		}
		e.g.Add(z.LitNull)
		return lit
	case syntax.KindUnary:
		if n.Op == "not" || n.Op == "!" {
			return e.encode(n.X).Not()
		}
		return e.free(n.String())
	case syntax.KindBinary:
		switch n.Op {
		case "and", "&&":
			return e.gate(true, e.encode(n.X), e.encode(n.Y))
		case "or", "||":
			return e.gate(false, e.encode(n.X), e.encode(n.Y))
		case "==", "!=", "<", "<=", ">", ">=":
			return e.comparison(n)
		}
		return e.free(n.String())
	case syntax.KindIdent:
		return e.free("ident:" + n.Name)
	}
	return e.free(n.String())
}

// gate Tseitin-encodes c = a AND b (or OR when conj is false).
func (e *encoder) gate(conj bool, a, b z.Lit) z.Lit {
	c := e.fresh()
	if conj {
		e.clause(c.Not(), a)
		e.clause(c.Not(), b)
		e.clause(c, a.Not(), b.Not())
	} else {
		e.clause(c, a.Not())
		e.clause(c, b.Not())
		e.clause(c.Not(), a, b)
	}
	return c
}

func (e *encoder) clause(lits ...z.Lit) {
	for _, l := range lits {
		e.g.Add(l)
	}
	e.g.Add(z.LitNull)
}

// comparison canonicalizes to <ident> <op> <literal> and interns the atom so
// the same comparison everywhere shares one SAT variable.
func (e *encoder) comparison(n *syntax.Node) z.Lit {
	x, y, op := n.X, n.Y, n.Op
	if x != nil && y != nil && x.Kind == syntax.KindLiteral && y.Kind == syntax.KindIdent {
		x, y = y, x
		op = flip(op)
	}
	if x == nil || y == nil || x.Kind != syntax.KindIdent || y.Kind != syntax.KindLiteral {
		return e.free(n.String())
	}
	a := &atom{varName: x.Name, op: op}
	if v, ok := y.IntValue(); ok {
		a.isInt = true
		a.rhsInt = v
	} else if y.Lit == syntax.LitString {
		a.rhsStr = y.Text
	} else {
		return e.free(n.String())
	}

	key := fmt.Sprintf("%s|%s|%v|%d|%s", a.varName, a.op, a.isInt, a.rhsInt, a.rhsStr)
	if prev, ok := e.atoms[key]; ok {
		return prev.lit
	}
	a.lit = e.fresh()
	e.atoms[key] = a
	e.byVar[a.varName] = append(e.byVar[a.varName], a)
	return a.lit
}

// free returns a stable unconstrained literal for an out-of-theory leaf.
func (e *encoder) free(key string) z.Lit {
	if lit, ok := e.freeIDs[key]; ok {
		return lit
	}
	lit := e.fresh()
	e.freeIDs[key] = lit
	return lit
}

// fixConstants pins every atom over a variable with a known value to its
// evaluated truth.
func (e *encoder) fixConstants(consts map[string]int64) {
	for name, val := range consts {
		for _, a := range e.byVar[name] {
			if !a.isInt {
				// A known int never equals a string literal.
				if a.op == "==" {
					e.clause(a.lit.Not())
				} else if a.op == "!=" {
					e.clause(a.lit)
				}
				continue
			}
			if evalCmp(val, a.op, a.rhsInt) {
				e.clause(a.lit)
			} else {
				e.clause(a.lit.Not())
			}
		}
	}
}

// theoryLemmas adds pairwise consistency clauses between atoms that constrain
// the same variable: contradictory pairs get a blocking clause, subsumption
// gets an implication.
func (e *encoder) theoryLemmas() {
	for _, atoms := range e.byVar {
		for i := 0; i < len(atoms); i++ {
			for j := i + 1; j < len(atoms); j++ {
				e.relate(atoms[i], atoms[j])
			}
		}
	}
}

func (e *encoder) relate(a, b *atom) {
	if a.isInt != b.isInt {
		return
	}
	if !a.isInt {
		// String atoms: only equality against distinct literals conflicts.
		if a.op == "==" && b.op == "==" && a.rhsStr != b.rhsStr {
			e.clause(a.lit.Not(), b.lit.Not())
		}
		if a.op == "==" && b.op == "!=" {
			if a.rhsStr == b.rhsStr {
				e.clause(a.lit.Not(), b.lit.Not())
			} else {
				e.clause(a.lit.Not(), b.lit)
			}
		}
		if a.op == "!=" && b.op == "==" {
			e.relate(b, a)
		}
		return
	}
	la, ua, pa := interval(a.op, a.rhsInt)
	lb, ub, pb := interval(b.op, b.rhsInt)
	if pa && pb {
		if emptyIntersect(la, ua, lb, ub) {
			e.clause(a.lit.Not(), b.lit.Not())
		}
		if la >= lb && ua <= ub {
			e.clause(a.lit.Not(), b.lit)
		}
		if lb >= la && ub <= ua {
			e.clause(b.lit.Not(), a.lit)
		}
		return
	}
	// Disequality interactions with points.
	if a.op == "!=" && b.op == "==" {
		a, b = b, a
	}
	if a.op == "==" && b.op == "!=" {
		if a.rhsInt == b.rhsInt {
			e.clause(a.lit.Not(), b.lit.Not())
		} else {
			e.clause(a.lit.Not(), b.lit)
		}
	}
}

const (
	intMin = int64(-1) << 62
	intMax = int64(1) << 62
)

// interval maps an op to a closed range; ok is false for disequality, which
// is not an interval.
func interval(op string, c int64) (lo, hi int64, ok bool) {
	switch op {
	case "==":
		return c, c, true
	case "<":
		return intMin, c - 1, true
	case "<=":
		return intMin, c, true
	case ">":
		return c + 1, intMax, true
	case ">=":
		return c, intMax, true
	}
	return 0, 0, false
}

func emptyIntersect(la, ua, lb, ub int64) bool {
	lo, hi := la, ua
	if lb > lo {
		lo = lb
	}
	if ub < hi {
		hi = ub
	}
	return lo > hi
}

func evalCmp(lhs int64, op string, rhs int64) bool {
	switch op {
	case "==":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	case "<":
		return lhs < rhs
	case "<=":
		return lhs <= rhs
	case ">":
		return lhs > rhs
	case ">=":
		return lhs >= rhs
	}
	return false
}

func flip(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	}
	return op
}
