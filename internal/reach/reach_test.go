package reach

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/crossflow/internal/syntax"
	"github.com/xkilldash9x/crossflow/internal/taint"
)

func pruner() *Pruner { return New(2 * time.Second) }

func guard(cond *syntax.Node) taint.Guard    { return taint.Guard{Cond: cond} }
func negGuard(cond *syntax.Node) taint.Guard { return taint.Guard{Cond: cond, Negated: true} }

func TestNoGuardsIsSatisfiable(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Satisfiable, pruner().Check(nil, nil))
}

func TestLiteralFalseGuard(t *testing.T) {
	t.Parallel()

	v := pruner().Check([]taint.Guard{guard(syntax.Bool(false))}, nil)
	assert.Equal(t, Unsatisfiable, v)

	v = pruner().Check([]taint.Guard{negGuard(syntax.Bool(true))}, nil)
	assert.Equal(t, Unsatisfiable, v)

	v = pruner().Check([]taint.Guard{guard(syntax.Bool(true))}, nil)
	assert.Equal(t, Satisfiable, v)
}

func TestContradictoryComparisons(t *testing.T) {
	t.Parallel()

	// x == 5 and x > 10 cannot hold together.
	guards := []taint.Guard{
		guard(syntax.Bin("==", syntax.Ident("x"), syntax.Int(5))),
		guard(syntax.Bin(">", syntax.Ident("x"), syntax.Int(10))),
	}
	assert.Equal(t, Unsatisfiable, pruner().Check(guards, nil))
}

func TestCompatibleComparisons(t *testing.T) {
	t.Parallel()

	guards := []taint.Guard{
		guard(syntax.Bin(">", syntax.Ident("x"), syntax.Int(10))),
		guard(syntax.Bin("<", syntax.Ident("x"), syntax.Int(20))),
	}
	assert.Equal(t, Satisfiable, pruner().Check(guards, nil))
}

func TestConstantForcesGuardFalse(t *testing.T) {
	t.Parallel()

	// flag = 5 earlier in the function; guard requires flag > 10.
	guards := []taint.Guard{guard(syntax.Bin(">", syntax.Ident("flag"), syntax.Int(10)))}
	v := pruner().Check(guards, map[string]int64{"flag": 5})
	assert.Equal(t, Unsatisfiable, v)

	v = pruner().Check(guards, map[string]int64{"flag": 15})
	assert.Equal(t, Satisfiable, v)
}

func TestNegatedGuardInteraction(t *testing.T) {
	t.Parallel()

	// not (x > 10) together with x == 15 is contradictory.
	guards := []taint.Guard{
		negGuard(syntax.Bin(">", syntax.Ident("x"), syntax.Int(10))),
		guard(syntax.Bin("==", syntax.Ident("x"), syntax.Int(15))),
	}
	assert.Equal(t, Unsatisfiable, pruner().Check(guards, nil))
}

func TestBooleanStructure(t *testing.T) {
	t.Parallel()

	// (x > 10 and x < 5) is internally contradictory.
	cond := syntax.Bin("and",
		syntax.Bin(">", syntax.Ident("x"), syntax.Int(10)),
		syntax.Bin("<", syntax.Ident("x"), syntax.Int(5)),
	)
	assert.Equal(t, Unsatisfiable, pruner().Check([]taint.Guard{guard(cond)}, nil))

	// (x > 10 or x < 5) is fine.
	cond = syntax.Bin("or",
		syntax.Bin(">", syntax.Ident("x"), syntax.Int(10)),
		syntax.Bin("<", syntax.Ident("x"), syntax.Int(5)),
	)
	assert.Equal(t, Satisfiable, pruner().Check([]taint.Guard{guard(cond)}, nil))
}

func TestStringEqualityConflicts(t *testing.T) {
	t.Parallel()

	guards := []taint.Guard{
		guard(syntax.Bin("==", syntax.Ident("mode"), syntax.Str("debug"))),
		guard(syntax.Bin("==", syntax.Ident("mode"), syntax.Str("release"))),
	}
	assert.Equal(t, Unsatisfiable, pruner().Check(guards, nil))

	guards = []taint.Guard{
		guard(syntax.Bin("==", syntax.Ident("mode"), syntax.Str("debug"))),
		guard(syntax.Bin("!=", syntax.Ident("mode"), syntax.Str("release"))),
	}
	assert.Equal(t, Satisfiable, pruner().Check(guards, nil))
}

func TestOpaqueGuardsFailOpen(t *testing.T) {
	t.Parallel()

	// Conditions the theory cannot model stay satisfiable.
	guards := []taint.Guard{
		guard(syntax.Ident("feature_enabled")),
		guard(syntax.Call("config.get", syntax.Str("strict"))),
	}
	assert.Equal(t, Satisfiable, pruner().Check(guards, nil))
}

func TestSameAtomBothPolarities(t *testing.T) {
	t.Parallel()

	cmp := syntax.Bin(">", syntax.Ident("n"), syntax.Int(0))
	guards := []taint.Guard{guard(cmp), negGuard(cmp)}
	assert.Equal(t, Unsatisfiable, pruner().Check(guards, nil))
}

func TestFlippedOperandOrder(t *testing.T) {
	t.Parallel()

	// 10 < x is the same atom as x > 10.
	guards := []taint.Guard{
		guard(syntax.Bin("<", syntax.Int(10), syntax.Ident("x"))),
		guard(syntax.Bin("==", syntax.Ident("x"), syntax.Int(3))),
	}
	assert.Equal(t, Unsatisfiable, pruner().Check(guards, nil))
}
