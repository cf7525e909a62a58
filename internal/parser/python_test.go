package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/crossflow/internal/syntax"
)

func parsePy(t *testing.T, src string) *syntax.File {
	t.Helper()
	f, err := NewPython().Parse(context.Background(), "app.py", "app", []byte(src))
	require.NoError(t, err)
	require.Equal(t, syntax.StatusOK, f.Status, f.Err)
	return f
}

func TestPythonImports(t *testing.T) {
	t.Parallel()

	f := parsePy(t, `
import helpers
import db as database
from models import User
from ..util import clean
from plugins import *
`)
	require.Len(t, f.Imports, 5)

	assert.Equal(t, "helpers", f.Imports[0].Name)
	assert.Empty(t, f.Imports[0].Alias)

	assert.Equal(t, "db", f.Imports[1].Name)
	assert.Equal(t, "database", f.Imports[1].Alias)

	assert.Equal(t, "models", f.Imports[2].Name)
	assert.Equal(t, "User", f.Imports[2].From)

	assert.Equal(t, "util", f.Imports[3].Name)
	assert.Equal(t, 2, f.Imports[3].Dots)
	assert.Equal(t, "clean", f.Imports[3].From)

	assert.Equal(t, "plugins", f.Imports[4].Name)
	assert.True(t, f.Imports[4].Wildcard)
}

func TestPythonConditionalAndReflectiveImports(t *testing.T) {
	t.Parallel()

	f := parsePy(t, `
def load():
    import audit
    mod = __import__("plugin")
    other = importlib.import_module("ext")
`)
	require.Len(t, f.Imports, 3)
	assert.Equal(t, "audit", f.Imports[0].Name)
	assert.True(t, f.Imports[0].Conditional)

	assert.Equal(t, "plugin", f.Imports[1].Name)
	assert.True(t, f.Imports[1].Reflective)

	assert.Equal(t, "ext", f.Imports[2].Name)
	assert.True(t, f.Imports[2].Dynamic)
}

func TestPythonFunctionLowering(t *testing.T) {
	t.Parallel()

	f := parsePy(t, `
def handler(req, limit=10):
    name = request.args.get("name")
    cursor.execute(name)
    return name
`)
	require.Len(t, f.Functions, 1)
	fn := f.Functions[0]
	assert.Equal(t, "handler", fn.Name)
	assert.Equal(t, []string{"req", "limit"}, fn.Params)
	require.Len(t, fn.Body, 3)

	assign := fn.Body[0]
	assert.Equal(t, syntax.KindAssign, assign.Kind)
	assert.Equal(t, "name", assign.Name)
	require.NotNil(t, assign.Value)
	assert.Equal(t, syntax.KindCall, assign.Value.Kind)
	assert.Equal(t, "request.args.get", assign.Value.Name)
	require.Len(t, assign.Value.Args, 1)
	assert.Equal(t, syntax.LitString, assign.Value.Args[0].Lit)
	assert.Equal(t, "name", assign.Value.Args[0].Text)

	call := fn.Body[1]
	assert.Equal(t, syntax.KindCall, call.Kind)
	assert.Equal(t, "cursor.execute", call.Name)
	assert.Equal(t, 4, call.Loc.Line)

	ret := fn.Body[2]
	assert.Equal(t, syntax.KindReturn, ret.Kind)
	require.NotNil(t, ret.Value)
	assert.Equal(t, "name", ret.Value.Name)
}

func TestPythonBranchLowering(t *testing.T) {
	t.Parallel()

	f := parsePy(t, `
def run(mode):
    if mode == "safe":
        x = 1
    elif mode == "fast":
        x = 2
    else:
        x = 3
`)
	require.Len(t, f.Functions, 1)
	require.Len(t, f.Functions[0].Body, 1)
	top := f.Functions[0].Body[0]
	require.Equal(t, syntax.KindIf, top.Kind)

	require.NotNil(t, top.Cond)
	assert.Equal(t, syntax.KindBinary, top.Cond.Kind)
	assert.Equal(t, "==", top.Cond.Op)
	assert.Equal(t, "mode", top.Cond.X.Name)
	assert.Equal(t, "safe", top.Cond.Y.Text)

	require.Len(t, top.Else, 1)
	elif := top.Else[0]
	require.Equal(t, syntax.KindIf, elif.Kind)
	assert.Equal(t, "fast", elif.Cond.Y.Text)
	require.Len(t, elif.Else, 1)
	assert.Equal(t, syntax.KindAssign, elif.Else[0].Kind)
}

func TestPythonBooleanAndNotOperators(t *testing.T) {
	t.Parallel()

	f := parsePy(t, `
def run(a, b):
    if a > 1 and not b:
        pass
`)
	cond := f.Functions[0].Body[0].Cond
	require.NotNil(t, cond)
	assert.Equal(t, "and", cond.Op)
	assert.Equal(t, ">", cond.X.Op)
	assert.Equal(t, syntax.KindUnary, cond.Y.Kind)
	assert.Equal(t, "not", cond.Y.Op)
}

func TestPythonFStringCarriesInterpolatedTaint(t *testing.T) {
	t.Parallel()

	f := parsePy(t, `
def run(name):
    q = f"SELECT * FROM users WHERE name = {name}"
    cursor.execute(q)
`)
	assign := f.Functions[0].Body[0]
	require.Equal(t, syntax.KindAssign, assign.Kind)
	require.NotNil(t, assign.Value)
	// The interpolation folds into a concatenation with the literal.
	assert.Equal(t, syntax.KindBinary, assign.Value.Kind)
}

func TestPythonSyntaxErrorStatus(t *testing.T) {
	t.Parallel()

	f, err := NewPython().Parse(context.Background(), "bad.py", "bad", []byte("def broken(:\n  pass"))
	require.NoError(t, err)
	assert.Equal(t, syntax.StatusSyntaxError, f.Status)
	assert.Empty(t, f.Functions)
}

func TestModuleName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pkg.web.views", ModuleName("pkg/web/views.py"))
	assert.Equal(t, "pkg", ModuleName("pkg/__init__.py"))
	assert.Equal(t, "lib.db", ModuleName("lib/db/index.js"))
	assert.Equal(t, "app", ModuleName("app.py"))
}
