package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/crossflow/internal/reporting"
)

func writeFixtureProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	src := `def run():
    cmd = request.args.get("cmd")
    os.system(cmd)
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte(src), 0o644))
	return root
}

func TestAnalyzeCmd_JSONToStdout(t *testing.T) {
	root := writeFixtureProject(t)

	testRootCmd := newPristineRootCmd(t)
	var out, errOut bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&errOut)
	testRootCmd.SetArgs([]string{"analyze", root})

	err := testRootCmd.ExecuteContext(context.Background())
	require.NoError(t, err)

	var report reporting.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.True(t, report.Success)
	require.Len(t, report.Vulnerabilities, 1)
	assert.Equal(t, "CWE-78", report.Vulnerabilities[0].CWE)
	assert.Contains(t, errOut.String(), "Analysis complete")
}

func TestAnalyzeCmd_SARIFToFile(t *testing.T) {
	root := writeFixtureProject(t)
	outPath := filepath.Join(t.TempDir(), "report.sarif")

	testRootCmd := newPristineRootCmd(t)
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"analyze", root, "--format", "sarif", "--output", outPath})

	err := testRootCmd.ExecuteContext(context.Background())
	require.NoError(t, err)

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"2.1.0"`)
	assert.Contains(t, string(raw), "CWE-78")
}

func TestAnalyzeCmd_MissingPath(t *testing.T) {
	testRootCmd := newPristineRootCmd(t)
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"analyze"})

	err := testRootCmd.ExecuteContext(context.Background())
	assert.Error(t, err)
}

func TestAnalyzeCmd_InvalidFormatRejected(t *testing.T) {
	root := writeFixtureProject(t)

	testRootCmd := newPristineRootCmd(t)
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"analyze", root, "--format", "xml"})

	err := testRootCmd.ExecuteContext(context.Background())
	assert.Error(t, err)
}
