package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/lazybin/format"
	"github.com/cloudcmds/lazybin/op"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	b := format.NewBuilder()
	hi := b.InternString("Hi")
	obj := b.AddObject([]op.Code{
		op.MakeString, op.Code(hi),
		op.ReturnConstant, 0,
	})
	_, err := b.AddUnit(format.UnitParams{
		Name:         "main",
		Filename:     "hello.py",
		Instructions: []op.Code{op.LazyLookup, 0, op.ReturnValue},
		Constants:    []int{obj},
	})
	require.NoError(t, err)
	data, err := b.Bytes()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "fixture.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	runErr := fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String(), runErr
}

func TestInfoCommand(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	path := writeFixture(t)
	cmd := newInfoCommand()
	cmd.SetArgs([]string{path})

	output, err := captureStdout(t, cmd.Execute)
	require.NoError(t, err)
	assert.Contains(t, output, "code units: 1")
	assert.Contains(t, output, "main")
	assert.Contains(t, output, "hello.py")
}

func TestDisCommand(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	path := writeFixture(t)
	cmd := newDisCommand()
	cmd.SetArgs([]string{path, "--object", "0"})

	output, err := captureStdout(t, cmd.Execute)
	require.NoError(t, err)
	assert.Contains(t, output, "MAKE_STRING")
	assert.Contains(t, output, `"Hi"`)
}

func TestStringsCommand(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	path := writeFixture(t)
	cmd := newStringsCommand()
	cmd.SetArgs([]string{path})

	output, err := captureStdout(t, cmd.Execute)
	require.NoError(t, err)
	assert.Contains(t, output, `"Hi"`)
	assert.Contains(t, output, `"main"`)
}

func TestVerifyCommand(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	path := writeFixture(t)
	cmd := newVerifyCommand()
	cmd.SetArgs([]string{path})

	output, err := captureStdout(t, cmd.Execute)
	require.NoError(t, err)
	assert.True(t, strings.Contains(output, "ok"))
}

func TestVerifyCommandMissingFile(t *testing.T) {
	cmd := newVerifyCommand()
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.bin")})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	_, err := captureStdout(t, cmd.Execute)
	require.Error(t, err)
}
