package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	configPath, rootDir, backendType = "", "", ""
	verbose, noRepair = 1, false
	createMissing, leafFile, walkDepth, umount = false, "", 0, false

	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_PutCatLsTree(t *testing.T) {
	root := t.TempDir()

	out, err := execute(t, "", "-r", root, "put", "science.biology.cell_theory", "cells")
	require.NoError(t, err)
	assert.Equal(t, "science.biology.cell_theory\tleaf\t5 bytes\n", out)

	_, err = execute(t, "", "-r", root, "mkdir", "science.physics")
	require.NoError(t, err)

	out, err = execute(t, "", "-r", root, "cat", "science.biology.cell_theory")
	require.NoError(t, err)
	assert.Equal(t, "cells", out)

	out, err = execute(t, "", "-r", root, "ls", "science")
	require.NoError(t, err)
	assert.Equal(t, "biology (node)\nphysics (node)\n", out)

	out, err = execute(t, "", "-r", root, "tree")
	require.NoError(t, err)
	assert.Equal(t, ".\nscience\n  biology\n    cell_theory (5 bytes)\n  physics\n", out)

	out, err = execute(t, "", "-r", root, "tree", "science", "--depth", "1")
	require.NoError(t, err)
	assert.Equal(t, "science\nbiology\nphysics\n", out)

	assert.FileExists(t, filepath.Join(root, "science", "biology", "cell_theory.md"))
}

func TestCLI_PutContentSources(t *testing.T) {
	root := t.TempDir()

	_, err := execute(t, "from stdin\n", "-r", root, "put", "notes.stdin")
	require.NoError(t, err)
	out, err := execute(t, "", "-r", root, "cat", "notes.stdin")
	require.NoError(t, err)
	assert.Equal(t, "from stdin\n", out)

	src := filepath.Join(t.TempDir(), "src.md")
	require.NoError(t, os.WriteFile(src, []byte("# From file"), 0o644))
	_, err = execute(t, "", "-r", root, "put", "notes.file", "--file", src)
	require.NoError(t, err)
	out, err = execute(t, "", "-r", root, "cat", "notes.file")
	require.NoError(t, err)
	assert.Equal(t, "# From file", out)

	_, err = execute(t, "", "-r", root, "put", "notes.both", "text", "--file", src)
	assert.Error(t, err)
}

func TestCLI_Errors(t *testing.T) {
	root := t.TempDir()
	_, err := execute(t, "", "-r", root, "put", "a.b", "x")
	require.NoError(t, err)

	_, err = execute(t, "", "-r", root, "mkdir", "a.b.c")
	assert.ErrorIs(t, err, alight.ErrConflict)

	_, err = execute(t, "", "-r", root, "put", "a.b", "again")
	assert.ErrorIs(t, err, alight.ErrConflict)

	_, err = execute(t, "", "-r", root, "cat", "a.missing")
	assert.ErrorIs(t, err, alight.ErrNotFound)

	_, err = execute(t, "", "-r", root, "cat", "a..b")
	assert.ErrorIs(t, err, alight.ErrInvalidAddress)

	_, err = execute(t, "", "-r", root, "rm", "")
	assert.ErrorIs(t, err, alight.ErrInvalidAddress)

	_, err = execute(t, "", "-r", root, "-b", "nosuch", "ls")
	assert.Error(t, err)
}

func TestCLI_ResolveUpdateRm(t *testing.T) {
	root := t.TempDir()

	_, err := execute(t, "", "-r", root, "resolve", "x.y")
	assert.ErrorIs(t, err, alight.ErrNotFound)

	out, err := execute(t, "", "-r", root, "resolve", "x.y", "--create")
	require.NoError(t, err)
	assert.Equal(t, "x.y\tnode\n", out)

	_, err = execute(t, "", "-r", root, "put", "x.y.z", "one")
	require.NoError(t, err)
	_, err = execute(t, "", "-r", root, "update", "x.y.z", "two")
	require.NoError(t, err)
	out, err = execute(t, "", "-r", root, "cat", "x.y.z")
	require.NoError(t, err)
	assert.Equal(t, "two", out)

	_, err = execute(t, "", "-r", root, "update", "x.y.nope", "two")
	assert.ErrorIs(t, err, alight.ErrNotFound)

	_, err = execute(t, "", "-r", root, "rm", "x")
	require.NoError(t, err)
	out, err = execute(t, "", "-r", root, "ls")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoDirExists(t, filepath.Join(root, "x"))
}

func TestCLI_VerifyAndRepair(t *testing.T) {
	root := t.TempDir()
	_, err := execute(t, "", "-r", root, "put", "a", "text")
	require.NoError(t, err)

	out, err := execute(t, "", "-r", root, "verify")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	// Corrupt the store outside the tree: a directory next to the leaf file.
	require.NoError(t, os.Mkdir(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", ".alight"), nil, 0o644))

	out, err = execute(t, "", "-r", root, "verify")
	assert.ErrorIs(t, err, errViolations)
	assert.Contains(t, out, "DualArtifact at a")

	out, err = execute(t, "", "-r", root, "repair")
	require.NoError(t, err)
	assert.Contains(t, out, "repaired DualArtifact at a")
	assert.NoDirExists(t, filepath.Join(root, "a"))

	out, err = execute(t, "", "-r", root, "repair")
	require.NoError(t, err)
	assert.Equal(t, "nothing to repair\n", out)

	out, err = execute(t, "", "-r", root, "cat", "a")
	require.NoError(t, err)
	assert.Equal(t, "text", out)
}

func TestPrintRepairReport(t *testing.T) {
	vs := []alight.Violation{
		{Kind: alight.DualArtifact, Address: address.MustParse("a")},
		{Kind: alight.MissingMarker, Address: address.MustParse("b")},
	}

	var buf bytes.Buffer
	printRepairReport(&buf, vs, nil)
	assert.Equal(t, "repaired DualArtifact at a\nrepaired MissingMarker at b\n", buf.String())

	buf.Reset()
	printRepairReport(&buf, vs, errors.New("permission denied"))
	assert.Equal(t, "found DualArtifact at a\nfound MissingMarker at b\n", buf.String())
	assert.NotContains(t, buf.String(), "repaired")

	buf.Reset()
	printRepairReport(&buf, nil, errors.New("permission denied"))
	assert.Empty(t, buf.String())

	buf.Reset()
	printRepairReport(&buf, nil, nil)
	assert.Equal(t, "nothing to repair\n", buf.String())
}

func TestCLI_Import(t *testing.T) {
	root := t.TempDir()
	importPath := filepath.Join(t.TempDir(), "kb.yaml")
	require.NoError(t, os.WriteFile(importPath, []byte(`
requests:
  - type: node
    address: science.physics
  - type: leaf
    address: science.biology.cell_theory
    content: cells
tree:
  history:
    rome: SPQR
`), 0o644))

	out, err := execute(t, "", "-r", root, "import", importPath)
	require.NoError(t, err)
	assert.Equal(t, "applied 4 of 4 requests\n", out)

	out, err = execute(t, "", "-r", root, "cat", "history.rome")
	require.NoError(t, err)
	assert.Equal(t, "SPQR", out)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"requests": [{"type": "leaf", "address": "science.physics"}]}`), 0o644))
	out, err = execute(t, "", "-r", root, "import", bad)
	assert.Error(t, err)
	assert.Equal(t, "applied 0 of 1 requests\n", out)
}

func TestCLI_ConfigFileAndSnapshotBackend(t *testing.T) {
	root := t.TempDir()
	cfgFile := filepath.Join(t.TempDir(), "alight.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("root: "+root+"\nbackend: snapshot\nverbose: 1\n"), 0o644))

	_, err := execute(t, "", "-c", cfgFile, "put", "a.b", "snap")
	require.NoError(t, err)
	assert.Equal(t, "snapshot", cfg.Backend)
	assert.FileExists(t, filepath.Join(root, "Alight.json"))
	assert.NoFileExists(t, filepath.Join(root, "a", "b.md"))

	out, err := execute(t, "", "-c", cfgFile, "cat", "a.b")
	require.NoError(t, err)
	assert.Equal(t, "snap", out)

	// flags win over the file
	other := t.TempDir()
	_, err = execute(t, "", "-c", cfgFile, "-r", other, "-b", "fs", "--no-repair", "ls")
	require.NoError(t, err)
	assert.Equal(t, other, cfg.Root)
	assert.Equal(t, "fs", cfg.Backend)
	assert.False(t, cfg.AutoRepair)

	_, err = execute(t, "", "-c", filepath.Join(t.TempDir(), "missing.yaml"), "ls")
	assert.Error(t, err)
}
