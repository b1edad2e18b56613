package requests

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumineer/alight"
)

func TestUnmarshal_YAML(t *testing.T) {
	t.Parallel()
	data := []byte(`
requests:
  - type: node
    address: science
  - type: leaf
    address: science.biology.cell_theory
    content: |
      All living organisms are composed of cells.
tree:
  history:
    rome: SPQR
    greece:
  art.baroque:
`)
	reqs, err := Unmarshal(data, ".yaml", t.TempDir())
	require.NoError(t, err)

	want := []alight.CreateRequest{
		&alight.NodeCreateRequest{Address: "science"},
		&alight.LeafCreateRequest{Address: "science.biology.cell_theory", Content: "All living organisms are composed of cells.\n"},
		&alight.NodeCreateRequest{Address: "art.baroque"},
		&alight.NodeCreateRequest{Address: "history"},
		&alight.NodeCreateRequest{Address: "history.greece"},
		&alight.LeafCreateRequest{Address: "history.rome", Content: "SPQR"},
	}
	assert.Equal(t, want, reqs)
}

func TestUnmarshal_JSON(t *testing.T) {
	t.Parallel()
	data := []byte(`{
		"requests": [{"type": "leaf", "address": "a.b"}],
		"tree": {"x": {"y": "z"}}
	}`)
	reqs, err := Unmarshal(data, ".JSON", "")
	require.NoError(t, err)
	assert.Equal(t, []alight.CreateRequest{
		&alight.LeafCreateRequest{Address: "a.b"},
		&alight.NodeCreateRequest{Address: "x"},
		&alight.LeafCreateRequest{Address: "x.y", Content: "z"},
	}, reqs)
}

func TestUnmarshal_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
		ext  string
	}{
		{"unknown format", `requests: []`, ".toml"},
		{"bad yaml", "requests: [", ".yaml"},
		{"bad json", "{", ".json"},
		{"bad address", `{"requests": [{"type": "node", "address": "a b"}]}`, ".json"},
		{"unknown type", `{"requests": [{"type": "link", "address": "a"}]}`, ".json"},
		{"node with content", `{"requests": [{"type": "node", "address": "a", "content": "x"}]}`, ".json"},
		{"leaf with both", `{"requests": [{"type": "leaf", "address": "a", "content": "x", "file": "f"}]}`, ".json"},
		{"missing file", `{"requests": [{"type": "leaf", "address": "a", "file": "nope.md"}]}`, ".json"},
		{"bad tree key", "tree:\n  bad-key: x\n", ".yaml"},
		{"bad tree value", "tree:\n  list: [1, 2]\n", ".yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Unmarshal([]byte(tt.data), tt.ext, t.TempDir())
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_ContentFromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes", "cell.md"), []byte("# Cell theory\n"), 0o644))
	importPath := filepath.Join(dir, "import.yml")
	require.NoError(t, os.WriteFile(importPath, []byte(`
requests:
  - type: leaf
    address: science.cell_theory
    file: notes/cell.md
`), 0o644))

	reqs, err := LoadFile(importPath)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	leaf, ok := reqs[0].(*alight.LeafCreateRequest)
	require.True(t, ok)
	assert.Equal(t, "# Cell theory\n", leaf.Content)
	assert.Equal(t, alight.LeafRequestType, leaf.GetType())
	assert.Equal(t, "science.cell_theory", leaf.GetAddress())
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValueOrDefault(t *testing.T) {
	s := "set"
	assert.Equal(t, "set", valueOrDefault(&s, "default"))
	assert.Equal(t, "default", valueOrDefault(nil, "default"))
}
