package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupSchemasContainTypes(t *testing.T) {
	want := map[string][]string{
		"auth":    {"LoginRequest", "ErrorResponse"},
		"catalog": {"ProductInput", "Project"},
		"images":  {"ImageEntity", "UpdateStatusRequest", "Comparison"},
		"alerts":  {"AlertsResponse", "Result"},
	}
	for _, g := range groups() {
		schema := generateGroupSchema(g)
		defs, ok := schema["$defs"].(map[string]any)
		require.True(t, ok)
		for _, name := range want[g.Name] {
			assert.Contains(t, defs, name, "group %s", g.Name)
		}
	}
}

func TestWriteSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.json")
	require.NoError(t, writeSchema(map[string]any{"title": "X"}, path))
	assert.FileExists(t, path)
	assert.Equal(t, "Auth", capitalize("auth"))
}
