package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLabels(t *testing.T) {
	path := writeFile(t, "class_names.json", `["Your Name", "Weathering with You", "Suzume"]`)

	labels, err := LoadLabels(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, labels.Len())
	assert.Equal(t, []string{"Your Name", "Weathering with You", "Suzume"}, labels.Names())
}

func TestLoadLabels_Failures(t *testing.T) {
	ctx := context.Background()

	_, err := LoadLabels(ctx, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadLabels(ctx, writeFile(t, "bad.json", `{"not": "a list"}`))
	assert.Error(t, err)

	_, err = LoadLabels(ctx, writeFile(t, "empty.json", `[]`))
	assert.Error(t, err)
}

func TestLabelSet_Immutable(t *testing.T) {
	names := []string{"a", "b"}
	labels := NewLabelSet(names)
	names[0] = "changed"

	got := labels.Names()
	assert.Equal(t, "a", got[0])
	got[1] = "changed"
	assert.Equal(t, []string{"a", "b"}, labels.Names())
}

func TestFallbackLabelSet(t *testing.T) {
	labels := FallbackLabelSet()
	assert.Equal(t, 5, labels.Len())
	assert.Equal(t, "Your Name", labels.Names()[4])
}

func TestValidateLabels(t *testing.T) {
	labels := NewLabelSet([]string{"a", "b", "c"})

	assert.NoError(t, ValidateLabels(labels, 3))
	assert.ErrorIs(t, ValidateLabels(labels, 4), ErrLabelWidthMismatch)
	assert.ErrorIs(t, ValidateLabels(labels, 2), ErrLabelWidthMismatch)
}
