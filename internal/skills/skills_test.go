package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "skills.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAddAndGetByName(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	_, err := c.Add(ctx, "greet", "says hello", "Say hello to {{name}}", map[string]interface{}{"name": "string"}, []string{"demo"}, "user")
	require.NoError(t, err)

	s, ok, err := c.GetByName(ctx, "greet")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "greet", s.Name)
	require.Equal(t, []string{"demo"}, s.Tags)
	require.True(t, s.Active)
}

func TestGetByNameMissingReturnsNotOK(t *testing.T) {
	c := openTestCatalog(t)
	_, ok, err := c.GetByName(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestActiveOrdersByUsageDescending(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	_, err := c.Add(ctx, "a", "d", "p", nil, nil, "user")
	require.NoError(t, err)
	_, err = c.Add(ctx, "b", "d", "p", nil, nil, "user")
	require.NoError(t, err)

	require.NoError(t, c.IncrementUsage(ctx, "b"))
	require.NoError(t, c.IncrementUsage(ctx, "b"))
	require.NoError(t, c.IncrementUsage(ctx, "a"))

	active, err := c.Active(ctx, 10)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "b", active[0].Name)
	require.Equal(t, "a", active[1].Name)
}

func TestDeactivateExcludesFromActive(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	_, err := c.Add(ctx, "a", "d", "p", nil, nil, "user")
	require.NoError(t, err)
	require.NoError(t, c.Deactivate(ctx, "a"))

	active, err := c.Active(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestLoadDescriptorsDirAndSeed(t *testing.T) {
	dir := t.TempDir()
	yamlContent := "name: echo\ndescription: echoes input\nprompt_template: \"Echo: {{text}}\"\ntags: [utility]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.yaml"), []byte(yamlContent), 0o644))

	descriptors, err := LoadDescriptorsDir(dir)
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	require.Equal(t, "echo", descriptors[0].Name)

	c := openTestCatalog(t)
	require.NoError(t, c.Seed(context.Background(), descriptors))

	s, ok, err := c.GetByName(context.Background(), "echo")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "builtin", s.Source)

	// Seeding again should not duplicate or error.
	require.NoError(t, c.Seed(context.Background(), descriptors))
	n, err := c.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestLoadDescriptorsDirMissingDirIsEmpty(t *testing.T) {
	descriptors, err := LoadDescriptorsDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, descriptors)
}
