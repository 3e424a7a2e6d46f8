package agentloop

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalEnvironment(t *testing.T) {
	dir := t.TempDir()
	env, err := NewLocalEnvironment(dir)
	require.NoError(t, err)

	abs, _ := filepath.Abs(dir)
	assert.Equal(t, abs, env.WorkingDir)
	assert.Equal(t, runtime.GOOS, env.Platform)
	assert.NotEmpty(t, env.Username)

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewLocalEnvironment(file)
	assert.ErrorContains(t, err, "not a directory")

	_, err = NewLocalEnvironment(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestBuildSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	env := Environment{WorkingDir: dir, Platform: "linux", OSVersion: "linux/amd64"}

	prompt := BuildSystemPrompt(env, "qwen/qwen3-235b-a22b")
	assert.True(t, strings.HasPrefix(prompt, BaseSystemPrompt))
	assert.Contains(t, prompt, "<environment>")
	assert.Contains(t, prompt, "Working directory: "+dir)
	assert.Contains(t, prompt, "Platform: linux")
	assert.Contains(t, prompt, "Model: qwen/qwen3-235b-a22b")
	assert.NotContains(t, prompt, "# Project Instructions")
}

func TestBuildSystemPromptIncludesAgentsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("Use tabs."), 0o644))

	prompt := BuildSystemPrompt(Environment{WorkingDir: dir}, "")
	assert.Contains(t, prompt, "# Project Instructions")
	assert.Contains(t, prompt, "Use tabs.")
	assert.NotContains(t, prompt, "Model:")
}

func TestDiscoverProjectDocsCapsSize(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("a", maxProjectDocBytes+100)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(big), 0o644))

	docs := DiscoverProjectDocs(dir)
	assert.Contains(t, docs, "[Project instructions truncated at 32KB]")
	assert.Less(t, len(docs), len(big)+200)
}

func TestCollectPathHierarchy(t *testing.T) {
	root := filepath.FromSlash("/a")
	target := filepath.FromSlash("/a/b/c")
	assert.Equal(t, []string{root, filepath.FromSlash("/a/b"), target}, collectPathHierarchy(root, target))
	assert.Equal(t, []string{root}, collectPathHierarchy(root, root))
}

func TestBaseSystemPromptListsTools(t *testing.T) {
	for _, name := range []string{ToolEditFile, ToolWriteFile, ToolReadFile} {
		assert.Contains(t, BaseSystemPrompt, `"`+name+`"`)
	}
}

func TestCollectPathHierarchyOutsideRoot(t *testing.T) {
	root := filepath.FromSlash("/a/b")
	assert.Equal(t, []string{root}, collectPathHierarchy(root, filepath.FromSlash("/c")))
}

func TestBuildEnvironmentContextOutsideRepository(t *testing.T) {
	ctx := BuildEnvironmentContext(Environment{WorkingDir: t.TempDir()}, "")
	assert.Contains(t, ctx, "Is git repository: false")
	assert.NotContains(t, ctx, "Git branch:")
}
