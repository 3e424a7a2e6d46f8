package patch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	osfs, err := NewOSFileSystem(dir)
	require.NoError(t, err)
	return NewEngine(osfs), dir
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestApplyUniqueMatch(t *testing.T) {
	engine, dir := newTestEngine(t)
	path := writeFixture(t, dir, "a.txt", "line1\nTARGET\nline3")

	out := engine.Apply(Request{Path: "a.txt", Search: "TARGET", Replace: "REPLACED"})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.True(t, out.OK())
	assert.NoError(t, out.Err())
	assert.Equal(t, "line1\nREPLACED\nline3", readFixture(t, path))
}

func TestApplyAmbiguous(t *testing.T) {
	engine, dir := newTestEngine(t)
	path := writeFixture(t, dir, "a.txt", "A B A")

	out := engine.Apply(Request{Path: "a.txt", Search: "A", Replace: "Z"})

	assert.Equal(t, StatusAmbiguous, out.Status)
	assert.Equal(t, 2, out.Occurrences)
	assert.Contains(t, out.Message, "occurs 2 times")
	assert.ErrorIs(t, out.Err(), ErrAmbiguous)
	assert.Equal(t, "A B A", readFixture(t, path))
}

func TestApplyNotFoundLeavesFileIdentical(t *testing.T) {
	engine, dir := newTestEngine(t)
	original := "alpha\n\tbeta  \ngamma\n"
	path := writeFixture(t, dir, "a.txt", original)

	out := engine.Apply(Request{Path: "a.txt", Search: "delta", Replace: "x"})

	assert.Equal(t, StatusNotFound, out.Status)
	assert.ErrorIs(t, out.Err(), ErrNotFound)
	assert.Equal(t, original, readFixture(t, path))
}

func TestApplyTwiceReturnsNotFound(t *testing.T) {
	engine, dir := newTestEngine(t)
	writeFixture(t, dir, "a.txt", "func old() {}\n")
	req := Request{Path: "a.txt", Search: "old", Replace: "renamed"}

	require.Equal(t, StatusSuccess, engine.Apply(req).Status)
	assert.Equal(t, StatusNotFound, engine.Apply(req).Status)
}

func TestApplyIsLiteral(t *testing.T) {
	engine, dir := newTestEngine(t)
	path := writeFixture(t, dir, "a.txt", "x := a.b(c)\ny := aXb(c)\n")

	out := engine.Apply(Request{Path: "a.txt", Search: "a.b(c)", Replace: "a.d(c)"})

	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "x := a.d(c)\ny := aXb(c)\n", readFixture(t, path))
}

func TestApplyCountsNonOverlapping(t *testing.T) {
	engine, dir := newTestEngine(t)
	path := writeFixture(t, dir, "a.txt", "aaa")

	// "aa" occurs once without overlap.
	out := engine.Apply(Request{Path: "a.txt", Search: "aa", Replace: "b"})

	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "ba", readFixture(t, path))
}

func TestApplyEmptySearchIsAmbiguous(t *testing.T) {
	engine, dir := newTestEngine(t)
	path := writeFixture(t, dir, "a.txt", "abc")

	out := engine.Apply(Request{Path: "a.txt", Search: "", Replace: "x"})

	assert.Equal(t, StatusAmbiguous, out.Status)
	assert.Equal(t, "abc", readFixture(t, path))
}

func TestApplyMissingFile(t *testing.T) {
	engine, _ := newTestEngine(t)

	out := engine.Apply(Request{Path: "missing.txt", Search: "a", Replace: "b"})

	assert.Equal(t, StatusIOError, out.Status)
	err := out.Err()
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestApplyWriteFailureKeepsContent(t *testing.T) {
	mem := &memFS{files: map[string]string{"a.txt": "one TWO three"}, writeErr: errors.New("disk full")}
	engine := NewEngine(mem)

	out := engine.Apply(Request{Path: "a.txt", Search: "TWO", Replace: "2"})

	assert.Equal(t, StatusIOError, out.Status)
	assert.Contains(t, out.Message, "disk full")
	assert.Equal(t, "one TWO three", mem.files["a.txt"])
}

func TestApplyPreservesMode(t *testing.T) {
	engine, dir := newTestEngine(t)
	path := writeFixture(t, dir, "run.sh", "#!/bin/sh\necho hi\n")
	require.NoError(t, os.Chmod(path, 0o755))

	require.Equal(t, StatusSuccess, engine.Apply(Request{Path: "run.sh", Search: "hi", Replace: "bye"}).Status)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestWriteCreatesParentsAndLeavesNoTempFiles(t *testing.T) {
	engine, dir := newTestEngine(t)

	require.NoError(t, engine.Write("nested/deep/out.txt", "hello"))
	require.NoError(t, engine.Write("nested/deep/out.txt", "hello again"))

	assert.Equal(t, "hello again", readFixture(t, filepath.Join(dir, "nested", "deep", "out.txt")))
	entries, err := os.ReadDir(filepath.Join(dir, "nested", "deep"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.txt", entries[0].Name())
}

func TestRead(t *testing.T) {
	engine, dir := newTestEngine(t)
	writeFixture(t, dir, "a.txt", "content\n")

	got, err := engine.Read("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "content\n", got)

	_, err = engine.Read("nope.txt")
	assert.ErrorIs(t, err, ErrIO)
}

func TestPathsOutsideRootAreRejected(t *testing.T) {
	engine, dir := newTestEngine(t)

	err := engine.Write("../escape.txt", "x")
	assert.ErrorIs(t, err, ErrIO)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))

	out := engine.Apply(Request{Path: "/etc/hostname", Search: "a", Replace: "b"})
	assert.Equal(t, StatusIOError, out.Status)
}

func TestAbsolutePathInsideRoot(t *testing.T) {
	engine, dir := newTestEngine(t)
	path := writeFixture(t, dir, "a.txt", "x")

	require.NoError(t, engine.Write(path, "y"))
	assert.Equal(t, "y", readFixture(t, path))
}

type memFS struct {
	files    map[string]string
	writeErr error
}

func (m *memFS) ReadFile(path string) ([]byte, error) {
	content, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(content), nil
}

func (m *memFS) WriteFileAtomic(path string, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.files[path] = string(data)
	return nil
}
