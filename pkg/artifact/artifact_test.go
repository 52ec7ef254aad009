package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

func TestWriterCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "items.json")

	w, err := Create[item](path)
	require.NoError(t, err)
	require.NoError(t, w.Write(item{ID: 1, Text: "Сбер <b>"}))
	require.NoError(t, w.Write(item{ID: 2}))
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Commit())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []item
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []item{{ID: 1, Text: "Сбер <b>"}, {ID: 2}}, decoded)
	assert.Contains(t, string(data), "<b>", "html is not escaped")

	assert.ErrorIs(t, w.Write(item{}), ErrClosed)
}

func TestWriterEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, WriteAll[item](path, nil))

	items, err := ReadAll[item](path)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestWriterAbortRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")

	w, err := Create[item](path)
	require.NoError(t, err)
	require.NoError(t, w.Write(item{ID: 1}))
	assert.FileExists(t, path)

	w.Abort()
	w.Abort()
	assert.NoFileExists(t, path)
	assert.ErrorIs(t, w.Commit(), ErrClosed)
}

func TestReaderStreams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.json")
	require.NoError(t, WriteAll(path, []item{{ID: 1}, {ID: 2}, {ID: 3}}))

	r, err := Open[item](path)
	require.NoError(t, err)
	defer r.Close()

	var ids []int
	for {
		it, ok := r.Next()
		if !ok {
			break
		}
		ids = append(ids, it.ID)
	}
	require.NoError(t, r.Err())
	assert.Equal(t, []int{1, 2, 3}, ids)

	_, ok := r.Next()
	assert.False(t, ok, "reader is not restartable")
}

func TestReaderErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open[item](filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	notArray := filepath.Join(dir, "object.json")
	require.NoError(t, os.WriteFile(notArray, []byte(`{"id":1}`), 0o644))
	_, err = Open[item](notArray)
	assert.Error(t, err)

	truncated := filepath.Join(dir, "truncated.json")
	require.NoError(t, os.WriteFile(truncated, []byte(`[{"id":1},`), 0o644))
	items, err := ReadAll[item](truncated)
	assert.Error(t, err)
	assert.Equal(t, []item{{ID: 1}}, items)
}

func TestTextArtifacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "summary.txt")

	require.NoError(t, WriteText(path, "  итог\n"))
	assert.True(t, Exists(path))
	assert.False(t, Exists(filepath.Dir(path)))

	text, err := ReadText(path)
	require.NoError(t, err)
	assert.Equal(t, "итог", text)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "20240101_120000_parsed", BaseName("/tmp/x/20240101_120000_parsed.json"))
}
