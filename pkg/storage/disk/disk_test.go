package disk

import (
	"context"
	"io"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestSaveAndOpenRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	written, err := store.Save("docs/2026/report.pdf", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, "docs/2026/report.pdf", written)

	r, err := store.Open(written)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestSaveAvoidsCollision(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	first, err := store.Save("a/report.pdf", strings.NewReader("one"))
	require.NoError(t, err)

	second, err := store.Save("a/report.pdf", strings.NewReader("two"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(second, "a/report-"))
	assert.True(t, strings.HasSuffix(second, ".pdf"))

	r, err := store.Open(second)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestSaveTruncatesLongNamesPreservingExtension(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	longName := strings.Repeat("x", NameMax+100) + ".pdf"
	written, err := store.Save("long/"+longName, strings.NewReader("bytes"))
	require.NoError(t, err)

	name := path.Base(written)
	assert.LessOrEqual(t, len(name), NameMax)
	assert.True(t, strings.HasSuffix(name, ".pdf"))

	exists, err := store.Exists(written)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	written, err := store.Save("x/y.txt", strings.NewReader("z"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(written))
	require.NoError(t, store.Delete(written))

	exists, err := store.Exists(written)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRejectsEscapingPaths(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.Save("../evil.txt", strings.NewReader("nope"))
	assert.Error(t, err)

	_, err = store.Open("../../etc/passwd")
	assert.Error(t, err)
}

func TestWalkVisitsAllFiles(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	paths := []string{"a/one.txt", "a/b/two.txt", "three.txt"}
	for _, p := range paths {
		_, err := store.Save(p, strings.NewReader("data"))
		require.NoError(t, err)
	}

	seen := map[string]int64{}
	err := store.Walk(context.Background(), func(e Entry) error {
		seen[e.RelPath] = e.Size
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, seen, len(paths))
	for _, p := range paths {
		assert.Equal(t, int64(4), seen[p])
	}
}
