package keystore

import (
	"errors"
	"testing"

	"github.com/RevCBH/gafferd/internal/gafferr"
	"github.com/RevCBH/gafferd/internal/keymanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBackend(t *testing.T) *SQLite {
	t.Helper()
	b := NewSQLite(MemoryDSN)
	require.NoError(t, b.Open())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSQLiteSetAndGetKey(t *testing.T) {
	b := openTestBackend(t)
	rec := keymanager.Record{Key: "k1", Label: "svc", Permissions: map[string]any{"write": []any{"web"}}}

	require.NoError(t, b.SetKey("k1", rec, ""))

	got, err := b.GetKey("k1")
	require.NoError(t, err)
	assert.Equal(t, "svc", got.Label)
}

func TestSQLiteGetKeyNotFound(t *testing.T) {
	b := openTestBackend(t)
	_, err := b.GetKey("missing")
	require.Error(t, err)
	var gerr *gafferr.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, gafferr.KindKeyNotFound, gerr.Kind)
}

func TestSQLiteSetKeyConflict(t *testing.T) {
	b := openTestBackend(t)
	rec := keymanager.Record{Key: "k1"}
	require.NoError(t, b.SetKey("k1", rec, ""))

	err := b.SetKey("k1", rec, "")
	require.Error(t, err)
	var gerr *gafferr.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, gafferr.KindKeyConflict, gerr.Kind)
}

func TestSQLiteHasKey(t *testing.T) {
	b := openTestBackend(t)
	ok, err := b.HasKey("k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.SetKey("k1", keymanager.Record{Key: "k1"}, ""))
	ok, err = b.HasKey("k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteAllSubkeys(t *testing.T) {
	b := openTestBackend(t)
	require.NoError(t, b.SetKey("parent", keymanager.Record{Key: "parent"}, ""))
	require.NoError(t, b.SetKey("child1", keymanager.Record{Key: "child1"}, "parent"))
	require.NoError(t, b.SetKey("child2", keymanager.Record{Key: "child2"}, "parent"))

	subs, err := b.AllSubkeys("parent")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestSQLiteSetKeyRejectsMissingParent(t *testing.T) {
	b := openTestBackend(t)
	err := b.SetKey("child", keymanager.Record{Key: "child"}, "no-such-parent")
	require.Error(t, err)

	var gerr *gafferr.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, gafferr.KindKeyNotFound, gerr.Kind)

	ok, hasErr := b.HasKey("child")
	require.NoError(t, hasErr)
	assert.False(t, ok)
}

func TestSQLiteDeleteKey(t *testing.T) {
	b := openTestBackend(t)
	require.NoError(t, b.SetKey("k1", keymanager.Record{Key: "k1"}, ""))
	require.NoError(t, b.DeleteKey("k1"))

	_, err := b.GetKey("k1")
	assert.Error(t, err)
}

func TestSQLiteAllKeys(t *testing.T) {
	b := openTestBackend(t)
	require.NoError(t, b.SetKey("k1", keymanager.Record{Key: "k1"}, ""))
	require.NoError(t, b.SetKey("k2", keymanager.Record{Key: "k2"}, ""))

	all, err := b.AllKeys()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteOpenIsIdempotentOnExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/keys.db"

	b1 := NewSQLite(path)
	require.NoError(t, b1.Open())
	require.NoError(t, b1.SetKey("k1", keymanager.Record{Key: "k1"}, ""))
	require.NoError(t, b1.Close())

	// Re-opening an existing database file must still find (or recreate)
	// the schema.
	b2 := NewSQLite(path)
	require.NoError(t, b2.Open())
	defer b2.Close()

	got, err := b2.GetKey("k1")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.Key)
}
