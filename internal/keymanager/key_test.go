package keymanager

import (
	"errors"
	"testing"

	"github.com/RevCBH/gafferd/internal/gafferr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyPopulatesReadFromReadNotWrite(t *testing.T) {
	k := NewKey("k1", "", map[string]any{
		"write": []string{"web"},
		"read":  []string{"worker"},
	})

	assert.True(t, k.CanWrite("web"))
	assert.NotContains(t, k.Read, "web")
	assert.True(t, k.CanRead("worker"))
}

func TestManageImpliesWriteImpliesRead(t *testing.T) {
	k := NewKey("k1", "", map[string]any{"manage": []string{"web"}})
	assert.True(t, k.CanManage("web"))
	assert.True(t, k.CanWrite("web"))
	assert.True(t, k.CanRead("web"))
}

func TestWildcardGrantsAllJobs(t *testing.T) {
	k := NewKey("k1", "", map[string]any{"read": []string{"*"}})
	assert.True(t, k.CanRead("anything"))
	assert.False(t, k.CanWrite("anything"))
}

func TestDottedSessionScopeMatchesSessionPrefix(t *testing.T) {
	k := NewKey("k1", "", map[string]any{"read": []string{"session1"}})
	assert.True(t, k.CanRead("session1.job1"))
	assert.False(t, k.CanRead("session2.job1"))
}

func TestExactScopeMatch(t *testing.T) {
	k := NewKey("k1", "", map[string]any{"read": []string{"web"}})
	assert.True(t, k.CanRead("web"))
	assert.False(t, k.CanRead("worker"))
}

func TestSuperuserBypassesAllChecks(t *testing.T) {
	k := NewKey("k1", "", map[string]any{"superuser": true})
	assert.True(t, k.CanManage("anything"))
	assert.True(t, k.CanRead("anything"))
}

func TestUnknownPermissionErrors(t *testing.T) {
	k := NewKey("k1", "", nil)
	_, err := k.Can("execute", "web")
	require.Error(t, err)
	var gerr *gafferr.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, gafferr.KindUnknownPermission, gerr.Kind)
}

func TestDummyKeyAlwaysAllows(t *testing.T) {
	d := NewDummyKey()
	assert.False(t, d.IsSuperuser())
	assert.False(t, d.CanCreateKey())
	assert.False(t, d.CanCreateUser())

	ok, err := d.Can("manage", "anything")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Can("nonsense-permission", "anything")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadRecordRequiresKeyField(t *testing.T) {
	_, err := LoadRecord(Record{Label: "no key here"})
	require.Error(t, err)
	var gerr *gafferr.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, gafferr.KindInvalidKey, gerr.Kind)
}

func TestDumpLoadRoundTrip(t *testing.T) {
	k := NewKey("k1", "admin", map[string]any{"write": []string{"web"}})
	rec := k.Dump()
	loaded, err := LoadRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, k.APIKey, loaded.APIKey)
	assert.Equal(t, k.Label, loaded.Label)
	assert.True(t, loaded.CanWrite("web"))
}
