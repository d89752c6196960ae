package pending

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acctforge/internal/keys"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[TEST] ", log.LstdFlags)
}

func testRecord(account string) Record {
	return Record{
		AccountName: account,
		Seed:        "P5JtestSeedValue",
		Keys: map[string]keys.KeyPair{
			keys.RoleOwner: {PublicKey: "STMowner", PrivateWIF: "5Jowner"},
			keys.RoleMemo:  {PublicKey: "STMmemo", PrivateWIF: "5Jmemo"},
		},
		CreationTxID: "abc123",
		RequesterID:  "alice",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestAddGetRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	l, err := New(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, l.Add(testRecord("newuser1")))

	rec, ok := l.Get("newuser1")
	require.True(t, ok)
	assert.Equal(t, "alice", rec.RequesterID)
	assert.Equal(t, "P5JtestSeedValue", rec.Seed)

	require.NoError(t, l.Remove("newuser1"))
	_, ok = l.Get("newuser1")
	assert.False(t, ok)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	l, err := New(path, testLogger())
	require.NoError(t, err)

	assert.NoError(t, l.Remove("never-added"))
}

func TestAddReplacesDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	l, err := New(path, testLogger())
	require.NoError(t, err)

	first := testRecord("newuser1")
	first.RequesterID = "alice"
	require.NoError(t, l.Add(first))

	second := testRecord("newuser1")
	second.RequesterID = "bob"
	require.NoError(t, l.Add(second))

	all := l.ListAll()
	require.Len(t, all, 1)
	assert.Equal(t, "bob", all[0].RequesterID)
}

func TestSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	l, err := New(path, testLogger())
	require.NoError(t, err)

	require.NoError(t, l.Add(testRecord("newuser1")))
	require.NoError(t, l.Add(testRecord("newuser2")))

	reloaded, err := New(path, testLogger())
	require.NoError(t, err)

	all := reloaded.ListAll()
	require.Len(t, all, 2)
	assert.Equal(t, "newuser1", all[0].AccountName)
	assert.Equal(t, "newuser2", all[1].AccountName)

	rec, ok := reloaded.Get("newuser1")
	require.True(t, ok)
	assert.Equal(t, testRecord("newuser1").Keys, rec.Keys)
}

func TestFilePermissionsRestrictive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	l, err := New(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, l.Add(testRecord("newuser1")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
