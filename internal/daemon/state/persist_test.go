package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/dgbowl/tomato/internal/tomato"
)

func TestPersistRestore_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := StatePath(dir, 9001)

	s, err := New()
	require.NoError(t, err)
	require.NoError(t, s.PutPipeline(tomato.Pipeline{Name: "pip-c", Ready: true}))
	require.NoError(t, s.PutDevice(tomato.Device{Name: "counter-1", Driver: "counter", Channels: []int{1}}))
	require.NoError(t, s.PutJob(tomato.Job{ID: 5, Status: tomato.JobQueued}))
	s.SetPort(9001)

	require.NoError(t, s.Persist(path))

	restored, err := New()
	require.NoError(t, err)
	found, err := restored.RestoreFile(path)
	require.NoError(t, err)
	require.True(t, found)

	p, ok := restored.Pipeline("pip-c")
	require.True(t, ok)
	require.True(t, p.Ready)

	require.Equal(t, 9001, restored.Port())
	require.Equal(t, 6, restored.AllocateJobID())
}

func TestRestoreFile_MissingFileIsNotAnError(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	found, err := s.RestoreFile(filepath.Join(t.TempDir(), "does-not-exist.db"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestRestoreFile_RejectsNewerMajorSchema(t *testing.T) {
	dir := t.TempDir()
	path := StatePath(dir, 9002)

	s, err := New()
	require.NoError(t, err)
	require.NoError(t, s.Persist(path))

	db, err := bolt.Open(path, 0o644, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(txn *bolt.Tx) error {
		meta := txn.Bucket(bucketMeta)
		return meta.Put(keyVersion, []byte("99.0.0"))
	}))
	require.NoError(t, db.Close())

	restored, err := New()
	require.NoError(t, err)
	_, err = restored.RestoreFile(path)
	require.Error(t, err)
}

func TestCheckVersion_AcceptsEmptyAndSameVersion(t *testing.T) {
	require.NoError(t, checkVersion(nil))
	require.NoError(t, checkVersion([]byte("1.0.0")))
}
