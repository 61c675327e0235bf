package state

import (
	"fmt"
	"os"
	"path/filepath"

	msgpack "github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/hashicorp/go-version"
	bolt "go.etcd.io/bbolt"

	"github.com/dgbowl/tomato/internal/tomato"
)

// schemaVersion is bumped whenever the on-disk Snapshot shape changes
// incompatibly. Restore refuses to load a file stamped with a newer
// major version than the running binary understands.
const schemaVersion = "1.0.0"

var (
	bucketMeta  = []byte("meta")
	bucketState = []byte("state")
	keyVersion  = []byte("version")
	keySnapshot = []byte("snapshot")
)

// StatePath returns the path of the persisted state file for a given
// daemon port, mirroring the source's per-port state file naming so
// multiple daemons can share a data directory without colliding.
func StatePath(dataDir string, port int) string {
	return filepath.Join(dataDir, fmt.Sprintf("tomato_state_%d.db", port))
}

// Persist serialises the current snapshot to path, truncating any
// previous contents. Called on graceful daemon stop (§4.1.2).
func (s *Store) Persist(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("state: mkdir: %w", err)
	}
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return fmt.Errorf("state: open %s: %w", path, err)
	}
	defer db.Close()

	snap := s.Snapshot()
	var buf []byte
	enc := msgpack.NewEncoderBytes(&buf, msgpackHandle)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("state: encode snapshot: %w", err)
	}

	return db.Update(func(txn *bolt.Tx) error {
		meta, err := txn.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if err := meta.Put(keyVersion, []byte(schemaVersion)); err != nil {
			return err
		}
		data, err := txn.CreateBucketIfNotExists(bucketState)
		if err != nil {
			return err
		}
		return data.Put(keySnapshot, buf)
	})
}

// RestoreFile loads a previously persisted snapshot from path into the
// store and returns true if a file was found. A missing file is not an
// error: spec §4.1.2 only loads state "if such a file exists".
func (s *Store) RestoreFile(path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return false, fmt.Errorf("state: open %s: %w", path, err)
	}
	defer db.Close()

	var buf []byte
	err = db.View(func(txn *bolt.Tx) error {
		meta := txn.Bucket(bucketMeta)
		if meta != nil {
			if err := checkVersion(meta.Get(keyVersion)); err != nil {
				return err
			}
		}
		data := txn.Bucket(bucketState)
		if data == nil {
			return fmt.Errorf("state: %s has no state bucket", path)
		}
		raw := data.Get(keySnapshot)
		if raw == nil {
			return fmt.Errorf("state: %s has no snapshot", path)
		}
		buf = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return false, err
	}

	var snap tomato.Snapshot
	dec := msgpack.NewDecoderBytes(buf, msgpackHandle)
	if err := dec.Decode(&snap); err != nil {
		return false, fmt.Errorf("state: decode snapshot: %w", err)
	}
	if err := s.Restore(snap); err != nil {
		return false, fmt.Errorf("state: restore: %w", err)
	}
	return true, nil
}

func checkVersion(raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	stored, err := version.NewVersion(string(raw))
	if err != nil {
		return fmt.Errorf("state: unparsable schema version %q: %w", raw, err)
	}
	running, err := version.NewVersion(schemaVersion)
	if err != nil {
		return err
	}
	if stored.Segments()[0] > running.Segments()[0] {
		return fmt.Errorf("state: file schema %s is newer than supported %s", stored, running)
	}
	return nil
}

var msgpackHandle = &msgpack.MsgpackHandle{}
