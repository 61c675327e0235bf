// Package state holds the daemon's authoritative view of the cluster:
// pipelines, devices, drivers, and jobs, backed by an in-memory memdb
// database, plus the on-disk snapshot persistence described in spec
// §4.1.2. All methods are safe only when called from a single goroutine
// at a time (the daemon's serialised command loop enforces this; see
// internal/daemon.Daemon.Run).
package state

import (
	"sync"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/dgbowl/tomato/internal/tomato"
)

// Store is the daemon's authoritative state.
type Store struct {
	db *memdb.MemDB

	mu        sync.Mutex // guards the scalar fields below only
	status    tomato.DaemonStatus
	port      int
	nextJobID int
}

// New creates an empty Store in bootstrap status.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, err
	}
	return &Store{db: db, status: tomato.DaemonBootstrap, nextJobID: 1}, nil
}

func (s *Store) Status() tomato.DaemonStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Store) SetStatus(st tomato.DaemonStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func (s *Store) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *Store) SetPort(p int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.port = p
}

// AllocateJobID returns the next job id and advances the counter,
// maintaining invariant 4: job ids are strictly increasing and the
// counter never decreases.
func (s *Store) AllocateJobID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextJobID
	s.nextJobID++
	return id
}

func (s *Store) peekNextJobID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextJobID
}

func (s *Store) setNextJobID(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.nextJobID {
		s.nextJobID = v
	}
}

// --- Pipelines ---------------------------------------------------------

func (s *Store) Pipeline(name string) (tomato.Pipeline, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First("pipeline", "id", name)
	if err != nil || raw == nil {
		return tomato.Pipeline{}, false
	}
	return raw.(tomato.Pipeline), true
}

func (s *Store) Pipelines() map[string]tomato.Pipeline {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get("pipeline", "id")
	if err != nil {
		return map[string]tomato.Pipeline{}
	}
	out := map[string]tomato.Pipeline{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		p := raw.(tomato.Pipeline)
		out[p.Name] = p
	}
	return out
}

func (s *Store) PutPipeline(p tomato.Pipeline) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert("pipeline", p); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) DeletePipeline(name string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if p, ok := s.Pipeline(name); ok {
		if err := txn.Delete("pipeline", p); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

// --- Devices -------------------------------------------------------------

func (s *Store) Device(name string) (tomato.Device, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First("device", "id", name)
	if err != nil || raw == nil {
		return tomato.Device{}, false
	}
	return raw.(tomato.Device), true
}

func (s *Store) Devices() map[string]tomato.Device {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get("device", "id")
	if err != nil {
		return map[string]tomato.Device{}
	}
	out := map[string]tomato.Device{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		d := raw.(tomato.Device)
		out[d.Name] = d
	}
	return out
}

func (s *Store) PutDevice(d tomato.Device) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert("device", d); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) DeleteDevice(name string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if d, ok := s.Device(name); ok {
		if err := txn.Delete("device", d); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

// --- Drivers -------------------------------------------------------------

func (s *Store) Driver(name string) (tomato.Driver, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First("driver", "id", name)
	if err != nil || raw == nil {
		return tomato.Driver{}, false
	}
	return raw.(tomato.Driver), true
}

func (s *Store) Drivers() map[string]tomato.Driver {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get("driver", "id")
	if err != nil {
		return map[string]tomato.Driver{}
	}
	out := map[string]tomato.Driver{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		d := raw.(tomato.Driver)
		out[d.Name] = d
	}
	return out
}

func (s *Store) PutDriver(d tomato.Driver) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert("driver", d); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// --- Jobs ------------------------------------------------------------------

func (s *Store) Job(id int) (tomato.Job, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First("job", "id", id)
	if err != nil || raw == nil {
		return tomato.Job{}, false
	}
	return raw.(tomato.Job), true
}

func (s *Store) Jobs() map[int]tomato.Job {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get("job", "id")
	if err != nil {
		return map[int]tomato.Job{}
	}
	out := map[int]tomato.Job{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		j := raw.(tomato.Job)
		out[j.ID] = j
	}
	return out
}

func (s *Store) JobsByStatus(statuses ...tomato.JobStatus) []tomato.Job {
	want := map[tomato.JobStatus]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	var out []tomato.Job
	for _, j := range s.Jobs() {
		if want[j.Status] {
			out = append(out, j)
		}
	}
	return out
}

func (s *Store) PutJob(j tomato.Job) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert("job", j); err != nil {
		return err
	}
	txn.Commit()
	s.setNextJobID(j.ID + 1)
	return nil
}

// Snapshot returns a deep copy of the full state, the Go form of
// `status(with_data=true)` (§4.1): "read the truth once, operate on the
// snapshot".
func (s *Store) Snapshot() tomato.Snapshot {
	snap := tomato.Snapshot{
		Status:    s.Status(),
		Port:      s.Port(),
		NextJobID: s.peekNextJobID(),
		Pipelines: s.Pipelines(),
		Devices:   s.Devices(),
		Drivers:   s.Drivers(),
		Jobs:      s.Jobs(),
	}
	return snap.Clone()
}

// Restore replaces all table contents and scalar counters from a loaded
// snapshot (used when booting from a persisted state file, §4.1.2).
func (s *Store) Restore(snap tomato.Snapshot) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	for _, p := range snap.Pipelines {
		if err := txn.Insert("pipeline", p); err != nil {
			return err
		}
	}
	for _, d := range snap.Devices {
		if err := txn.Insert("device", d); err != nil {
			return err
		}
	}
	for _, d := range snap.Drivers {
		if err := txn.Insert("driver", d); err != nil {
			return err
		}
	}
	for _, j := range snap.Jobs {
		if err := txn.Insert("job", j); err != nil {
			return err
		}
	}
	txn.Commit()
	s.SetPort(snap.Port)
	s.setNextJobID(snap.NextJobID)
	return nil
}
