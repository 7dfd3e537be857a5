package market

import (
	"errors"
	"fmt"
	"math/big"
)

// storage abstracts the subset of state manager functionality required by the
// job store.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	jobPrefix          = []byte("market/job/")
	jobCounterKey      = []byte("market/job-counter")
	registryAddressKey = []byte("market/registry-address")
)

func jobKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", jobPrefix, id))
}

// storedJob is the RLP-friendly persisted form of a Job. Timestamps are kept
// unsigned for encoding; they never go negative in practice.
type storedJob struct {
	ID        uint64
	Finder    [20]byte
	Artisan   [20]byte
	Token     string
	Amount    *big.Int
	Status    uint8
	StartTime uint64
	EndTime   uint64
	Deadline  uint64
}

// Store owns the job records and the monotonically increasing id counter.
type Store struct {
	state storage
}

// NewStore constructs a job store bound to the provided state backend.
func NewStore(state storage) *Store {
	return &Store{state: state}
}

// Counter returns the id of the most recently allocated job, zero when no job
// has been created yet.
func (s *Store) Counter() (uint64, error) {
	if s == nil || s.state == nil {
		return 0, errors.New("market: store not configured")
	}
	var counter uint64
	ok, err := s.state.KVGet(jobCounterKey, &counter)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return counter, nil
}

// AllocateID reserves the next job id and persists the advanced counter. Ids
// form a strictly increasing sequence starting at 1; they are never reused.
// The enclosing unit of work supplies the read-then-write atomicity.
func (s *Store) AllocateID() (uint64, error) {
	counter, err := s.Counter()
	if err != nil {
		return 0, err
	}
	id := counter + 1
	if err := s.state.KVPut(jobCounterKey, id); err != nil {
		return 0, err
	}
	return id, nil
}

// Put validates and persists the job record keyed by its id.
func (s *Store) Put(job *Job) error {
	if s == nil || s.state == nil {
		return errors.New("market: store not configured")
	}
	sanitized, err := SanitizeJob(job)
	if err != nil {
		return err
	}
	if sanitized.ID == 0 {
		return fmt.Errorf("market: job id must be positive")
	}
	stored := storedJob{
		ID:        sanitized.ID,
		Finder:    sanitized.Finder,
		Artisan:   sanitized.Artisan,
		Token:     sanitized.Token,
		Amount:    sanitized.Amount,
		Status:    uint8(sanitized.Status),
		StartTime: uint64(sanitized.StartTime),
		EndTime:   uint64(sanitized.EndTime),
		Deadline:  uint64(sanitized.Deadline),
	}
	return s.state.KVPut(jobKey(sanitized.ID), &stored)
}

// Get retrieves the job record stored under the id.
func (s *Store) Get(id uint64) (*Job, bool, error) {
	if s == nil || s.state == nil {
		return nil, false, errors.New("market: store not configured")
	}
	var stored storedJob
	ok, err := s.state.KVGet(jobKey(id), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	job := &Job{
		ID:        stored.ID,
		Finder:    stored.Finder,
		Artisan:   stored.Artisan,
		Token:     stored.Token,
		Amount:    stored.Amount,
		Status:    JobStatus(stored.Status),
		StartTime: int64(stored.StartTime),
		EndTime:   int64(stored.EndTime),
		Deadline:  int64(stored.Deadline),
	}
	if job.Amount == nil {
		job.Amount = big.NewInt(0)
	}
	return job, true, nil
}

// RegistryAddress reads the registry collaborator singleton.
func (s *Store) RegistryAddress() ([20]byte, bool, error) {
	if s == nil || s.state == nil {
		return [20]byte{}, false, errors.New("market: store not configured")
	}
	var addr [20]byte
	ok, err := s.state.KVGet(registryAddressKey, &addr)
	if err != nil {
		return [20]byte{}, false, err
	}
	return addr, ok, nil
}

// SetRegistryAddress writes the registry collaborator singleton.
func (s *Store) SetRegistryAddress(addr [20]byte) error {
	if s == nil || s.state == nil {
		return errors.New("market: store not configured")
	}
	return s.state.KVPut(registryAddressKey, &addr)
}
