package market

import (
	"fmt"
	"math/big"
	"strings"
)

// JobStatus represents the lifecycle states of a marketplace job.
type JobStatus uint8

const (
	JobOpen JobStatus = iota
	JobAssigned
	JobInProgress
	JobPendingReview
	JobCompleted
	// JobDisputed is declared for forward compatibility; no transition
	// currently enters or leaves it.
	JobDisputed
	JobCancelled
)

// Valid reports whether the status value is within the supported range.
func (s JobStatus) Valid() bool {
	switch s {
	case JobOpen, JobAssigned, JobInProgress, JobPendingReview, JobCompleted, JobDisputed, JobCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further mutation.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}

func (s JobStatus) String() string {
	switch s {
	case JobOpen:
		return "open"
	case JobAssigned:
		return "assigned"
	case JobInProgress:
		return "in_progress"
	case JobPendingReview:
		return "pending_review"
	case JobCompleted:
		return "completed"
	case JobDisputed:
		return "disputed"
	case JobCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Job captures one escrowed engagement between a finder and an artisan. The
// zero artisan address means no artisan has been assigned yet, which holds
// exactly while the job is open. Amount is the value currently held in
// custody for the job.
type Job struct {
	ID        uint64
	Finder    [20]byte
	Artisan   [20]byte
	Token     string
	Amount    *big.Int
	Status    JobStatus
	StartTime int64
	EndTime   int64
	Deadline  int64
}

// HasArtisan reports whether an artisan has been assigned to the job.
func (j *Job) HasArtisan() bool {
	return j != nil && j.Artisan != ([20]byte{})
}

// Clone returns a deep copy of the job so callers can safely mutate the copy
// without affecting the stored instance.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	if j.Amount != nil {
		clone.Amount = new(big.Int).Set(j.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// NormalizeToken ensures the provided token symbol matches a supported value
// ("CRAFT" or "FORGE") and returns the canonical uppercase form.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	switch trimmed {
	case "CRAFT", "FORGE":
		return trimmed, nil
	default:
		return "", fmt.Errorf("unsupported escrow token: %s", symbol)
	}
}

// SanitizeJob validates and normalises the supplied job record, returning a
// cloned instance with canonical token casing and a non-nil amount field. The
// function does not mutate the original value.
func SanitizeJob(j *Job) (*Job, error) {
	if j == nil {
		return nil, fmt.Errorf("nil job")
	}
	clone := j.Clone()
	token, err := NormalizeToken(clone.Token)
	if err != nil {
		return nil, err
	}
	clone.Token = token
	if clone.Amount == nil {
		clone.Amount = big.NewInt(0)
	}
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("job amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid job status: %d", clone.Status)
	}
	if clone.Status == JobOpen && clone.HasArtisan() {
		return nil, fmt.Errorf("open job must not carry an artisan")
	}
	switch clone.Status {
	case JobAssigned, JobInProgress, JobPendingReview, JobCompleted:
		if !clone.HasArtisan() {
			return nil, fmt.Errorf("job in status %s requires an artisan", clone.Status)
		}
	}
	return clone, nil
}

// RoleArtisan is the registry role code an assignment candidate must hold.
const RoleArtisan uint8 = 3

// Profile is the read-only registry view the marketplace consults before
// assignment and application.
type Profile struct {
	Role         uint8
	MetadataHash string
	Verified     bool
	Blacklisted  bool
}

// RoleProvider resolves registry profiles for assignment candidates. The
// lookup is read-only; the marketplace never writes to the registry.
type RoleProvider interface {
	Profile(addr [20]byte) (*Profile, bool, error)
}
