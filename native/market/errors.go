package market

import "errors"

var (
	// ErrJobNotFound marks lookups for job ids that were never allocated.
	ErrJobNotFound = errors.New("market: job not found")
	// ErrProfileNotFound is returned when an assignment candidate has no
	// registry profile.
	ErrProfileNotFound = errors.New("market: registry profile not found")
	// ErrAlreadyInitialized is returned when the registry address singleton
	// has already been written.
	ErrAlreadyInitialized = errors.New("market: already initialized")
	// ErrNotInitialized is returned when an operation requires the registry
	// address singleton before it has been set.
	ErrNotInitialized = errors.New("market: registry not configured")
	// ErrUnauthorized marks callers that carry no authenticated identity.
	ErrUnauthorized = errors.New("market: unauthorized caller")
	// ErrNotOwner marks authenticated callers that are not the actor the
	// operation demands (the job's finder or artisan).
	ErrNotOwner = errors.New("market: caller is not the job owner")
	// ErrInvalidState marks operations that are not legal for the job's
	// current status.
	ErrInvalidState = errors.New("market: operation not valid in current status")
	// ErrPolicyViolation marks assignment candidates whose registry profile
	// fails the role or blacklist policy.
	ErrPolicyViolation = errors.New("market: candidate violates registry policy")
	// ErrTimingNotElapsed is returned when settlement is requested before the
	// review window has passed.
	ErrTimingNotElapsed = errors.New("market: review window not elapsed")
	// ErrInvalidAmount marks non-positive escrow amounts.
	ErrInvalidAmount = errors.New("market: amount must be positive")
	// ErrInsufficientBalance is returned when an escrow lock exceeds the
	// payer's token balance.
	ErrInsufficientBalance = errors.New("market: insufficient balance")
)
