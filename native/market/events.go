package market

import (
	"encoding/hex"
	"strconv"

	"craftledger/core/types"
)

const (
	EventTypeJobCreated       = "market.job.created"
	EventTypeJobAssigned      = "market.job.assigned"
	EventTypeJobApplication   = "market.job.application"
	EventTypeJobStarted       = "market.job.started"
	EventTypeJobCancelled     = "market.job.cancelled"
	EventTypeJobCompleted     = "market.job.completed"
	EventTypeFundsReleased    = "market.job.funds_released"
	EventTypeDeadlineExtended = "market.job.deadline_extended"
	EventTypeBudgetIncreased  = "market.job.budget_increased"
)

// NewJobCreatedEvent returns the canonical event payload for a newly created
// job.
func NewJobCreatedEvent(j *Job) *types.Event {
	evt := newJobEvent(EventTypeJobCreated, j)
	if j != nil && j.Amount != nil {
		evt.Attributes["amount"] = j.Amount.String()
	}
	return evt
}

// NewJobAssignedEvent returns the canonical event payload emitted when an
// artisan is assigned to a job.
func NewJobAssignedEvent(j *Job) *types.Event {
	return withArtisan(newJobEvent(EventTypeJobAssigned, j), j)
}

// NewJobApplicationEvent returns the payload recording an artisan's
// application signal; the job itself is unchanged.
func NewJobApplicationEvent(j *Job, applicant [20]byte) *types.Event {
	evt := newJobEvent(EventTypeJobApplication, j)
	evt.Attributes["artisan"] = hex.EncodeToString(applicant[:])
	return evt
}

// NewJobStartedEvent returns the payload emitted when the assigned artisan
// begins work.
func NewJobStartedEvent(j *Job) *types.Event {
	return withArtisan(newJobEvent(EventTypeJobStarted, j), j)
}

// NewJobCancelledEvent returns the payload emitted when the finder cancels an
// open job and is refunded.
func NewJobCancelledEvent(j *Job) *types.Event {
	return newJobEvent(EventTypeJobCancelled, j)
}

// NewJobCompletedEvent returns the payload emitted when the artisan submits
// the work for review.
func NewJobCompletedEvent(j *Job) *types.Event {
	return withArtisan(newJobEvent(EventTypeJobCompleted, j), j)
}

// NewFundsReleasedEvent returns the payload emitted when escrowed funds are
// paid out to the artisan at settlement.
func NewFundsReleasedEvent(j *Job, amount string) *types.Event {
	evt := withArtisan(newJobEvent(EventTypeFundsReleased, j), j)
	evt.Attributes["amount"] = amount
	return evt
}

// NewDeadlineExtendedEvent returns the payload emitted when the finder grants
// additional time.
func NewDeadlineExtendedEvent(j *Job, extra int64) *types.Event {
	evt := newJobEvent(EventTypeDeadlineExtended, j)
	evt.Attributes["extraTime"] = strconv.FormatInt(extra, 10)
	if j != nil {
		evt.Attributes["newDeadline"] = strconv.FormatInt(j.Deadline, 10)
	}
	return evt
}

// NewBudgetIncreasedEvent returns the payload emitted when the finder locks
// additional collateral.
func NewBudgetIncreasedEvent(j *Job, added string) *types.Event {
	evt := newJobEvent(EventTypeBudgetIncreased, j)
	evt.Attributes["addedAmount"] = added
	if j != nil && j.Amount != nil {
		evt.Attributes["newAmount"] = j.Amount.String()
	}
	return evt
}

func newJobEvent(eventType string, j *Job) *types.Event {
	attrs := make(map[string]string)
	if j != nil {
		attrs["id"] = strconv.FormatUint(j.ID, 10)
		attrs["status"] = j.Status.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func withArtisan(evt *types.Event, j *Job) *types.Event {
	if j != nil && j.HasArtisan() {
		evt.Attributes["artisan"] = hex.EncodeToString(j.Artisan[:])
	}
	return evt
}
