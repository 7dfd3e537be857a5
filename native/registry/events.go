package registry

import (
	"encoding/hex"
	"strconv"

	"craftledger/core/types"
)

const (
	EventTypeProfileRegistered = "registry.profile.registered"
	EventTypeProfileUpdated    = "registry.profile.updated"
	EventTypeProfileModerated  = "registry.profile.moderated"
)

// NewProfileRegisteredEvent returns the payload emitted when an identity
// self-registers.
func NewProfileRegisteredEvent(addr [20]byte, p *Profile) *types.Event {
	return newProfileEvent(EventTypeProfileRegistered, addr, p)
}

// NewProfileUpdatedEvent returns the payload emitted when an identity
// replaces its metadata hash.
func NewProfileUpdatedEvent(addr [20]byte, p *Profile) *types.Event {
	return newProfileEvent(EventTypeProfileUpdated, addr, p)
}

// NewProfileModeratedEvent returns the payload emitted when a curator or
// admin changes the subject's role or flags.
func NewProfileModeratedEvent(addr [20]byte, p *Profile) *types.Event {
	return newProfileEvent(EventTypeProfileModerated, addr, p)
}

func newProfileEvent(eventType string, addr [20]byte, p *Profile) *types.Event {
	attrs := map[string]string{
		"identity": hex.EncodeToString(addr[:]),
	}
	if p != nil {
		attrs["role"] = RoleName(p.Role)
		attrs["metadataHash"] = p.MetadataHash
		attrs["verified"] = strconv.FormatBool(p.Verified)
		attrs["blacklisted"] = strconv.FormatBool(p.Blacklisted)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
