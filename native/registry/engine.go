package registry

import (
	"errors"
	"fmt"
	"strings"

	"craftledger/core/events"
	"craftledger/core/types"
)

// storage abstracts the subset of state manager functionality required by the
// registry.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var profilePrefix = []byte("registry/profile/")

func profileKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", profilePrefix, addr))
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Engine owns the registry profiles: self-registration, metadata updates and
// the curator/admin moderation surface that issues roles and the
// verification/blacklist flags.
type Engine struct {
	state   storage
	emitter events.Emitter
	admin   [20]byte
}

// NewEngine constructs a registry engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state storage) { e.state = state }

// SetAdmin configures the bootstrap admin identity that may always moderate.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(registryEvent{evt: event})
}

func (e *Engine) readProfile(addr [20]byte) (*Profile, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errors.New("registry engine: state not configured")
	}
	var profile Profile
	ok, err := e.state.KVGet(profileKey(addr), &profile)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &profile, true, nil
}

func (e *Engine) writeProfile(addr [20]byte, profile *Profile) error {
	if e == nil || e.state == nil {
		return errors.New("registry engine: state not configured")
	}
	if err := profile.Validate(); err != nil {
		return err
	}
	return e.state.KVPut(profileKey(addr), profile)
}

// canModerate reports whether the caller may issue roles and flags: the
// bootstrap admin always can, as can any curator or admin profile holder.
func (e *Engine) canModerate(caller [20]byte) (bool, error) {
	if caller == ([20]byte{}) {
		return false, nil
	}
	if e.admin != ([20]byte{}) && caller == e.admin {
		return true, nil
	}
	profile, ok, err := e.readProfile(caller)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return profile.Role == RoleCurator || profile.Role == RoleAdmin, nil
}

// Register creates a profile for the caller with the default Finder role.
// Registering twice is rejected.
func (e *Engine) Register(caller [20]byte, metadataHash string) (*Profile, error) {
	if caller == ([20]byte{}) {
		return nil, errors.New("registry: caller required")
	}
	trimmed := strings.TrimSpace(metadataHash)
	if trimmed == "" {
		return nil, errors.New("registry: metadata hash required")
	}
	if _, ok, err := e.readProfile(caller); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyRegistered
	}
	profile := &Profile{Role: RoleFinder, MetadataHash: trimmed}
	if err := e.writeProfile(caller, profile); err != nil {
		return nil, err
	}
	e.emit(NewProfileRegisteredEvent(caller, profile))
	return profile.Clone(), nil
}

// UpdateMetadata replaces the caller's metadata hash.
func (e *Engine) UpdateMetadata(caller [20]byte, newHash string) (*Profile, error) {
	trimmed := strings.TrimSpace(newHash)
	if trimmed == "" {
		return nil, errors.New("registry: metadata hash required")
	}
	profile, ok, err := e.readProfile(caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProfileNotFound
	}
	profile.MetadataHash = trimmed
	if err := e.writeProfile(caller, profile); err != nil {
		return nil, err
	}
	e.emit(NewProfileUpdatedEvent(caller, profile))
	return profile.Clone(), nil
}

// SetRole issues a new role to the subject. Moderation-gated.
func (e *Engine) SetRole(caller, subject [20]byte, role uint8) (*Profile, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("registry: invalid role code %d", role)
	}
	return e.moderate(caller, subject, func(p *Profile) { p.Role = role })
}

// SetVerified sets or clears the subject's verification flag. Moderation-gated.
func (e *Engine) SetVerified(caller, subject [20]byte, verified bool) (*Profile, error) {
	return e.moderate(caller, subject, func(p *Profile) { p.Verified = verified })
}

// SetBlacklisted sets or clears the subject's blacklist flag. Moderation-gated.
func (e *Engine) SetBlacklisted(caller, subject [20]byte, blacklisted bool) (*Profile, error) {
	return e.moderate(caller, subject, func(p *Profile) { p.Blacklisted = blacklisted })
}

func (e *Engine) moderate(caller, subject [20]byte, apply func(*Profile)) (*Profile, error) {
	allowed, err := e.canModerate(caller)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrModerationForbidden
	}
	profile, ok, err := e.readProfile(subject)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProfileNotFound
	}
	apply(profile)
	if err := e.writeProfile(subject, profile); err != nil {
		return nil, err
	}
	e.emit(NewProfileModeratedEvent(subject, profile))
	return profile.Clone(), nil
}

// Profile returns the stored profile for the identity, when present. The
// lookup has no side effects; the marketplace role gate is built on it.
func (e *Engine) Profile(addr [20]byte) (*Profile, bool, error) {
	profile, ok, err := e.readProfile(addr)
	if err != nil || !ok {
		return nil, ok, err
	}
	return profile.Clone(), true, nil
}
