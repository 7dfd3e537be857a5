package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Role codes carried by registry profiles. Artisan is the code the
// marketplace checks before assignment.
const (
	RoleFinder  uint8 = 1
	RoleCurator uint8 = 2
	RoleArtisan uint8 = 3
	RoleAdmin   uint8 = 4
)

// ValidRole reports whether the code is one of the issued roles.
func ValidRole(role uint8) bool {
	switch role {
	case RoleFinder, RoleCurator, RoleArtisan, RoleAdmin:
		return true
	default:
		return false
	}
}

// RoleName returns the lowercase label for a role code.
func RoleName(role uint8) string {
	switch role {
	case RoleFinder:
		return "finder"
	case RoleCurator:
		return "curator"
	case RoleArtisan:
		return "artisan"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("unknown(%d)", role)
	}
}

// Profile is the per-identity registry record. The marketplace reads it
// through the role gate; only registry operations write it.
type Profile struct {
	Role         uint8
	MetadataHash string
	Verified     bool
	Blacklisted  bool
}

// Validate ensures the profile payload is well formed before persistence.
func (p *Profile) Validate() error {
	if p == nil {
		return errors.New("registry: profile nil")
	}
	if !ValidRole(p.Role) {
		return fmt.Errorf("registry: invalid role code %d", p.Role)
	}
	if strings.TrimSpace(p.MetadataHash) == "" {
		return errors.New("registry: metadata hash required")
	}
	return nil
}

// Clone returns a copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

var (
	// ErrAlreadyRegistered marks duplicate self-registrations.
	ErrAlreadyRegistered = errors.New("registry: identity already registered")
	// ErrProfileNotFound marks lookups for identities with no profile.
	ErrProfileNotFound = errors.New("registry: profile not found")
	// ErrModerationForbidden marks moderation calls from identities that are
	// neither the configured admin nor a curator/admin profile holder.
	ErrModerationForbidden = errors.New("registry: caller may not moderate")
)
