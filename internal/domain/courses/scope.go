package courses

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ScopeMode selects which non-owned courses a requester may be compared
// against. Owned courses are always in scope.
type ScopeMode string

const (
	ScopeOwner       ScopeMode = "owner"
	ScopeInstitution ScopeMode = "institution"
	ScopePublic      ScopeMode = "public"
)

func ParseScopeMode(s string) (ScopeMode, error) {
	switch ScopeMode(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeOwner:
		return ScopeOwner, nil
	case ScopeInstitution, "same-institution-public":
		return ScopeInstitution, nil
	case ScopePublic, "public-only":
		return ScopePublic, nil
	default:
		return "", fmt.Errorf("unknown privacy scope %q", s)
	}
}

// SearchScope is the resolved search space for one requester.
type SearchScope struct {
	RequesterID   uuid.UUID
	InstitutionID *uuid.UUID
	Mode          ScopeMode
}
