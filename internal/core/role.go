package core

import "fmt"

// Role names one inference configuration and prompt template.
type Role string

const (
	// RoleAnalyst extracts the contested factors from the document.
	RoleAnalyst Role = "analyst"
	// RoleAdvocate builds the strongest case for a factor.
	RoleAdvocate Role = "advocate"
	// RoleSkeptic challenges the advocate's claim.
	RoleSkeptic Role = "skeptic"
	// RoleScribe judges the debate and synthesizes a verdict.
	RoleScribe Role = "scribe"
)

// AllRoles returns the roles in pipeline order.
func AllRoles() []Role {
	return []Role{RoleAnalyst, RoleAdvocate, RoleSkeptic, RoleScribe}
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", ErrValidation(CodeUnknownRole, fmt.Sprintf("unknown role: %s", s))
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAnalyst, RoleAdvocate, RoleSkeptic, RoleScribe:
		return true
	}
	return false
}

// Persona is the display name used in progress messages.
func (r Role) Persona() string {
	switch r {
	case RoleAnalyst:
		return "The Decipherer"
	case RoleAdvocate:
		return "The Advocate"
	case RoleSkeptic:
		return "The Skeptic"
	case RoleScribe:
		return "The Scribe"
	}
	return string(r)
}
