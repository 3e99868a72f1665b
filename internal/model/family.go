package model

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole converts a stored or submitted role string into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOwner, RoleAdmin, RoleMember:
		return r, nil
	}
	return "", fmt.Errorf("unknown role: %q", s)
}

// IsAdmin reports whether the role carries admin rights. Owners and admins are equivalent here.
func (r Role) IsAdmin() bool {
	return r == RoleOwner || r == RoleAdmin
}

type Family struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location returns the family's time zone, falling back to UTC for unknown names.
func (f Family) Location() *time.Location {
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Profile is a family member as seen by the points engine. PointsBalance is a
// cache of the ledger sum and is never authoritative.
type Profile struct {
	UserID        int64     `json:"user_id"`
	FamilyID      int64     `json:"family_id"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	PointsBalance int64     `json:"points_balance"`
	HasPIN        bool      `json:"has_pin"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
