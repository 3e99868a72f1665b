package model

import (
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// ParseFrequency converts a stored or submitted frequency string into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case Daily, Weekly, Monthly, Yearly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency: %q", s)
}

// Assignees lists the users allowed to complete a routine. An empty set
// (nil or zero-length) means every family member is eligible.
type Assignees []int64

// NewAssignees returns a sorted, de-duplicated set.
func NewAssignees(ids ...int64) Assignees {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return Assignees(slices.Compact(out))
}

// Unrestricted reports whether anyone in the family may complete the routine.
func (a Assignees) Unrestricted() bool {
	return len(a) == 0
}

// Allows reports whether userID may complete the routine.
func (a Assignees) Allows(userID int64) bool {
	return a.Unrestricted() || slices.Contains(a, userID)
}

type Routine struct {
	ID                   int64      `json:"id"`
	FamilyID             int64      `json:"family_id"`
	SubjectID            *int64     `json:"subject_id"`
	Title                string     `json:"title"`
	Points               int        `json:"points"`
	Frequency            Frequency  `json:"frequency"`
	AnchorAt             time.Time  `json:"anchor_at"`
	AnchorDate           civil.Date `json:"anchor_date"`
	RequiresVerification bool       `json:"requires_verification"`
	AssignedTo           Assignees  `json:"assigned_to"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
