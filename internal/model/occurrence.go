package model

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ParseStatus converts a stored status string into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown status: %q", s)
}

// OccurrenceLog records the completion attempt for one routine on one calendar date.
// Points is the routine's value captured when the attempt was made.
type OccurrenceLog struct {
	ID         int64      `json:"id"`
	RoutineID  int64      `json:"routine_id"`
	FamilyID   int64      `json:"family_id"`
	UserID     int64      `json:"user_id"`
	Date       civil.Date `json:"date"`
	Status     Status     `json:"status"`
	Points     int        `json:"points"`
	VerifiedAt *time.Time `json:"verified_at"`
	CreatedAt  time.Time  `json:"created_at"`
}
