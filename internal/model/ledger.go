package model

import "time"

type LedgerEntry struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	FamilyID        int64     `json:"family_id"`
	Amount          int64     `json:"amount"`
	Reason          string    `json:"reason"`
	OccurrenceLogID *int64    `json:"occurrence_log_id"`
	CreatedAt       time.Time `json:"created_at"`
}

type PointBalance struct {
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}
