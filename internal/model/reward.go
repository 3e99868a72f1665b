package model

import "time"

// Reward is an item in a family's catalog that members buy with points.
type Reward struct {
	ID          int64     `json:"id"`
	FamilyID    int64     `json:"family_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PointCost   int       `json:"point_cost"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}
