package task

import (
	"errors"

	"github.com/dukerupert/chorebook/internal/ledger"
	"github.com/dukerupert/chorebook/internal/store"
)

// Business-rule violations. They are returned, never retried, and each maps
// to a specific message through Message.
var (
	ErrAlreadyLogged       = store.ErrAlreadyLogged
	ErrInvalidTransition   = store.ErrInvalidTransition
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrNotAssigned         = errors.New("routine is not assigned to this user")
	ErrDateNotAllowed      = errors.New("only today's occurrence can be completed")
	ErrRoutineNotFound     = errors.New("routine not found")
	ErrLogNotFound         = errors.New("occurrence log not found")
	ErrNotOccurring        = errors.New("routine does not occur on this date")
	ErrNotAuthorized       = errors.New("admin role required")
	ErrPINRequired         = errors.New("pin required")
	ErrPINInvalid          = errors.New("invalid pin")
)

var messages = map[error]string{
	ErrAlreadyLogged:         "This task has already been completed for that day.",
	ErrInvalidTransition:     "This task has already been approved.",
	ErrInsufficientBalance:   "Not enough points for that.",
	ErrNotAssigned:           "This task is assigned to someone else.",
	ErrDateNotAllowed:        "You can only complete today's tasks.",
	ErrRoutineNotFound:       "That task no longer exists.",
	ErrLogNotFound:           "That completion could not be found.",
	ErrNotOccurring:          "This task isn't scheduled for that day.",
	ErrNotAuthorized:         "Only a parent can do that.",
	ErrPINRequired:           "Enter your PIN to approve.",
	ErrPINInvalid:            "That PIN is not correct.",
	ErrInvalidRoutine:        "Check the task's details and try again.",
	ledger.ErrInvalidAmount:  "Enter a non-zero number of points.",
	ledger.ErrInvalidCost:    "Cost must be more than zero points.",
	ledger.ErrInvalidReason:  "Please give a reason.",
	ledger.ErrUnknownUser:    "That family member could not be found.",
	ledger.ErrFamilyMismatch: "That family member is not in your family.",
	ledger.ErrRewardNotFound: "That reward is not available.",
}

const genericMessage = "Something went wrong. Please try again."

// IsRuleViolation reports whether err is an expected business-rule outcome
// rather than an infrastructure failure.
func IsRuleViolation(err error) bool {
	if err == nil {
		return false
	}
	for known := range messages {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

// Message returns the user-facing text for err.
func Message(err error) string {
	for known, msg := range messages {
		if errors.Is(err, known) {
			return msg
		}
	}
	return genericMessage
}
