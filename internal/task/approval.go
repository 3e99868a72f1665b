package task

import (
	"cloud.google.com/go/civil"

	"github.com/dukerupert/chorebook/internal/auth"
	"github.com/dukerupert/chorebook/internal/model"
)

// initialStatus decides how a new completion attempt is logged. Verified
// routines completed by a non-admin wait for approval; everything else is
// credited immediately.
func initialStatus(r model.Routine, actor auth.AuthContext) model.Status {
	if r.RequiresVerification && !actor.Role.IsAdmin() {
		return model.StatusPending
	}
	return model.StatusCompleted
}

// checkEligibility applies the assignment and date rules for a completion
// attempt. Admins may complete any routine on any date.
func checkEligibility(r model.Routine, actor auth.AuthContext, date, today civil.Date) error {
	if actor.Role.IsAdmin() {
		return nil
	}
	if !r.AssignedTo.Allows(actor.UserID) {
		return ErrNotAssigned
	}
	if date != today {
		return ErrDateNotAllowed
	}
	return nil
}

// checkApproval validates that approver may move l from pending to completed.
func checkApproval(l model.OccurrenceLog, approver auth.AuthContext) error {
	if !approver.Role.IsAdmin() {
		return ErrNotAuthorized
	}
	if l.FamilyID != approver.FamilyID {
		return ErrLogNotFound
	}
	if l.Status != model.StatusPending {
		return ErrInvalidTransition
	}
	return nil
}
