package handler

import (
	"log/slog"
	"net/http"

	"cloud.google.com/go/civil"

	"github.com/dukerupert/chorebook/internal/auth"
	"github.com/dukerupert/chorebook/internal/model"
	"github.com/dukerupert/chorebook/internal/task"
	"github.com/dukerupert/chorebook/internal/websocket"
)

type OccurrenceHandler struct {
	broadcaster
	tasks  *task.Service
	logger *slog.Logger
}

func NewOccurrenceHandler(tasks *task.Service, hub *websocket.Hub, logger *slog.Logger) *OccurrenceHandler {
	return &OccurrenceHandler{broadcaster: broadcaster{hub}, tasks: tasks, logger: logger}
}

// date returns the ?date parameter, defaulting to today in the family's zone.
func (h *OccurrenceHandler) date(w http.ResponseWriter, r *http.Request, familyID int64) (civil.Date, bool) {
	d, ok, err := parseDateParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return civil.Date{}, false
	}
	if ok {
		return d, true
	}
	d, err = h.tasks.Today(r.Context(), familyID)
	if err != nil {
		writeError(w, h.logger, "resolve today", err)
		return civil.Date{}, false
	}
	return d, true
}

// List returns the routines due on a date with their completion state.
func (h *OccurrenceHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	date, ok := h.date(w, r, ac.FamilyID)
	if !ok {
		return
	}

	items, err := h.tasks.ListOccurrences(r.Context(), ac.FamilyID, date)
	if err != nil {
		writeError(w, h.logger, "list occurrences", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"items": items,
	})
}

// Complete records the caller's completion of a routine on ?date (default today).
func (h *OccurrenceHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	ac, _ := auth.FromContext(r.Context())
	date, ok := h.date(w, r, ac.FamilyID)
	if !ok {
		return
	}

	res, err := h.tasks.Complete(r.Context(), ac, id, date)
	if err != nil {
		writeError(w, h.logger, "complete routine", err)
		return
	}

	action := websocket.ActionCompleted
	if res.Log.Status == model.StatusPending {
		action = websocket.ActionPending
	}
	h.broadcast(ac.FamilyID, websocket.NewMessage(websocket.EntityOccurrence, action, res.Log.ID, map[string]any{
		"routine_id": res.Log.RoutineID,
		"user_id":    res.Log.UserID,
		"date":       res.Log.Date.String(),
		"balance":    res.Balance,
	}))
	writeJSON(w, http.StatusCreated, res)
}

type approveRequest struct {
	PIN string `json:"pin" validate:"omitempty,len=4,numeric"`
}

// Approve confirms a pending completion and credits its points.
func (h *OccurrenceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req approveRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	res, err := h.tasks.Approve(r.Context(), ac, id, req.PIN)
	if err != nil {
		writeError(w, h.logger, "approve occurrence", err)
		return
	}

	h.broadcast(ac.FamilyID, websocket.NewMessage(websocket.EntityOccurrence, websocket.ActionApproved, res.Log.ID, map[string]any{
		"routine_id": res.Log.RoutineID,
		"user_id":    res.Log.UserID,
		"balance":    res.Balance,
	}))
	writeJSON(w, http.StatusOK, res)
}

// Pending lists completions awaiting approval.
func (h *OccurrenceHandler) Pending(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	logs, err := h.tasks.ListPending(r.Context(), ac)
	if err != nil {
		writeError(w, h.logger, "list pending", err)
		return
	}
	if logs == nil {
		logs = []model.OccurrenceLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
