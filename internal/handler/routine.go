package handler

import (
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dukerupert/chorebook/internal/auth"
	"github.com/dukerupert/chorebook/internal/model"
	"github.com/dukerupert/chorebook/internal/recurrence"
	"github.com/dukerupert/chorebook/internal/task"
	"github.com/dukerupert/chorebook/internal/websocket"
)

type RoutineHandler struct {
	broadcaster
	tasks  *task.Service
	logger *slog.Logger
}

func NewRoutineHandler(tasks *task.Service, hub *websocket.Hub, logger *slog.Logger) *RoutineHandler {
	return &RoutineHandler{broadcaster: broadcaster{hub}, tasks: tasks, logger: logger}
}

type routineRequest struct {
	SubjectID            *int64     `json:"subject_id"`
	Title                string     `json:"title" validate:"required,max=200"`
	Points               int        `json:"points" validate:"gte=-10000,lte=10000"`
	Frequency            string     `json:"frequency" validate:"omitempty,oneof=daily weekly monthly yearly"`
	AnchorAt             *time.Time `json:"anchor_at"`
	RequiresVerification bool       `json:"requires_verification"`
	AssignedTo           []int64    `json:"assigned_to" validate:"dive,gt=0"`
}

func (req routineRequest) input() task.RoutineInput {
	in := task.RoutineInput{
		SubjectID:            req.SubjectID,
		Title:                req.Title,
		Points:               req.Points,
		Frequency:            model.Frequency(req.Frequency),
		RequiresVerification: req.RequiresVerification,
		AssignedTo:           req.AssignedTo,
	}
	if req.AnchorAt != nil {
		in.AnchorAt = *req.AnchorAt
	}
	return in
}

const upcomingCount = 3

// routineView adds a readable schedule and the next due dates to a routine.
type routineView struct {
	model.Routine
	Schedule string       `json:"schedule"`
	Upcoming []civil.Date `json:"upcoming"`
}

// views renders routines with upcoming dates counted from the family's today.
func (h *RoutineHandler) views(r *http.Request, familyID int64, routines ...model.Routine) ([]routineView, error) {
	today, err := h.tasks.Today(r.Context(), familyID)
	if err != nil {
		return nil, err
	}
	views := make([]routineView, 0, len(routines))
	for _, rt := range routines {
		upcoming := recurrence.Next(rt.Frequency, rt.AnchorDate, today, upcomingCount)
		if upcoming == nil {
			upcoming = []civil.Date{}
		}
		views = append(views, routineView{
			Routine:  rt,
			Schedule: recurrence.Describe(rt.Frequency, rt.AnchorDate),
			Upcoming: upcoming,
		})
	}
	return views, nil
}

func (h *RoutineHandler) writeView(w http.ResponseWriter, r *http.Request, status int, familyID int64, routine model.Routine) {
	views, err := h.views(r, familyID, routine)
	if err != nil {
		writeError(w, h.logger, "view routine", err)
		return
	}
	writeJSON(w, status, views[0])
}

func (h *RoutineHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	routines, err := h.tasks.ListRoutines(r.Context(), ac)
	if err != nil {
		writeError(w, h.logger, "list routines", err)
		return
	}
	views, err := h.views(r, ac.FamilyID, routines...)
	if err != nil {
		writeError(w, h.logger, "list routines", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *RoutineHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	ac, _ := auth.FromContext(r.Context())
	routine, err := h.tasks.GetRoutine(r.Context(), ac, id)
	if err != nil {
		writeError(w, h.logger, "get routine", err)
		return
	}
	h.writeView(w, r, http.StatusOK, ac.FamilyID, *routine)
}

func (h *RoutineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req routineRequest
	if !decode(w, r, &req) {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	routine, err := h.tasks.CreateRoutine(r.Context(), ac, req.input())
	if err != nil {
		writeError(w, h.logger, "create routine", err)
		return
	}

	h.broadcast(ac.FamilyID, websocket.NewMessage(websocket.EntityRoutine, websocket.ActionCreated, routine.ID, nil))
	h.writeView(w, r, http.StatusCreated, ac.FamilyID, *routine)
}

func (h *RoutineHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req routineRequest
	if !decode(w, r, &req) {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	routine, err := h.tasks.UpdateRoutine(r.Context(), ac, id, req.input())
	if err != nil {
		writeError(w, h.logger, "update routine", err)
		return
	}

	h.broadcast(ac.FamilyID, websocket.NewMessage(websocket.EntityRoutine, websocket.ActionUpdated, routine.ID, nil))
	h.writeView(w, r, http.StatusOK, ac.FamilyID, *routine)
}

func (h *RoutineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ac, _ := auth.FromContext(r.Context())
	if err := h.tasks.DeleteRoutine(r.Context(), ac, id); err != nil {
		writeError(w, h.logger, "delete routine", err)
		return
	}

	h.broadcast(ac.FamilyID, websocket.NewMessage(websocket.EntityRoutine, websocket.ActionDeleted, id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// History lists the completion logs recorded for a routine.
func (h *RoutineHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	ac, _ := auth.FromContext(r.Context())
	logs, err := h.tasks.History(r.Context(), ac, id)
	if err != nil {
		writeError(w, h.logger, "routine history", err)
		return
	}
	if logs == nil {
		logs = []model.OccurrenceLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}
