package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/chorebook/internal/ledger"
	"github.com/dukerupert/chorebook/internal/task"
	"github.com/dukerupert/chorebook/internal/websocket"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// statusFor maps business-rule errors to HTTP statuses.
var statusFor = map[error]int{
	task.ErrAlreadyLogged:     http.StatusConflict,
	task.ErrInvalidTransition: http.StatusConflict,
	task.ErrNotAssigned:       http.StatusForbidden,
	task.ErrNotAuthorized:     http.StatusForbidden,
	task.ErrDateNotAllowed:    http.StatusUnprocessableEntity,
	task.ErrNotOccurring:      http.StatusUnprocessableEntity,
	task.ErrRoutineNotFound:   http.StatusNotFound,
	task.ErrLogNotFound:       http.StatusNotFound,
	task.ErrPINRequired:       http.StatusUnauthorized,
	task.ErrPINInvalid:        http.StatusUnauthorized,
	task.ErrInvalidRoutine:    http.StatusBadRequest,

	ledger.ErrInsufficientBalance: http.StatusUnprocessableEntity,
	ledger.ErrRewardNotFound:      http.StatusNotFound,
	ledger.ErrUnknownUser:         http.StatusNotFound,
	ledger.ErrFamilyMismatch:      http.StatusBadRequest,
	ledger.ErrInvalidAmount:       http.StatusBadRequest,
	ledger.ErrInvalidCost:         http.StatusBadRequest,
	ledger.ErrInvalidReason:       http.StatusBadRequest,
}

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

// parseDateParam reads ?date=YYYY-MM-DD. ok is false when the parameter is absent.
func parseDateParam(r *http.Request) (d civil.Date, ok bool, err error) {
	s := strings.TrimSpace(r.URL.Query().Get("date"))
	if s == "" {
		return civil.Date{}, false, nil
	}
	d, err = civil.ParseDate(s)
	return d, true, err
}

func parseLimitParam(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// decode reads a JSON body into v and runs its validate tags. It writes the
// 400 response itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "invalid request",
				"fields": validationFields(verrs),
			})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return false
	}
	return true
}

func validationFields(verrs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

// writeError turns err into a JSON response. Business-rule errors carry their
// specific message; anything else is logged and reported generically.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	for known, status := range statusFor {
		if errors.Is(err, known) {
			writeJSON(w, status, map[string]string{"error": task.Message(err)})
			return
		}
	}
	logger.Error(op, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": task.Message(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type broadcaster struct {
	hub *websocket.Hub
}

func (b broadcaster) broadcast(familyID int64, msg websocket.Message) {
	if b.hub != nil {
		b.hub.Broadcast(familyID, msg)
	}
}
