package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorebook/internal/auth"
	"github.com/dukerupert/chorebook/internal/model"
	"github.com/dukerupert/chorebook/internal/store"
)

type ProfileHandler struct {
	profiles *store.ProfileStore
	logger   *slog.Logger
}

func NewProfileHandler(ps *store.ProfileStore, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: ps, logger: logger}
}

func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "get profile", err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "profile not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.ListByFamily(r.Context(), auth.FamilyID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list profiles", err)
		return
	}
	if profiles == nil {
		profiles = []model.Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

type pinRequest struct {
	PIN string `json:"pin" validate:"required,len=4,numeric"`
}

// SetPIN sets the caller's approval PIN. Admins with a PIN must enter it to
// approve completions.
func (h *ProfileHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if !decode(w, r, &req) {
		return
	}

	hash, err := auth.HashPIN(req.PIN)
	if errors.Is(err, auth.ErrInvalidPINFormat) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeError(w, h.logger, "hash pin", err)
		return
	}

	if err := h.profiles.SetPIN(r.Context(), auth.UserID(r.Context()), hash); err != nil {
		writeError(w, h.logger, "set pin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

func (h *ProfileHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.ClearPIN(r.Context(), auth.UserID(r.Context())); err != nil {
		writeError(w, h.logger, "clear pin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin cleared"})
}
