package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorebook/internal/auth"
	"github.com/dukerupert/chorebook/internal/ledger"
	"github.com/dukerupert/chorebook/internal/model"
	"github.com/dukerupert/chorebook/internal/store"
	"github.com/dukerupert/chorebook/internal/websocket"
)

type PointsHandler struct {
	broadcaster
	ledger   *ledger.Service
	profiles *store.ProfileStore
	logger   *slog.Logger
}

func NewPointsHandler(l *ledger.Service, ps *store.ProfileStore, hub *websocket.Hub, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{broadcaster: broadcaster{hub}, ledger: l, profiles: ps, logger: logger}
}

// target resolves the profile addressed by {id}. Members may only address
// themselves; admins any profile in their family.
func (h *PointsHandler) target(w http.ResponseWriter, r *http.Request) (*model.Profile, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}
	ac, _ := auth.FromContext(r.Context())
	if id != ac.UserID && !ac.Role.IsAdmin() {
		writeError(w, h.logger, "points access", ledger.ErrUnknownUser)
		return nil, false
	}

	p, err := h.profiles.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "get profile", err)
		return nil, false
	}
	if p == nil || p.FamilyID != ac.FamilyID {
		writeError(w, h.logger, "get profile", ledger.ErrUnknownUser)
		return nil, false
	}
	return p, true
}

func (h *PointsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	p, ok := h.target(w, r)
	if !ok {
		return
	}
	balance, err := h.ledger.Balance(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, model.PointBalance{UserID: p.UserID, Name: p.Name, Balance: balance})
}

func (h *PointsHandler) History(w http.ResponseWriter, r *http.Request) {
	p, ok := h.target(w, r)
	if !ok {
		return
	}
	entries, err := h.ledger.History(r.Context(), p.UserID, parseLimitParam(r, 50, 500))
	if err != nil {
		writeError(w, h.logger, "points history", err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type adjustRequest struct {
	Amount int64  `json:"amount" validate:"required,ne=0"`
	Reason string `json:"reason" validate:"required,max=200"`
}

// Adjust applies a manual credit or deduction. Admin only.
func (h *PointsHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	p, ok := h.target(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if !decode(w, r, &req) {
		return
	}

	entry, err := h.ledger.Credit(r.Context(), p.UserID, p.FamilyID, req.Amount, req.Reason)
	if err != nil {
		writeError(w, h.logger, "adjust points", err)
		return
	}
	balance, err := h.ledger.Balance(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.logger, "get balance", err)
		return
	}

	h.broadcast(p.FamilyID, websocket.NewMessage(websocket.EntityPoints, websocket.ActionAdjusted, entry.ID, map[string]any{
		"user_id": p.UserID,
		"amount":  entry.Amount,
		"balance": balance,
	}))
	writeJSON(w, http.StatusCreated, ledger.Redemption{Entry: entry, Balance: balance})
}

type redeemRequest struct {
	Cost   int64  `json:"cost" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=200"`
}

// Redeem spends the caller's own points.
func (h *PointsHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decode(w, r, &req) {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	out, err := h.ledger.Redeem(r.Context(), ac.UserID, req.Cost, req.Reason)
	if err != nil {
		writeError(w, h.logger, "redeem points", err)
		return
	}

	h.broadcast(ac.FamilyID, websocket.NewMessage(websocket.EntityPoints, websocket.ActionRedeemed, out.Entry.ID, map[string]any{
		"user_id": ac.UserID,
		"amount":  out.Entry.Amount,
		"balance": out.Balance,
	}))
	writeJSON(w, http.StatusCreated, out)
}

func (h *PointsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	balances, err := h.ledger.Leaderboard(r.Context(), auth.FamilyID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "leaderboard", err)
		return
	}
	if balances == nil {
		balances = []model.PointBalance{}
	}
	writeJSON(w, http.StatusOK, balances)
}
