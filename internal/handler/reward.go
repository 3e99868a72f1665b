package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/chorebook/internal/auth"
	"github.com/dukerupert/chorebook/internal/ledger"
	"github.com/dukerupert/chorebook/internal/model"
	"github.com/dukerupert/chorebook/internal/store"
	"github.com/dukerupert/chorebook/internal/websocket"
)

type RewardHandler struct {
	broadcaster
	rewards *store.RewardStore
	ledger  *ledger.Service
	logger  *slog.Logger
}

func NewRewardHandler(rs *store.RewardStore, l *ledger.Service, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{broadcaster: broadcaster{hub}, rewards: rs, ledger: l, logger: logger}
}

type rewardRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
	PointCost   int    `json:"point_cost" validate:"gt=0"`
	Active      *bool  `json:"active"`
}

func (req rewardRequest) active() bool {
	return req.Active == nil || *req.Active
}

// owned loads reward {id} when it belongs to the caller's family.
func (h *RewardHandler) owned(w http.ResponseWriter, r *http.Request) (*model.Reward, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}
	reward, err := h.rewards.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "get reward", err)
		return nil, false
	}
	if reward == nil || reward.FamilyID != auth.FamilyID(r.Context()) {
		writeError(w, h.logger, "get reward", ledger.ErrRewardNotFound)
		return nil, false
	}
	return reward, true
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if !decode(w, r, &req) {
		return
	}

	familyID := auth.FamilyID(r.Context())
	reward, err := h.rewards.Create(r.Context(), familyID, strings.TrimSpace(req.Title), req.Description, req.PointCost, req.active())
	if err != nil {
		writeError(w, h.logger, "create reward", err)
		return
	}

	h.broadcast(familyID, websocket.NewMessage(websocket.EntityReward, websocket.ActionCreated, reward.ID, nil))
	writeJSON(w, http.StatusCreated, reward)
}

// List returns the family catalog. Members only see active rewards.
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := !auth.IsAdmin(r.Context()) || r.URL.Query().Get("active") == "true"
	rewards, err := h.rewards.ListByFamily(r.Context(), auth.FamilyID(r.Context()), activeOnly)
	if err != nil {
		writeError(w, h.logger, "list rewards", err)
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.owned(w, r)
	if !ok {
		return
	}
	var req rewardRequest
	if !decode(w, r, &req) {
		return
	}

	reward, err := h.rewards.Update(r.Context(), existing.ID, strings.TrimSpace(req.Title), req.Description, req.PointCost, req.active())
	if err != nil {
		writeError(w, h.logger, "update reward", err)
		return
	}

	h.broadcast(reward.FamilyID, websocket.NewMessage(websocket.EntityReward, websocket.ActionUpdated, reward.ID, nil))
	writeJSON(w, http.StatusOK, reward)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.owned(w, r)
	if !ok {
		return
	}
	if err := h.rewards.Delete(r.Context(), existing.ID); err != nil {
		writeError(w, h.logger, "delete reward", err)
		return
	}

	h.broadcast(existing.FamilyID, websocket.NewMessage(websocket.EntityReward, websocket.ActionDeleted, existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Redeem spends the caller's points on a reward from the catalog.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ac, _ := auth.FromContext(r.Context())
	out, err := h.ledger.RedeemReward(r.Context(), ac.UserID, id)
	if err != nil {
		writeError(w, h.logger, "redeem reward", err)
		return
	}

	h.broadcast(ac.FamilyID, websocket.NewMessage(websocket.EntityPoints, websocket.ActionRedeemed, out.Entry.ID, map[string]any{
		"user_id":   ac.UserID,
		"reward_id": id,
		"amount":    out.Entry.Amount,
		"balance":   out.Balance,
	}))
	writeJSON(w, http.StatusCreated, out)
}
