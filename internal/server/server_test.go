package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/chorebook/internal/database"
	"github.com/dukerupert/chorebook/internal/ledger"
	"github.com/dukerupert/chorebook/internal/middleware"
	"github.com/dukerupert/chorebook/internal/model"
	"github.com/dukerupert/chorebook/internal/store"
	"github.com/dukerupert/chorebook/internal/task"
)

type testServer struct {
	handler http.Handler
	parent  int64
	child   int64
	other   int64
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	return setupServerWith(t, Config{CompleteRateLimit: 100, ApproveRateLimit: 100})
}

func setupServerWith(t *testing.T, cfg Config) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	families := store.NewFamilyStore(db)
	family, err := families.Create(ctx, "Test Family", "UTC")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	otherFamily, err := families.Create(ctx, "Other Family", "UTC")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	ps := store.NewProfileStore(db)
	parent, err := ps.Create(ctx, family.ID, "Parent", model.RoleOwner)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := ps.Create(ctx, family.ID, "Child", model.RoleMember)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	other, err := ps.Create(ctx, otherFamily.ID, "Neighbor", model.RoleOwner)
	if err != nil {
		t.Fatalf("create other: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledgerSvc := ledger.NewService(db, logger)
	now := func() time.Time { return time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC) }
	tasks := task.NewService(db, ledgerSvc, logger, task.WithClock(now))
	srv := New(db, ledgerSvc, tasks, cfg, logger)

	return &testServer{handler: srv.Router(), parent: parent.UserID, child: child.UserID, other: other.UserID}
}

func (ts *testServer) do(t *testing.T, user int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if user != 0 {
		req.Header.Set(middleware.UserHeader, strconv.FormatInt(user, 10))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func (ts *testServer) createRoutine(t *testing.T, body map[string]any) int64 {
	t.Helper()
	if _, ok := body["anchor_at"]; !ok {
		body["anchor_at"] = "2024-01-01T09:00:00Z"
	}
	if _, ok := body["frequency"]; !ok {
		body["frequency"] = "daily"
	}
	rec := ts.do(t, ts.parent, "POST", "/api/routines", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create routine: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got struct {
		ID       int64  `json:"id"`
		Schedule string `json:"schedule"`
	}
	decodeBody(t, rec, &got)
	if got.Schedule == "" {
		t.Error("expected schedule description")
	}
	return got.ID
}

func TestHealth(t *testing.T) {
	ts := setupServer(t)
	rec := ts.do(t, 0, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUnidentifiedRequestRejected(t *testing.T) {
	ts := setupServer(t)
	rec := ts.do(t, 0, "GET", "/api/routines", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestMemberCannotCreateRoutine(t *testing.T) {
	ts := setupServer(t)
	rec := ts.do(t, ts.child, "POST", "/api/routines", map[string]any{"title": "x", "frequency": "daily"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRoutineValidation(t *testing.T) {
	ts := setupServer(t)
	rec := ts.do(t, ts.parent, "POST", "/api/routines", map[string]any{"title": "", "frequency": "hourly"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var got struct {
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, rec, &got)
	if got.Fields["Title"] != "required" || got.Fields["Frequency"] != "oneof" {
		t.Errorf("fields = %v", got.Fields)
	}
}

func TestRoutineUpcomingDates(t *testing.T) {
	ts := setupServer(t)
	// 2024-01-01 was a Monday; the test clock is Saturday 2024-06-15.
	id := ts.createRoutine(t, map[string]any{"title": "Laundry", "points": 2, "frequency": "weekly"})

	rec := ts.do(t, ts.child, "GET", "/api/routines/"+strconv.FormatInt(id, 10), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Upcoming []string `json:"upcoming"`
	}
	decodeBody(t, rec, &got)
	want := []string{"2024-06-17", "2024-06-24", "2024-07-01"}
	if strings.Join(got.Upcoming, ",") != strings.Join(want, ",") {
		t.Errorf("upcoming = %v, want %v", got.Upcoming, want)
	}
}

func TestCompleteAndDuplicate(t *testing.T) {
	ts := setupServer(t)
	id := ts.createRoutine(t, map[string]any{"title": "Feed cat", "points": 10})
	path := "/api/routines/" + strconv.FormatInt(id, 10) + "/complete"

	rec := ts.do(t, ts.child, "POST", path, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("complete: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res task.Result
	decodeBody(t, rec, &res)
	if res.Log.Status != model.StatusCompleted || res.Balance != 10 {
		t.Errorf("result = %+v", res)
	}

	rec = ts.do(t, ts.child, "POST", path, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "already been completed") {
		t.Errorf("duplicate body = %s", rec.Body.String())
	}

	rec = ts.do(t, ts.child, "POST", path+"?date=2024-06-14", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("backfill by member: status = %d", rec.Code)
	}
	rec = ts.do(t, ts.child, "POST", path+"?date=yesterday", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status = %d", rec.Code)
	}

	rec = ts.do(t, ts.child, "GET", "/api/occurrences", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var list struct {
		Date  string                `json:"date"`
		Items []task.OccurrenceItem `json:"items"`
	}
	decodeBody(t, rec, &list)
	if list.Date != "2024-06-15" || len(list.Items) != 1 || list.Items[0].State != task.StateCompleted {
		t.Errorf("list = %+v", list)
	}
}

func TestApprovalFlow(t *testing.T) {
	ts := setupServer(t)
	id := ts.createRoutine(t, map[string]any{
		"title":                 "Walk dog",
		"points":                5,
		"requires_verification": true,
		"assigned_to":           []int64{ts.child},
	})

	rec := ts.do(t, ts.child, "POST", "/api/routines/"+strconv.FormatInt(id, 10)+"/complete", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("complete: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res task.Result
	decodeBody(t, rec, &res)
	if res.Log.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", res.Log.Status)
	}

	rec = ts.do(t, ts.child, "GET", "/api/approvals", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("member approvals: status = %d", rec.Code)
	}

	rec = ts.do(t, ts.parent, "GET", "/api/approvals", nil)
	var pending []model.OccurrenceLog
	decodeBody(t, rec, &pending)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	approvePath := "/api/approvals/" + strconv.FormatInt(res.Log.ID, 10)
	rec = ts.do(t, ts.parent, "POST", approvePath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &res)
	if res.Balance != 5 || res.Entry == nil || res.Entry.UserID != ts.child {
		t.Errorf("approve result = %+v", res)
	}

	rec = ts.do(t, ts.parent, "POST", approvePath, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second approve: status = %d", rec.Code)
	}

	rec = ts.do(t, ts.other, "POST", approvePath, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("approve from other family: status = %d", rec.Code)
	}
}

func TestApproveWithPIN(t *testing.T) {
	ts := setupServer(t)
	rec := ts.do(t, ts.parent, "POST", "/api/me/pin", map[string]string{"pin": "1234"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set pin: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	id := ts.createRoutine(t, map[string]any{"title": "Homework", "points": 3, "requires_verification": true})
	rec = ts.do(t, ts.child, "POST", "/api/routines/"+strconv.FormatInt(id, 10)+"/complete", nil)
	var res task.Result
	decodeBody(t, rec, &res)
	approvePath := "/api/approvals/" + strconv.FormatInt(res.Log.ID, 10)

	if rec := ts.do(t, ts.parent, "POST", approvePath, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing pin: status = %d", rec.Code)
	}
	if rec := ts.do(t, ts.parent, "POST", approvePath, map[string]string{"pin": "9999"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong pin: status = %d", rec.Code)
	}
	if rec := ts.do(t, ts.parent, "POST", approvePath, map[string]string{"pin": "1234"}); rec.Code != http.StatusOK {
		t.Errorf("right pin: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestApprovePINGuessingThrottled(t *testing.T) {
	ts := setupServerWith(t, Config{CompleteRateLimit: 100, ApproveRateLimit: 5})
	if rec := ts.do(t, ts.parent, "POST", "/api/me/pin", map[string]string{"pin": "0042"}); rec.Code != http.StatusOK {
		t.Fatalf("set pin: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	id := ts.createRoutine(t, map[string]any{"title": "Dishes", "points": 4, "requires_verification": true})
	rec := ts.do(t, ts.child, "POST", "/api/routines/"+strconv.FormatInt(id, 10)+"/complete", nil)
	var res task.Result
	decodeBody(t, rec, &res)
	approvePath := "/api/approvals/" + strconv.FormatInt(res.Log.ID, 10)

	var throttled int
	for i := 0; i < 60; i++ {
		pin := fmt.Sprintf("%04d", i)
		rec := ts.do(t, ts.parent, "POST", approvePath, map[string]string{"pin": pin})
		switch rec.Code {
		case http.StatusTooManyRequests:
			throttled++
			if rec.Header().Get("Retry-After") == "" {
				t.Error("missing Retry-After header")
			}
		case http.StatusOK:
			t.Fatalf("pin %s accepted after %d attempts", pin, i+1)
		}
	}
	if throttled != 55 {
		t.Errorf("throttled = %d, want 55", throttled)
	}

	// Completing is counted separately from approving.
	other := ts.createRoutine(t, map[string]any{"title": "Trash", "points": 1})
	if rec := ts.do(t, ts.parent, "POST", "/api/routines/"+strconv.FormatInt(other, 10)+"/complete", nil); rec.Code != http.StatusCreated {
		t.Errorf("complete after throttled approvals: status = %d", rec.Code)
	}
}

func TestPointsAndRewards(t *testing.T) {
	ts := setupServer(t)
	child := strconv.FormatInt(ts.child, 10)

	rec := ts.do(t, ts.child, "POST", "/api/profiles/"+child+"/points", map[string]any{"amount": 50, "reason": "bonus"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("member adjust: status = %d", rec.Code)
	}
	rec = ts.do(t, ts.parent, "POST", "/api/profiles/"+child+"/points", map[string]any{"amount": 50, "reason": "bonus"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("adjust: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, ts.parent, "POST", "/api/rewards", map[string]any{"title": "Movie night", "point_cost": 40})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create reward: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var reward model.Reward
	decodeBody(t, rec, &reward)
	if !reward.Active {
		t.Error("reward should default to active")
	}

	redeemPath := "/api/rewards/" + strconv.FormatInt(reward.ID, 10) + "/redeem"
	rec = ts.do(t, ts.child, "POST", redeemPath, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("redeem: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out ledger.Redemption
	decodeBody(t, rec, &out)
	if out.Balance != 10 {
		t.Errorf("balance after redeem = %d, want 10", out.Balance)
	}

	rec = ts.do(t, ts.child, "POST", redeemPath, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("overdraw: status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Not enough points") {
		t.Errorf("overdraw body = %s", rec.Body.String())
	}

	rec = ts.do(t, ts.other, "POST", redeemPath, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("other family redeem: status = %d", rec.Code)
	}

	rec = ts.do(t, ts.child, "GET", "/api/profiles/"+child+"/points/history", nil)
	var history []model.LedgerEntry
	decodeBody(t, rec, &history)
	if len(history) != 2 || history[0].Amount != -40 {
		t.Errorf("history = %+v", history)
	}

	rec = ts.do(t, ts.child, "GET", "/api/profiles/"+strconv.FormatInt(ts.parent, 10)+"/points", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("member reading another balance: status = %d", rec.Code)
	}

	rec = ts.do(t, ts.child, "POST", "/api/points/redeem", map[string]any{"cost": 0, "reason": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero cost: status = %d", rec.Code)
	}
}
