package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/chorebook/internal/database"
	"github.com/dukerupert/chorebook/internal/ledger"
	"github.com/dukerupert/chorebook/internal/logging"
	"github.com/dukerupert/chorebook/internal/model"
	"github.com/dukerupert/chorebook/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runWithStderr(t, args...)
	return out, err
}

// runWithStderr keeps log output apart from what the command prints.
func runWithStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// seed creates a family with one member holding 10 points and returns the
// database path and member id.
func seed(t *testing.T) (string, int64) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	f, err := store.NewFamilyStore(db).Create(ctx, "Smith", "UTC")
	require.NoError(t, err)
	p, err := store.NewProfileStore(db).Create(ctx, f.ID, "Ana", model.RoleMember)
	require.NoError(t, err)

	svc := ledger.NewService(db, logging.New(&bytes.Buffer{}, "error", "text"))
	_, err = svc.Credit(ctx, p.UserID, f.ID, 10, "Feed cat")
	require.NoError(t, err)
	return dbPath, p.UserID
}

func corrupt(t *testing.T, dbPath string, userID, balance int64) {
	t.Helper()
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`UPDATE profiles SET points_balance = ? WHERE user_id = ?`, balance, userID)
	require.NoError(t, err)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	dbPath, _ := seed(t)
	_, err := run(t, "reconcile", "--db", dbPath, "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestReconcile_Clean(t *testing.T) {
	dbPath, _ := seed(t)
	out, err := run(t, "reconcile", "--db", dbPath, "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "All balances match")
}

func TestReconcile_RepairsDrift(t *testing.T) {
	dbPath, userID := seed(t)
	corrupt(t, dbPath, userID, 99)

	out, stderr, err := runWithStderr(t, "reconcile", "--db", dbPath, "--check", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Contains(t, stderr, "drift")

	var result struct {
		Drifts []ledger.Drift `json:"drifts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Drifts, 1)
	assert.Equal(t, userID, result.Drifts[0].UserID)
	assert.Equal(t, int64(99), result.Drifts[0].Cached)
	assert.Equal(t, int64(10), result.Drifts[0].Ledger)

	// Second pass finds nothing left to repair.
	_, err = run(t, "reconcile", "--db", dbPath, "--check")
	assert.NoError(t, err)
}

func TestBalance(t *testing.T) {
	dbPath, userID := seed(t)
	corrupt(t, dbPath, userID, 4)

	out, err := run(t, "balance", "--db", dbPath, "--user", strconv.FormatInt(userID, 10))
	require.NoError(t, err)
	assert.Contains(t, out, "4 points (ledger 10)")
	assert.Contains(t, out, "run reconcile")
}

func TestBalance_RequiresUser(t *testing.T) {
	dbPath, _ := seed(t)
	_, err := run(t, "balance", "--db", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user")
}

func TestHistory(t *testing.T) {
	dbPath, userID := seed(t)

	out, err := run(t, "history", "--db", dbPath, "--user", strconv.FormatInt(userID, 10), "--format", "json")
	require.NoError(t, err)

	var entries []model.LedgerEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, userID, entries[0].UserID)
	assert.Equal(t, int64(10), entries[0].Amount)
	assert.Equal(t, "Feed cat", entries[0].Reason)
}

func TestFamilyAndProfileCreate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	out, err := run(t, "family", "create", "--db", dbPath, "--name", "Jones", "--tz", "Pacific/Auckland", "--format", "json")
	require.NoError(t, err)
	var f model.Family
	require.NoError(t, json.Unmarshal([]byte(out), &f))
	assert.Equal(t, "Jones", f.Name)
	assert.Equal(t, "Pacific/Auckland", f.Timezone)

	out, err = run(t, "profile", "create", "--db", dbPath, "--family", "1", "--name", "Kim", "--role", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "Created admin")
	assert.Contains(t, out, "(Kim) in family 1")
}

func TestFamilyCreate_BadTimezone(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	_, err := run(t, "family", "create", "--db", dbPath, "--name", "Jones", "--tz", "Mars/Olympus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestProfileCreate_Errors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	_, err := run(t, "profile", "create", "--db", dbPath, "--family", "7", "--name", "Kim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "family 7 not found")

	_, err = run(t, "profile", "create", "--db", dbPath, "--family", "1", "--name", "Kim", "--role", "king")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")
}

func TestFamilyCreate_DefaultTimezoneFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHOREBOOK_DEFAULT_TIMEZONE", "Europe/Berlin")
	dbPath := filepath.Join(t.TempDir(), "test.db")

	out, err := run(t, "family", "create", "--db", dbPath, "--name", "Weber")
	require.NoError(t, err)
	assert.Contains(t, out, "(Weber, Europe/Berlin)")
}

func TestDatabaseFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	dbPath, _ := seed(t)
	t.Setenv("CHOREBOOK_DB_PATH", dbPath)

	out, err := run(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "All balances match")
}

func TestFamilySetTimezone(t *testing.T) {
	dbPath, _ := seed(t)

	out, err := run(t, "family", "set-tz", "--db", dbPath, "--family", "1", "--tz", "Pacific/Auckland")
	require.NoError(t, err)
	assert.Contains(t, out, "Family 1 now uses Pacific/Auckland")

	_, err = run(t, "family", "set-tz", "--db", dbPath, "--family", "1", "--tz", "Mars/Olympus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid time zone")

	_, err = run(t, "family", "set-tz", "--db", dbPath, "--family", "9", "--tz", "UTC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "family 9 not found")
}

func TestProfileSetRole(t *testing.T) {
	dbPath, userID := seed(t)

	out, err := run(t, "profile", "set-role", "--db", dbPath, "--user", strconv.FormatInt(userID, 10), "--role", "admin", "--format", "json")
	require.NoError(t, err)
	var p model.Profile
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, model.RoleAdmin, p.Role)

	_, err = run(t, "profile", "set-role", "--db", dbPath, "--user", "999", "--role", "member")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user 999 not found")
}
