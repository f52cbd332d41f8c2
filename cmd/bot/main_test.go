package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/premium-bot/internal/storage"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

// useSQLite points the CLI at a fresh database seeded with one user.
func useSQLite(t *testing.T) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("DB_PATH", path)
	t.Setenv("LOCK_DRIVER", "local")
	t.Setenv("TELEGRAM_MODE", "polling")

	s, err := storage.New(path)
	require.NoError(t, err)
	_, err = s.Create(context.Background(), storage.NewUser("42", "Ana", "ana", time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestReconcileCommand(t *testing.T) {
	useSQLite(t)
	args := []string{"reconcile", "--external-id", "42", "--event-id", "evt_1", "--customer", "cus_1"}

	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Equal(t, "applied", out)

	out, err = execute(t, args...)
	require.NoError(t, err)
	assert.Equal(t, "duplicate", out)

	out, err = execute(t, "reconcile", "--external-id", "404", "--event-id", "evt_2")
	require.NoError(t, err)
	assert.Equal(t, "dropped", out)
}

func TestReconcileRequiresIDs(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, "reconcile", "--external-id", "42")
	assert.Error(t, err)
}

func TestUserGetCommand(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, "reconcile", "--external-id", "42", "--event-id", "evt_1")
	require.NoError(t, err)

	out, err := execute(t, "user", "get", "42")
	require.NoError(t, err)

	var u storage.User
	require.NoError(t, json.Unmarshal([]byte(out), &u))
	assert.Equal(t, "42", u.ExternalID)
	assert.Equal(t, "Ana", u.DisplayName)
	assert.Equal(t, storage.StatusPaid, u.Status)
	assert.Equal(t, "evt_1", u.LastAppliedEventID)
	assert.Equal(t, int64(2), u.Version)
}

func TestUserGetMissingOnMemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOCK_DRIVER", "local")
	t.Setenv("TELEGRAM_MODE", "polling")

	_, err := execute(t, "user", "get", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
