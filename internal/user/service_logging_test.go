// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package user_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/user"
)

// logEntry represents a parsed JSON log entry.
type logEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Operation string `json:"operation"`
	Error     string `json:"error"`
	UserID    string `json:"user_id"`
}

func TestService_Login_LogsRehashFailure(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	hasher := &fakeHasher{needsRehash: true}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	svc, err := user.NewService(repo, hasher, newTokens(t), user.WithLogger(logger))
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, validDraft())
	require.NoError(t, err)

	// Make the rehash persist fail; login itself must still succeed.
	repo.updateHashErr = user.ErrStoreUnavailable
	buf.Reset()

	_, err = svc.Login(ctx, "u1", validDraft().Secret)
	require.NoError(t, err)

	// First entry is the rehash warning, second the login info line.
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	var entry logEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry.Level)
	assert.Contains(t, entry.Msg, "best-effort")
	assert.Equal(t, "rehash_credential", entry.Operation)
	assert.Contains(t, entry.Error, "store unavailable")
	assert.Equal(t, "u1", entry.UserID)
}

func TestService_Login_LogsCorruptRecord(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	d := validDraft()
	corrupt := &user.User{
		UserID:         d.UserID,
		Name:           d.Name,
		LastName:       d.LastName,
		Email:          d.Email,
		Age:            d.Age,
		Phone:          d.Phone,
		BirthDate:      d.BirthDate,
		CredentialHash: "$argon2id$broken",
	}
	require.NoError(t, repo.Create(ctx, corrupt))

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	svc, err := user.NewService(repo, auth.NewArgon2idHasher(), newTokens(t), user.WithLogger(logger))
	require.NoError(t, err)

	_, err = svc.Login(ctx, "u1", "whatever")
	require.ErrorIs(t, err, auth.ErrCorruptHash)

	var entry logEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Contains(t, entry.Msg, "corrupt")
	assert.Equal(t, "u1", entry.UserID)
}

func TestService_NeverLogsSecrets(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	svc, err := user.NewService(repo, &fakeHasher{}, newTokens(t), user.WithLogger(logger))
	require.NoError(t, err)

	const secret = "hunter2-very-secret"
	draft := validDraft()
	draft.Secret = secret

	_, token, err := svc.Register(ctx, draft)
	require.NoError(t, err)

	_, err = svc.Login(ctx, draft.UserID, secret)
	require.NoError(t, err)
	_, err = svc.Login(ctx, draft.UserID, "wrong-"+secret)
	require.Error(t, err)

	_, err = svc.Authenticate(ctx, token.Value)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteAccount(ctx, token.Value))

	logged := buf.String()
	assert.NotEmpty(t, logged)
	assert.NotContains(t, logged, secret)
}
