package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/unimail/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func testAccount(userID int64, email string) *models.Account {
	return &models.Account{
		UserID:         userID,
		Email:          email,
		DisplayName:    "Test",
		Password:       "sealed:" + email,
		IMAPHost:       "imap.example.org",
		IMAPPort:       993,
		IMAPEncryption: models.EncryptionSSL,
		SMTPHost:       "smtp.example.org",
		SMTPPort:       587,
		SMTPEncryption: models.EncryptionTLS,
		IsActive:       true,
	}
}

func TestAccountCRUD(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	a := testAccount(7, "a@example.org")
	require.NoError(t, db.CreateAccount(ctx, a))
	assert.NotZero(t, a.ID)

	got, err := db.GetAccountByID(ctx, 7, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.org", got.Email)
	assert.Equal(t, models.EncryptionSSL, got.IMAPEncryption)
	assert.Equal(t, 587, got.SMTPPort)
	assert.False(t, got.LastSync.Valid)

	_, err = db.GetAccountByID(ctx, 8, a.ID)
	assert.ErrorIs(t, err, ErrNotFound, "accounts are scoped to their owner")

	err = db.CreateAccount(ctx, testAccount(7, "a@example.org"))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, db.CreateAccount(ctx, testAccount(8, "a@example.org")), "other users may add the same address")

	byEmail, err := db.GetAccountByEmail(ctx, 7, "a@example.org")
	require.NoError(t, err)
	assert.Equal(t, a.ID, byEmail.ID)

	require.NoError(t, db.DeleteAccount(ctx, 7, a.ID))
	assert.ErrorIs(t, db.DeleteAccount(ctx, 7, a.ID), ErrNotFound)
}

func TestGetAccountsByUser(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	a := testAccount(1, "a@example.org")
	b := testAccount(1, "b@example.org")
	c := testAccount(2, "c@example.org")
	for _, acc := range []*models.Account{a, b, c} {
		require.NoError(t, db.CreateAccount(ctx, acc))
	}
	require.NoError(t, db.SetAccountActive(ctx, 1, b.ID, false))

	all, err := db.GetAccountsByUser(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)

	active, err := db.GetAccountsByUser(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a@example.org", active[0].Email)

	none, err := db.GetAccountsByUser(ctx, 99, true)
	require.NoError(t, err)
	assert.Empty(t, none)
}

type prefixDecrypter struct{}

func (prefixDecrypter) Decrypt(s string) (string, error) {
	return strings.TrimPrefix(s, "sealed:"), nil
}

func TestAccountStore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewAccountStore(db, prefixDecrypter{})

	a := testAccount(1, "a@example.org")
	require.NoError(t, db.CreateAccount(ctx, a))

	list, err := store.ListAccounts(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Password, "listing never carries credentials")

	full, err := store.GetAccountWithCredential(ctx, 1, a.ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, "a@example.org", full.Password)

	missing, err := store.GetAccountWithCredential(ctx, 2, a.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateLastSync(ctx, a.ID, at))
	got, err := db.GetAccountByID(ctx, 1, a.ID)
	require.NoError(t, err)
	require.True(t, got.LastSync.Valid)
	assert.True(t, at.Equal(got.LastSync.Time))
}
