package approval_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdbot/sentinel/pkg/approval"
)

func testRecord() *approval.Record {
	return &approval.Record{
		ExecutionID: "exec-1",
		PlanHash:    "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		ApprovedBy:  "operator@example.com",
		ApprovedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()

	rec := testRecord()
	require.NoError(t, store.Create(ctx, rec))

	got, err := store.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, rec.PlanHash, got.PlanHash)
	assert.Equal(t, rec.ApprovedBy, got.ApprovedBy)
}

func TestMemoryStore_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	require.NoError(t, store.Create(ctx, testRecord()))

	second := testRecord()
	second.ApprovedBy = "someone-else@example.com"
	err := store.Create(ctx, second)
	assert.ErrorIs(t, err, approval.ErrAlreadyApproved)

	// The original record survives.
	got, err := store.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "operator@example.com", got.ApprovedBy)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	store := approval.NewMemoryStore()
	_, err := store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestMemoryStore_RejectsIncompleteRecord(t *testing.T) {
	store := approval.NewMemoryStore()
	err := store.Create(context.Background(), &approval.Record{ExecutionID: "exec-1"})
	assert.Error(t, err)
}

func TestRecord_Matches(t *testing.T) {
	rec := testRecord()
	assert.True(t, rec.Matches(rec.PlanHash))
	assert.False(t, rec.Matches("sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))
}

func TestToken_RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	rec := testRecord()
	rec.ApprovedAt = time.Now()
	token, err := approval.IssueToken(priv, rec, time.Hour)
	require.NoError(t, err)

	claims, err := approval.VerifyToken(pub, token, rec.ExecutionID, rec.PlanHash)
	require.NoError(t, err)
	assert.Equal(t, rec.PlanHash, claims.PlanHash)
	assert.Equal(t, rec.ApprovedBy, claims.ApprovedBy)
	assert.Equal(t, rec.ExecutionID, claims.Subject)
}

func TestToken_PlanHashMismatch(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	rec := testRecord()
	rec.ApprovedAt = time.Now()
	token, err := approval.IssueToken(priv, rec, time.Hour)
	require.NoError(t, err)

	_, err = approval.VerifyToken(pub, token, rec.ExecutionID,
		"sha256:cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")
	assert.ErrorIs(t, err, approval.ErrPlanHashMismatch)
}

func TestToken_WrongExecution(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	rec := testRecord()
	rec.ApprovedAt = time.Now()
	token, err := approval.IssueToken(priv, rec, time.Hour)
	require.NoError(t, err)

	_, err = approval.VerifyToken(pub, token, "exec-other", rec.PlanHash)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, approval.ErrPlanHashMismatch))
}

func TestToken_WrongKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	rec := testRecord()
	rec.ApprovedAt = time.Now()
	token, err := approval.IssueToken(priv, rec, time.Hour)
	require.NoError(t, err)

	_, err = approval.VerifyToken(otherPub, token, rec.ExecutionID, rec.PlanHash)
	assert.Error(t, err)
}

func TestToken_Expired(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	rec := testRecord()
	rec.ApprovedAt = time.Now().Add(-2 * time.Hour)
	token, err := approval.IssueToken(priv, rec, time.Hour)
	require.NoError(t, err)

	_, err = approval.VerifyToken(pub, token, rec.ExecutionID, rec.PlanHash)
	assert.Error(t, err, "expired approvals cannot be spent")
}
