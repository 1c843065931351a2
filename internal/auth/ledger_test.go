package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLedgerIssueStoresDigestOnly(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	raw, rec, err := ledger.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if raw == "" || rec.ID == "" {
		t.Fatalf("empty token or record id")
	}
	if rec.TokenHash == raw {
		t.Fatalf("raw token must not be persisted")
	}
	if _, ok := store.tokens[raw]; ok {
		t.Fatalf("store keyed by raw token, want digest")
	}
	if _, ok := store.tokens[rec.TokenHash]; !ok {
		t.Fatalf("record not stored under its digest")
	}
}

func TestLedgerRotateReplacesToken(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	raw, rec, err := ledger.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rotation, err := ledger.Rotate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if rotation.Token == raw {
		t.Fatalf("rotation returned the consumed token")
	}
	if rotation.Record.UserID != "u1" {
		t.Fatalf("replacement bound to wrong user: %s", rotation.Record.UserID)
	}
	if rotation.Consumed.ID != rec.ID || !rotation.Consumed.Revoked {
		t.Fatalf("consumed record not revoked: %+v", rotation.Consumed)
	}
	if rotation.Consumed.ReplacedBy == nil || *rotation.Consumed.ReplacedBy != rotation.Record.ID {
		t.Fatalf("chain link missing on consumed record")
	}
}

func TestLedgerRotateDetectsReplay(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	raw, _, err := ledger.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := ledger.Rotate(context.Background(), raw); err != nil {
		t.Fatalf("first Rotate: %v", err)
	}

	rotation, err := ledger.Rotate(context.Background(), raw)
	if !errors.Is(err, ErrTokenReplayed) {
		t.Fatalf("expected ErrTokenReplayed, got %v", err)
	}
	if !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Fatalf("replay must still be ErrRefreshTokenInvalid to callers")
	}
	if rotation.Consumed == nil || rotation.Consumed.UserID != "u1" {
		t.Fatalf("replay must surface the consumed record for auditing")
	}
}

func TestLedgerRotateRejectsExpired(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	ledger, err := NewLedger(store,
		WithRefreshTTL(time.Hour),
		WithLedgerClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	raw, _, err := ledger.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(2 * time.Hour)
	_, err = ledger.Rotate(context.Background(), raw)
	if !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Fatalf("expected ErrRefreshTokenInvalid, got %v", err)
	}
	if errors.Is(err, ErrTokenReplayed) {
		t.Fatalf("expiry must not be classified as replay")
	}
}

func TestLedgerRotateUnknownToken(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	_, err = ledger.Rotate(context.Background(), "never-issued")
	if !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Fatalf("expected ErrRefreshTokenInvalid, got %v", err)
	}
}

func TestLedgerConcurrentRotateSingleWinner(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	raw, _, err := ledger.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Rotate(context.Background(), raw)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, ErrRefreshTokenInvalid) {
			t.Fatalf("loser got unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("want exactly one winning rotation, got %d", wins)
	}
}

func TestLedgerRevokeIsIdempotent(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	raw, _, err := ledger.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := ledger.Revoke(context.Background(), raw); err != nil {
			t.Fatalf("Revoke #%d: %v", i+1, err)
		}
	}
	if err := ledger.Revoke(context.Background(), "never-issued"); err != nil {
		t.Fatalf("Revoke of unknown token must be a no-op: %v", err)
	}

	_, err = ledger.Rotate(context.Background(), raw)
	if !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Fatalf("revoked token rotated: %v", err)
	}
}

func TestLedgerRevokeChain(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	first, _, err := ledger.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := ledger.Rotate(context.Background(), first)
	if err != nil {
		t.Fatalf("Rotate #1: %v", err)
	}
	third, err := ledger.Rotate(context.Background(), second.Token)
	if err != nil {
		t.Fatalf("Rotate #2: %v", err)
	}

	// Revoking from the stolen root must take out the live tip as well.
	n, err := ledger.RevokeChain(context.Background(), first)
	if err != nil {
		t.Fatalf("RevokeChain: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 newly revoked record (the tip), got %d", n)
	}
	_, err = ledger.Rotate(context.Background(), third.Token)
	if !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Fatalf("chain tip still usable after RevokeChain: %v", err)
	}
}
