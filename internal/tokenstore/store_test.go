package tokenstore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, *MemoryRecords) {
	t.Helper()

	cipher, err := NewAESCipher(testKey())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records := NewMemoryRecords()
	return NewStore(records, cipher, nil), records
}

func TestStoreCacheRoundTrip(t *testing.T) {
	s, records := newTestStore(t)
	ctx := context.Background()

	blob := []byte(`{"accounts":{}}`)
	s.SaveCache(ctx, "acct-1", "microsoft", blob)

	got := s.LoadCache(ctx, "acct-1")
	if !bytes.Equal(got, blob) {
		t.Errorf("LoadCache() = %q, want %q", got, blob)
	}

	// The stored bytes are encrypted, not plaintext
	rec, err := records.Get(ctx, "acct-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a persisted record")
	}
	if bytes.Contains(rec.EncryptedCacheBlob, blob) {
		t.Error("persisted cache blob contains plaintext")
	}
	if rec.Provider != "microsoft" {
		t.Errorf("provider = %q, want microsoft", rec.Provider)
	}
}

func TestStoreCacheMissingAccount(t *testing.T) {
	s, _ := newTestStore(t)

	if got := s.LoadCache(context.Background(), "nobody"); got != nil {
		t.Errorf("LoadCache() = %q, want nil", got)
	}
}

func TestStoreCacheUpdateExistingRecord(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.SaveCache(ctx, "acct-1", "microsoft", []byte("v1"))
	s.SaveCache(ctx, "acct-1", "microsoft", []byte("v2"))

	if got := s.LoadCache(ctx, "acct-1"); !bytes.Equal(got, []byte("v2")) {
		t.Errorf("LoadCache() = %q, want v2", got)
	}
}

func TestStoreCorruptBlobIsAMiss(t *testing.T) {
	s, records := newTestStore(t)
	ctx := context.Background()

	s.SaveCache(ctx, "acct-1", "microsoft", []byte("payload"))

	// Corrupt the stored ciphertext; the caller sees a cold start, not an
	// error
	rec, err := records.Get(ctx, "acct-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec.EncryptedCacheBlob[len(rec.EncryptedCacheBlob)-1] ^= 0xff
	if err := records.Upsert(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := s.LoadCache(ctx, "acct-1"); got != nil {
		t.Errorf("LoadCache() = %q, want nil for corrupt blob", got)
	}
}

func TestStoreAccessTokenRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	s.SaveAccessToken(ctx, "acct-1", "microsoft", "tok-abc", expiry)

	token, expiresAt, ok := s.LoadAccessToken(ctx, "acct-1")
	if !ok {
		t.Fatal("expected a stored access token")
	}
	if token != "tok-abc" {
		t.Errorf("token = %q, want tok-abc", token)
	}
	if !expiresAt.Equal(expiry) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, expiry)
	}
}

func TestStoreAccessTokenMissing(t *testing.T) {
	s, _ := newTestStore(t)

	if _, _, ok := s.LoadAccessToken(context.Background(), "nobody"); ok {
		t.Error("expected ok=false for unknown account")
	}
}

func TestStoreAccessTokenAndCacheShareRecord(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.SaveCache(ctx, "acct-1", "microsoft", []byte("cache"))
	s.SaveAccessToken(ctx, "acct-1", "microsoft", "tok", time.Now().Add(time.Hour))

	if got := s.LoadCache(ctx, "acct-1"); !bytes.Equal(got, []byte("cache")) {
		t.Error("token write clobbered the cache blob")
	}
	if _, _, ok := s.LoadAccessToken(ctx, "acct-1"); !ok {
		t.Error("expected both cache and token on the shared record")
	}
}

// failingRecords errors on every operation.
type failingRecords struct{}

var errBackendDown = errors.New("backend down")

func (failingRecords) Get(ctx context.Context, providerAccountID string) (*Record, error) {
	return nil, errBackendDown
}

func (failingRecords) Upsert(ctx context.Context, rec *Record) error { return errBackendDown }

func (failingRecords) UpdateAccessToken(ctx context.Context, providerAccountID string, ciphertext []byte, expiresAt time.Time) error {
	return errBackendDown
}

func (failingRecords) UpdateCacheBlob(ctx context.Context, providerAccountID string, ciphertext []byte) error {
	return errBackendDown
}

func (failingRecords) CheckHealth(ctx context.Context) error { return errBackendDown }

func TestStoreWritesAreBestEffort(t *testing.T) {
	cipher, err := NewAESCipher(testKey())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := NewStore(failingRecords{}, cipher, nil)
	ctx := context.Background()

	// None of these may panic or surface the backend failure
	s.SaveCache(ctx, "acct-1", "microsoft", []byte("cache"))
	s.SaveAccessToken(ctx, "acct-1", "microsoft", "tok", time.Now())

	if got := s.LoadCache(ctx, "acct-1"); got != nil {
		t.Errorf("LoadCache() = %q, want nil", got)
	}
	if _, _, ok := s.LoadAccessToken(ctx, "acct-1"); ok {
		t.Error("expected ok=false when the backend is down")
	}
	if err := s.CheckHealth(ctx); !errors.Is(err, errBackendDown) {
		t.Errorf("CheckHealth() = %v, want backend error", err)
	}
}
