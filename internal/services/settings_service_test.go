package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tally/internal/core"
	"tally/internal/storage/memory"
)

// slowSettingsStore counts EnsureSettings calls and holds each one briefly so
// concurrent callers overlap.
type slowSettingsStore struct {
	*memory.Store
	ensures atomic.Int32
}

func (s *slowSettingsStore) EnsureSettings(ctx context.Context, owner, def string) (core.UserSettings, error) {
	s.ensures.Add(1)
	time.Sleep(20 * time.Millisecond)
	return s.Store.EnsureSettings(ctx, owner, def)
}

func TestSettingsService_DefaultsAndCache(t *testing.T) {
	store := &slowSettingsStore{Store: memory.New()}
	svc, err := NewSettingsService(store, "inr")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := svc.Get(context.Background(), "u1")
			if err != nil || st.Currency != "INR" {
				t.Errorf("get: %+v, %v", st, err)
			}
		}()
	}
	wg.Wait()

	if _, err := svc.Get(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if n := store.ensures.Load(); n != 1 {
		t.Fatalf("EnsureSettings called %d times, want 1", n)
	}
}

// gatedSettingsStore holds EnsureSettings until release is closed or the
// call's context ends.
type gatedSettingsStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedSettingsStore) EnsureSettings(ctx context.Context, owner, def string) (core.UserSettings, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return core.UserSettings{}, ctx.Err()
	}
	return s.Store.EnsureSettings(ctx, owner, def)
}

func TestSettingsService_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store := &gatedSettingsStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	svc, err := NewSettingsService(store, "EUR")
	if err != nil {
		t.Fatal(err)
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.Get(ctxA, "u1")
		errA <- err
	}()
	<-store.entered

	type result struct {
		st  core.UserSettings
		err error
	}
	resB := make(chan result, 1)
	go func() {
		st, err := svc.Get(context.Background(), "u1")
		resB <- result{st, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}
	close(store.release)

	b := <-resB
	if b.err != nil || b.st.Currency != "EUR" {
		t.Fatalf("second caller: %+v, %v", b.st, b.err)
	}
}

func TestSettingsService_UpdateCurrency(t *testing.T) {
	svc, err := NewSettingsService(memory.New(), "INR")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := svc.UpdateCurrency(ctx, "u1", "rupees"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	st, err := svc.UpdateCurrency(ctx, "u1", "usd")
	if err != nil || st.Currency != "USD" {
		t.Fatalf("update: %+v, %v", st, err)
	}
	got, err := svc.Get(ctx, "u1")
	if err != nil || got.Currency != "USD" {
		t.Fatalf("get after update: %+v, %v", got, err)
	}
}

func TestNewSettingsServiceRejectsBadDefault(t *testing.T) {
	if _, err := NewSettingsService(memory.New(), "XXXX"); err == nil {
		t.Fatal("expected error for invalid default currency")
	}
}
