package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/ledger"
)

const (
	settingsCacheSize = 1000
	settingsCacheTTL  = time.Minute
	settingsLoadLimit = 10 * time.Second
)

// SettingsService returns per-owner settings, creating the defaults on first
// read. Concurrent first reads for one owner share a single store call.
type SettingsService struct {
	store           ledger.SettingsStore
	defaultCurrency string
	group           singleflight.Group
	cache           *cache.LRUCache[core.UserSettings]
}

func NewSettingsService(store ledger.SettingsStore, defaultCurrency string) (*SettingsService, error) {
	cur, err := core.NormalizeCurrency(defaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("default currency %q: %w", defaultCurrency, err)
	}
	return &SettingsService{
		store:           store,
		defaultCurrency: cur,
		cache:           cache.NewLRUCache[core.UserSettings](settingsCacheSize, settingsCacheTTL),
	}, nil
}

// Cache exposes the settings cache so callers can register it for cleanup.
func (s *SettingsService) Cache() *cache.LRUCache[core.UserSettings] { return s.cache }

func (s *SettingsService) Get(ctx context.Context, owner string) (core.UserSettings, error) {
	if st, ok := s.cache.Get(owner); ok {
		return st, nil
	}
	// The shared load outlives any single caller; each caller only stops
	// waiting on its own cancellation.
	ch := s.group.DoChan(owner, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settingsLoadLimit)
		defer cancel()
		return s.store.EnsureSettings(loadCtx, owner, s.defaultCurrency)
	})
	select {
	case <-ctx.Done():
		return core.UserSettings{}, fmt.Errorf("get settings: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return core.UserSettings{}, fmt.Errorf("get settings: %w", res.Err)
		}
		st := res.Val.(core.UserSettings)
		s.cache.Set(owner, st)
		return st, nil
	}
}

func (s *SettingsService) UpdateCurrency(ctx context.Context, owner, currency string) (core.UserSettings, error) {
	cur, err := core.NormalizeCurrency(currency)
	if err != nil {
		return core.UserSettings{}, err
	}
	st, err := s.store.SaveSettings(ctx, core.UserSettings{Owner: owner, Currency: cur})
	if err != nil {
		s.cache.Delete(owner)
		return core.UserSettings{}, fmt.Errorf("save settings: %w", err)
	}
	s.cache.Set(owner, st)
	return st, nil
}
