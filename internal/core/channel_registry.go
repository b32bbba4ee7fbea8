package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/utils"
)

// ChannelRegistry caches channel rows in memory. Misses fall through to the store, and a
// background refresher bounds staleness to the refresh interval.
type ChannelRegistry struct {
	store ChannelStore

	mu       sync.RWMutex
	channels map[string]ChannelConfig
	loadedAt time.Time

	// generation is bumped by Invalidate; reads that started before an invalidation
	// must not write the channel back into the cache.
	generation  uint64
	invalidated map[string]uint64

	// controls background refresh lifecycle
	refreshCancel context.CancelFunc
	refreshDone   chan struct{}
}

func NewChannelRegistry(store ChannelStore) *ChannelRegistry {
	return &ChannelRegistry{
		store:       store,
		channels:    make(map[string]ChannelConfig),
		invalidated: make(map[string]uint64),
	}
}

// Load replaces the cache with every channel row in the store.
func (r *ChannelRegistry) Load(ctx context.Context) error {
	started := r.currentGeneration()

	rows, err := r.store.LoadChannels(ctx)
	if err != nil {
		return fmt.Errorf("failed to load channels: %w", err)
	}

	tmp := make(map[string]ChannelConfig, len(rows))
	for _, row := range rows {
		tmp[row.ChannelID] = row
	}

	r.mu.Lock()
	for channelID, gen := range r.invalidated {
		if gen > started {
			delete(tmp, channelID)
		}
	}
	r.channels = tmp
	r.loadedAt = time.Now()
	r.mu.Unlock()

	utils.Zlog.Debug("Channel registry loaded", zap.Int("channels", len(tmp)))
	return nil
}

// Lookup returns the channel or (nil, nil) when it is not linked.
func (r *ChannelRegistry) Lookup(ctx context.Context, channelID string) (*ChannelConfig, error) {
	r.mu.RLock()
	ch, ok := r.channels[channelID]
	r.mu.RUnlock()
	if ok {
		return &ch, nil
	}

	started := r.currentGeneration()

	fresh, err := r.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up channel %s: %w", channelID, err)
	}
	if fresh == nil {
		return nil, nil
	}

	r.mu.Lock()
	if r.invalidated[channelID] <= started {
		r.channels[channelID] = *fresh
	}
	r.mu.Unlock()

	return fresh, nil
}

// Invalidate drops one cached channel so the next Lookup reads the store.
func (r *ChannelRegistry) Invalidate(channelID string) {
	r.mu.Lock()
	r.generation++
	r.invalidated[channelID] = r.generation
	delete(r.channels, channelID)
	r.mu.Unlock()
}

func (r *ChannelRegistry) currentGeneration() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

func (r *ChannelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

func (r *ChannelRegistry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

// StartAutoRefresh performs an immediate load and then reloads at interval until
// StopAutoRefresh is called or ctx is cancelled. Calling it twice is a no-op.
func (r *ChannelRegistry) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	r.mu.Lock()
	if r.refreshCancel != nil {
		r.mu.Unlock()
		return
	}
	refreshCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.refreshCancel = cancel
	r.refreshDone = done
	r.mu.Unlock()

	reload := func() {
		loadCtx, loadCancel := context.WithTimeout(refreshCtx, 15*time.Second)
		defer loadCancel()
		if err := r.Load(loadCtx); err != nil {
			utils.Zlog.Warn("Channel registry refresh failed", zap.Error(err))
		}
	}

	go func() {
		defer close(done)
		reload()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				reload()
			}
		}
	}()
}

// StopAutoRefresh stops the refresher and waits for it to exit.
func (r *ChannelRegistry) StopAutoRefresh() {
	r.mu.Lock()
	cancel, done := r.refreshCancel, r.refreshDone
	r.refreshCancel, r.refreshDone = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
