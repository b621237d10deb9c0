package handler

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jellydator/ttlcache/v3"
	"github.com/m-lab/nter/pkg/nter1/model"
)

// DefaultResultTTL is how long a connection result is kept in memory.
const DefaultResultTTL = 5 * time.Minute

// Registry keeps the results of recently closed connections in memory,
// indexed by connection UUID. Results expire after a TTL and are never
// written to disk.
type Registry struct {
	results *ttlcache.Cache[string, *model.ConnectionResult]
}

// NewRegistry returns a Registry whose items expire after ttl. The
// expiration goroutine runs until Stop is called.
func NewRegistry(ttl time.Duration) *Registry {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *model.ConnectionResult](ttl),
		ttlcache.WithDisableTouchOnHit[string, *model.ConnectionResult](),
	)
	cache.OnEviction(func(ctx context.Context,
		er ttlcache.EvictionReason,
		i *ttlcache.Item[string, *model.ConnectionResult]) {
		log.Debug("result expired", "uuid", i.Key(), "reason", er)
	})
	go cache.Start()
	return &Registry{results: cache}
}

// Store adds result to the registry.
func (r *Registry) Store(result *model.ConnectionResult) {
	r.results.Set(result.UUID, result, ttlcache.DefaultTTL)
}

// Get returns the result for uuid, or nil if there is none.
func (r *Registry) Get(uuid string) *model.ConnectionResult {
	item := r.results.Get(uuid)
	if item == nil {
		return nil
	}
	return item.Value()
}

// All returns every result currently stored, oldest first.
func (r *Registry) All() []*model.ConnectionResult {
	items := r.results.Items()
	all := make([]*model.ConnectionResult, 0, len(items))
	for _, item := range items {
		all = append(all, item.Value())
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartTime.Before(all[j].StartTime)
	})
	return all
}

// Len returns the number of results currently stored.
func (r *Registry) Len() int {
	return r.results.Len()
}

// Stop stops the expiration goroutine.
func (r *Registry) Stop() {
	r.results.Stop()
}
