// Package search keeps the viewer's recent searches. The search service is
// authoritative; a local Store mirrors it and serves the list when the
// service cannot be reached.
package search

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"feedsync/internal/models"
	"feedsync/internal/observability"

	"github.com/jonboulle/clockwork"
)

// DefaultMax is the number of searches kept when no limit is configured.
const DefaultMax = 10

// Remote is the search service surface used for recent searches.
type Remote interface {
	RecentSearches(ctx context.Context) ([]models.RecentSearch, error)
	SaveRecentSearch(ctx context.Context, s models.RecentSearch) error
}

// Store persists recent searches locally, per user.
type Store interface {
	Load(ctx context.Context, userID string) ([]models.RecentSearch, error)
	Save(ctx context.Context, userID string, searches []models.RecentSearch) error
}

// Options configure a Recent list.
type Options struct {
	UserID string
	Max    int
	Store  Store
	Clock  clockwork.Clock
}

// Recent is the viewer's recent-search list, most recent first and unique
// by type and key.
type Recent struct {
	remote Remote
	store  Store
	userID string
	max    int
	clock  clockwork.Clock
	logger *observability.SyncLogger

	mu    sync.Mutex
	items []models.RecentSearch
}

// NewRecent creates an empty list. Either remote or opts.Store may be nil.
func NewRecent(remote Remote, opts Options) *Recent {
	if opts.Max <= 0 {
		opts.Max = DefaultMax
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Recent{
		remote: remote,
		store:  opts.Store,
		userID: opts.UserID,
		max:    opts.Max,
		clock:  opts.Clock,
		logger: observability.NewSyncLogger("recent_searches"),
	}
}

// Load refreshes the list from the search service, or from the local store
// when the service fails. A successful remote load is mirrored locally.
func (r *Recent) Load(ctx context.Context) ([]models.RecentSearch, error) {
	var (
		items []models.RecentSearch
		err   error
	)
	if r.remote != nil {
		items, err = r.remote.RecentSearches(ctx)
		if err == nil {
			items = normalize(items, r.max)
			r.persist(ctx, items)
			r.replace(items)
			return r.List(), nil
		}
		r.logger.LogError(ctx, "load_remote", err)
	}

	if r.store == nil {
		return r.List(), err
	}
	local, lerr := r.store.Load(ctx, r.userID)
	if lerr != nil {
		r.logger.LogError(ctx, "load_local", lerr)
		if err == nil {
			err = lerr
		}
		return r.List(), err
	}
	r.replace(normalize(local, r.max))
	return r.List(), nil
}

// Add records s as the most recent search. The local copy is always
// updated; a failure of the search service is logged only.
func (r *Recent) Add(ctx context.Context, s models.RecentSearch) ([]models.RecentSearch, error) {
	s.Key = strings.TrimSpace(s.Key)
	if s.Key == "" {
		return nil, models.NewValidationError("search key is required")
	}
	if s.Type == "" {
		s.Type = models.SearchQuery
	}
	if s.SearchedAt.IsZero() {
		s.SearchedAt = r.clock.Now().UTC()
	}

	r.mu.Lock()
	items := slices.DeleteFunc(slices.Clone(r.items), func(v models.RecentSearch) bool {
		return v.Identity() == s.Identity()
	})
	items = append([]models.RecentSearch{s}, items...)
	if len(items) > r.max {
		items = items[:r.max]
	}
	r.items = items
	out := slices.Clone(items)
	r.mu.Unlock()

	r.persist(ctx, out)
	if r.remote != nil {
		if err := r.remote.SaveRecentSearch(ctx, s); err != nil {
			r.logger.LogError(ctx, "save_remote", err)
		}
	}
	return out, nil
}

// Remove drops the search with the given identity from the local list.
func (r *Recent) Remove(ctx context.Context, identity string) []models.RecentSearch {
	r.mu.Lock()
	r.items = slices.DeleteFunc(r.items, func(v models.RecentSearch) bool {
		return v.Identity() == identity
	})
	out := slices.Clone(r.items)
	r.mu.Unlock()

	r.persist(ctx, out)
	return out
}

// Clear empties the local list.
func (r *Recent) Clear(ctx context.Context) {
	r.replace(nil)
	r.persist(ctx, nil)
}

// List returns a copy of the current list.
func (r *Recent) List() []models.RecentSearch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.items)
}

func (r *Recent) replace(items []models.RecentSearch) {
	r.mu.Lock()
	r.items = items
	r.mu.Unlock()
}

func (r *Recent) persist(ctx context.Context, items []models.RecentSearch) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, r.userID, items); err != nil {
		r.logger.LogError(ctx, "save_local", err)
	}
}

// normalize orders items most recent first, keeps the first occurrence of
// each identity and caps the list at limit.
func normalize(items []models.RecentSearch, limit int) []models.RecentSearch {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b models.RecentSearch) int {
		return cmp.Compare(b.SearchedAt.UnixNano(), a.SearchedAt.UnixNano())
	})

	seen := make(map[string]struct{}, len(sorted))
	out := make([]models.RecentSearch, 0, min(len(sorted), limit))
	for _, s := range sorted {
		if s.Key == "" {
			continue
		}
		if _, dup := seen[s.Identity()]; dup {
			continue
		}
		seen[s.Identity()] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
