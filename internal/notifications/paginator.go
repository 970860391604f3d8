package notifications

import (
	"context"
	"sync"
)

// Paginator loads further pages when the end of the list becomes visible.
// At most one load runs at a time and loading halts at the last page.
type Paginator struct {
	engine   *Engine
	pageSize int

	mu       sync.Mutex
	loading  bool
	nextPage int
	hasMore  bool
}

// NewPaginator returns a Paginator positioned before page 1.
func NewPaginator(engine *Engine) *Paginator {
	return &Paginator{
		engine:   engine,
		pageSize: engine.PageSize(),
		nextPage: 1,
		hasMore:  true,
	}
}

// Refresh reloads page 1 and resets the position.
func (p *Paginator) Refresh(ctx context.Context) (PageResult, error) {
	res, err := p.engine.FetchPage(ctx, 1, p.pageSize)
	if err != nil {
		return res, err
	}
	p.mu.Lock()
	p.nextPage = 2
	p.hasMore = res.HasMore
	p.mu.Unlock()
	return res, nil
}

// OnLastItemVisible loads the next page unless a load is running or the last
// page was reached. It reports whether a page was loaded.
func (p *Paginator) OnLastItemVisible(ctx context.Context) (bool, error) {
	p.mu.Lock()
	if p.loading || !p.hasMore {
		p.mu.Unlock()
		return false, nil
	}
	p.loading = true
	page := p.nextPage
	p.mu.Unlock()

	res, err := p.engine.FetchPage(ctx, page, p.pageSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false
	if err != nil {
		return false, err
	}
	p.nextPage = page + 1
	p.hasMore = res.HasMore
	return true, nil
}

// HasMore reports whether another page may exist.
func (p *Paginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Loading reports whether a page load is running.
func (p *Paginator) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}
