package messaging

import "context"

// SearchConversations sets the query and reloads from the backend.
func (s *Store) SearchConversations(ctx context.Context, query string) error {
	s.mu.Lock()
	s.filters.Query = query
	s.mu.Unlock()
	return s.LoadConversations(ctx)
}

// ApplyFilters replaces the filters, keeping the current query, and reloads.
func (s *Store) ApplyFilters(ctx context.Context, f Filters) error {
	s.mu.Lock()
	f.Query = s.filters.Query
	s.filters = f
	s.mu.Unlock()
	return s.LoadConversations(ctx)
}

// SetSortBy changes the ordering and reloads.
func (s *Store) SetSortBy(ctx context.Context, sort SortBy) error {
	s.mu.Lock()
	s.sortBy = sort
	s.mu.Unlock()
	return s.LoadConversations(ctx)
}

// ClearFilters drops the query and all filters and reloads.
func (s *Store) ClearFilters(ctx context.Context) error {
	s.mu.Lock()
	s.filters = Filters{}
	s.mu.Unlock()
	return s.LoadConversations(ctx)
}

// Filters returns the current filter criteria.
func (s *Store) Filters() Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// SortBy returns the current ordering.
func (s *Store) SortBy() SortBy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortBy
}
