// Package audit reads the access audit trail written by membership, platform role and
// login changes.
package audit

import (
	"context"
	"errors"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxPage         = 10000
	// ExportLimit caps the rows returned by Export.
	ExportLimit = 10000
)

// ErrInvalidRange is returned when From is after To.
var ErrInvalidRange = errors.New("audit: invalid date range")

// Query is the repository form of TimelineFilters.
type Query struct {
	From    time.Time
	To      time.Time
	Filters TimelineFilters
	Offset  int
	Limit   int
}

// Repository loads audit entries newest first.
type Repository interface {
	Entries(ctx context.Context, q Query) ([]Entry, error)
}

// Service coordinates access to the audit trail.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of entries matching filters.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	if err := checkRange(filters); err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	rows, err := s.repo.Entries(ctx, Query{
		From:    filters.From,
		To:      filters.To,
		Filters: filters,
		Offset:  (page - 1) * pageSize,
		Limit:   pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	if rows == nil {
		rows = []Entry{}
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: rows, Paging: paging}, nil
}

// Export returns every matching entry up to ExportLimit.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if err := checkRange(filters); err != nil {
		return nil, err
	}
	return s.repo.Entries(ctx, Query{From: filters.From, To: filters.To, Filters: filters, Limit: ExportLimit})
}

func checkRange(filters TimelineFilters) error {
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.From.After(filters.To) {
		return ErrInvalidRange
	}
	return nil
}
