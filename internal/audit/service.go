package audit

import (
	"context"
	"fmt"
)

// QueryRepository provides read access to the trail.
type QueryRepository interface {
	Query(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error)
}

// Service coordinates read-only audit queries.
type Service struct {
	repo QueryRepository
}

// NewService builds the query service.
func NewService(repo QueryRepository) *Service {
	return &Service{repo: repo}
}

// Query returns a page of entries matching the filters.
func (s *Service) Query(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	entries, err := s.repo.Query(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	return Result{Entries: entries, Page: page, PerPage: pageSize, HasNext: hasNext}, nil
}
