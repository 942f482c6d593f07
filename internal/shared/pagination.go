package shared

import (
	"math"
	"strconv"
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 200 {
		perPage = 200
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// ParsePagination reads page and per_page query values. Invalid values fall back to
// the defaults.
func ParsePagination(page, perPage string, total int) Pagination {
	p, _ := strconv.Atoi(page)
	pp, _ := strconv.Atoi(perPage)
	return NewPagination(p, pp, total)
}

// Bounds returns the half-open slice range of the current page. Pages past the end
// yield an empty range at Total.
func (p Pagination) Bounds() (int, int) {
	if p.PerPage <= 0 || p.Total <= 0 {
		return 0, 0
	}
	start := 0
	switch {
	case p.Page <= 1:
	case p.Page-1 > p.Total/p.PerPage:
		start = p.Total
	default:
		start = min((p.Page-1)*p.PerPage, p.Total)
	}
	end := p.Total
	if p.PerPage < p.Total-start {
		end = start + p.PerPage
	}
	return start, end
}
