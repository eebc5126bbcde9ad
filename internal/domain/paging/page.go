// Package paging holds the bounded-slice result shared by list endpoints.
package paging

import "math"

// Page is a bounded slice of an ordered collection plus count metadata.
type Page[T any] struct {
	Items      []T `json:"pagedItems"`
	TotalCount int `json:"totalCount"`
	PageIndex  int `json:"pageIndex"`
	PageSize   int `json:"pageSize"`
}

// New builds a page, normalising a nil slice to an empty one.
func New[T any](items []T, pageIndex, pageSize, total int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, TotalCount: total, PageIndex: pageIndex, PageSize: pageSize}
}

// Offset returns the number of rows preceding the page, saturating at
// math.MaxInt instead of overflowing.
func Offset(pageIndex, pageSize int) int {
	if pageIndex <= 0 || pageSize <= 0 {
		return 0
	}
	if pageIndex > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return pageIndex * pageSize
}

// Reachable reports whether the page starts inside a collection of total items.
func Reachable(pageIndex, pageSize, total int) bool {
	if pageIndex < 0 || pageSize <= 0 || total <= 0 {
		return false
	}
	return pageIndex <= (total-1)/pageSize
}

// TotalPages computes how many pages the collection spans.
func (p *Page[T]) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(p.TotalCount) / float64(p.PageSize)))
}

// HasPreviousPage reports whether a page precedes this one.
func (p *Page[T]) HasPreviousPage() bool {
	return p.PageIndex > 0
}

// HasNextPage reports whether a page follows this one.
func (p *Page[T]) HasNextPage() bool {
	return p.PageIndex < p.TotalPages()-1
}
