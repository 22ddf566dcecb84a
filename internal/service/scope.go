package service

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Scope carries the caller's tenant and, for vendor users, the vendor the
// caller is confined to. Every read and write path takes a Scope; queries
// always filter on TenantID and additionally on VendorID when set.
type Scope struct {
	TenantID uint
	VendorID *uint
}

// PageRequest is the common pagination input. Page is 1-indexed; Ordering is
// a field name with an optional leading '-' for descending.
type PageRequest struct {
	Page     int
	PageSize int
	Ordering string
}

// Normalize applies defaults.
func (p *PageRequest) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
}

// Offset returns the row offset for the page.
func (p *PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Pagination is the envelope metadata returned with every list.
type Pagination struct {
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	TotalPages  int   `json:"total_pages"`
	TotalCount  int64 `json:"total_count"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// NewPagination computes envelope metadata from a total count.
func NewPagination(req PageRequest, total int64) *Pagination {
	totalPages := int((total + int64(req.PageSize) - 1) / int64(req.PageSize))
	return &Pagination{
		Page:        req.Page,
		PageSize:    req.PageSize,
		TotalPages:  totalPages,
		TotalCount:  total,
		HasNext:     req.Page < totalPages,
		HasPrevious: req.Page > 1,
	}
}

// applyOrdering adds an ORDER BY for a caller-supplied field, constrained to
// an allow list so callers cannot order by arbitrary SQL.
func applyOrdering(q *gorm.DB, ordering string, allowed map[string]bool, fallback string) *gorm.DB {
	if ordering == "" {
		return q.Order(fallback)
	}
	field := ordering
	desc := false
	if strings.HasPrefix(ordering, "-") {
		field = ordering[1:]
		desc = true
	}
	if !allowed[field] {
		return q.Order(fallback)
	}
	if desc {
		return q.Order(field + " DESC")
	}
	return q.Order(field + " ASC")
}

// lockForUpdate adds a row lock on dialects that support it. The sqlite
// test dialect has no FOR UPDATE; single-writer semantics cover it there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
