package models

import (
	"math"
	"slices"
	"strings"

	"github.com/Temutjin2k/ride-tracking-system/pkg/validator"
)

// DefaultTripSort is used when the requested sort key is not permitted.
const DefaultTripSort = "-created_at"

// TripSortSafelist are the sort keys accepted when listing trips.
var TripSortSafelist = []string{"created_at", "-created_at", "fare", "-fare", "status", "-status"}

// Filters is pagination and sorting of a list request.
type Filters struct {
	Page         int
	PageSize     int
	Sort         string
	SortSafelist []string
}

func (f Filters) safelist() []string {
	if len(f.SortSafelist) == 0 {
		return TripSortSafelist
	}
	return f.SortSafelist
}

func (f Filters) Validate(v *validator.Validator) {
	v.Check(f.Page > 0, "page", "must be greater than zero")
	v.Check(f.Page <= 10_000_000, "page", "must be a maximum of 10 million")
	v.Check(f.PageSize > 0, "page_size", "must be greater than zero")
	v.Check(f.PageSize <= 100, "page_size", "must be a maximum of 100")
	v.Check(validator.PermittedValue(f.Sort, f.safelist()...), "sort", "invalid sort value")
}

// sort falls back to DefaultTripSort for keys outside the safelist.
func (f Filters) sort() string {
	if slices.Contains(f.safelist(), f.Sort) {
		return f.Sort
	}
	return DefaultTripSort
}

// SortColumn is the column name, safe to put into SQL.
func (f Filters) SortColumn() string {
	return strings.TrimPrefix(f.sort(), "-")
}

func (f Filters) SortDirection() string {
	if strings.HasPrefix(f.sort(), "-") {
		return "DESC"
	}
	return "ASC"
}

func (f Filters) Limit() int {
	return f.PageSize
}

func (f Filters) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type Metadata struct {
	CurrentPage  int `json:"current_page"`
	PageSize     int `json:"page_size"`
	FirstPage    int `json:"first_page"`
	LastPage     int `json:"last_page"`
	TotalRecords int `json:"total_records"`
}

// CalculateMetadata: 12 records with page size 5 give LastPage 3. No records, no pages.
func CalculateMetadata(totalRecords, page, pageSize int) Metadata {
	if totalRecords == 0 || pageSize <= 0 {
		return Metadata{CurrentPage: page, PageSize: pageSize}
	}
	return Metadata{
		CurrentPage:  page,
		PageSize:     pageSize,
		FirstPage:    1,
		LastPage:     int(math.Ceil(float64(totalRecords) / float64(pageSize))),
		TotalRecords: totalRecords,
	}
}
