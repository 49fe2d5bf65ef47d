package models

import (
	"testing"

	"github.com/Temutjin2k/ride-tracking-system/pkg/validator"
)

func TestFiltersSort(t *testing.T) {
	tests := []struct {
		name      string
		filters   Filters
		column    string
		direction string
	}{
		{"ascending", Filters{Sort: "fare", SortSafelist: TripSortSafelist}, "fare", "ASC"},
		{"descending", Filters{Sort: "-status", SortSafelist: TripSortSafelist}, "status", "DESC"},
		{"unknown key uses default", Filters{Sort: "fare; DROP TABLE trips", SortSafelist: TripSortSafelist}, "created_at", "DESC"},
		{"empty safelist uses trip keys", Filters{Sort: "fare"}, "fare", "ASC"},
		{"nothing set", Filters{}, "created_at", "DESC"},
	}

	for _, tt := range tests {
		if got := tt.filters.SortColumn(); got != tt.column {
			t.Fatalf("%s: column = %q, want %q", tt.name, got, tt.column)
		}
		if got := tt.filters.SortDirection(); got != tt.direction {
			t.Fatalf("%s: direction = %q, want %q", tt.name, got, tt.direction)
		}
	}
}

func TestFiltersValidate(t *testing.T) {
	v := validator.New()
	Filters{Page: 1, PageSize: 20, Sort: DefaultTripSort}.Validate(v)
	if !v.Valid() {
		t.Fatalf("valid filters rejected: %v", v.Errors)
	}

	v = validator.New()
	Filters{Page: 0, PageSize: 500, Sort: "rating"}.Validate(v)
	for _, key := range []string{"page", "page_size", "sort"} {
		if _, ok := v.Errors[key]; !ok {
			t.Fatalf("missing error for %s: %v", key, v.Errors)
		}
	}
}

func TestCalculateMetadata(t *testing.T) {
	m := CalculateMetadata(12, 2, 5)
	if m.FirstPage != 1 || m.LastPage != 3 || m.TotalRecords != 12 || m.CurrentPage != 2 {
		t.Fatalf("metadata = %+v", m)
	}

	if m := CalculateMetadata(0, 1, 20); m.LastPage != 0 || m.FirstPage != 0 {
		t.Fatalf("empty metadata = %+v", m)
	}
}

func TestFiltersOffset(t *testing.T) {
	f := Filters{Page: 3, PageSize: 20}
	if f.Limit() != 20 || f.Offset() != 40 {
		t.Fatalf("limit %d offset %d", f.Limit(), f.Offset())
	}
}
