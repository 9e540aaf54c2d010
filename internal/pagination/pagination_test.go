package pagination

import "testing"

func TestPageRequestDefaults(t *testing.T) {
	t.Run("fills missing values", func(t *testing.T) {
		var p PageRequest
		p.Defaults()
		if p.Page != 1 || p.PageSize != DefaultPageSize {
			t.Errorf("expected 1/%d, got %d/%d", DefaultPageSize, p.Page, p.PageSize)
		}
	})

	t.Run("clamps oversized windows", func(t *testing.T) {
		p := PageRequest{Page: 2, PageSize: 10_000}
		p.Defaults()
		if p.PageSize != MaxPageSize {
			t.Errorf("expected clamp to %d, got %d", MaxPageSize, p.PageSize)
		}
		if p.Offset() != MaxPageSize {
			t.Errorf("expected offset %d for page 2, got %d", MaxPageSize, p.Offset())
		}
	})
}

func TestNewPageResponse(t *testing.T) {
	resp := NewPageResponse[int](nil, 1, 50, 101)
	if resp.Data == nil {
		t.Error("expected empty data, not nil")
	}
	if resp.TotalPages != 3 {
		t.Errorf("expected 3 pages for 101 items, got %d", resp.TotalPages)
	}
}
