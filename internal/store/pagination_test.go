package store

import (
	"errors"
	"testing"
	"time"

	"github.com/safar/storefront/internal/database"
)

func TestDecodeCursor(t *testing.T) {
	want := OrderCursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), ID: 42}

	got, err := DecodeCursor(EncodeCursor(want))
	if err != nil {
		t.Fatalf("Decode cursor: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.ID != want.ID {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	for _, bad := range []string{"%%%", "bm90LWpzb24="} {
		if _, err := DecodeCursor(bad); !errors.Is(err, database.ErrValidation) {
			t.Errorf("Cursor %q: expected validation error, got: %v", bad, err)
		}
	}
}
