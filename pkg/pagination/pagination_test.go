package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{
		CreatedAt: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		ID:        uuid.New(),
	}

	out, err := ParseCursor(EncodeCursor(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out == nil {
		t.Fatal("expected cursor")
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestParseCursorEmptyReturnsNil(t *testing.T) {
	out, err := ParseCursor("  ")
	if err != nil || out != nil {
		t.Fatalf("expected nil,nil got %v,%v", out, err)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if _, err := ParseCursor("not-base64!!"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNormalizeLimitBounds(t *testing.T) {
	if NormalizeLimit(0) != DefaultLimit {
		t.Fatal("zero should fall back to default")
	}
	if NormalizeLimit(1000) != MaxLimit {
		t.Fatal("excess should cap at max")
	}
	if LimitWithBuffer(10) != 11 {
		t.Fatal("buffer should add one")
	}
}
