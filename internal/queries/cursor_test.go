package queries

import (
	"testing"
	"time"
)

func TestCursorTimestampKeepsSubSecondPrecision(t *testing.T) {
	stamp := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	want := "2026-03-14T09:26:53.589793238Z"

	if got := encodeCursorValue(stamp); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if got := encodeCursorValue(&stamp); got != want {
		t.Errorf("Expected %s for the pointer form, got %s", want, got)
	}
}

func TestCursorNilTimestampEncodesEmpty(t *testing.T) {
	var stamp *time.Time
	if got := encodeCursorValue(stamp); got != "" {
		t.Errorf("Expected an empty cursor value, got %q", got)
	}
}
