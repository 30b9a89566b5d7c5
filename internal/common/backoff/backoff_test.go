package backoff

import (
	"testing"
	"time"
)

func TestDelayProgression(t *testing.T) {
	base := 500 * time.Millisecond
	max := 30 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{-1, 0},
		{1, 500 * time.Millisecond},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{10, 30 * time.Second}, // capped
	}
	for _, c := range cases {
		if got := Delay(c.attempt, base, max); got != c.want {
			t.Fatalf("Delay(%d)=%v want %v", c.attempt, got, c.want)
		}
	}
}

func TestDelayCap(t *testing.T) {
	if got := Delay(100, time.Second, 5*time.Second); got != 5*time.Second {
		t.Fatalf("expected cap at 5s, got %v", got)
	}
}
