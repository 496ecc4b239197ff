package watch

import (
	"strings"
	"testing"
	"time"
)

func TestBackoff_StaysWithinBounds(t *testing.T) {
	floor := 250 * time.Millisecond
	ceiling := 10 * time.Second
	b := NewBackoff(floor, ceiling, 1.2, time.Second)

	if got := b.Next(); got != floor {
		t.Fatalf("first interval = %v, want %v", got, floor)
	}

	prev := floor
	for i := 0; i < 100; i++ {
		if i%17 == 0 {
			b.Reset()
		}
		d := b.Next()
		if d < floor || d > ceiling {
			t.Fatalf("interval %v outside [%v, %v]", d, floor, ceiling)
		}
		if i%17 != 0 && d < prev {
			t.Fatalf("interval shrank without reset: %v after %v", d, prev)
		}
		prev = d
	}
}

func TestBackoff_ReachesCap(t *testing.T) {
	b := NewBackoff(250*time.Millisecond, 10*time.Second, 1.2, time.Second)
	for i := 0; i < 50; i++ {
		b.Next()
	}
	if got := b.Current(); got != 10*time.Second {
		t.Errorf("Current() = %v, want cap", got)
	}
}

func TestBackoff_ResetIsClamped(t *testing.T) {
	tests := []struct {
		name    string
		restart time.Duration
		want    time.Duration
	}{
		{"within bounds", time.Second, time.Second},
		{"below floor", time.Millisecond, 250 * time.Millisecond},
		{"above cap", time.Minute, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(250*time.Millisecond, 10*time.Second, 1.2, tt.restart)
			b.Next()
			b.Reset()
			if got := b.Next(); got != tt.want {
				t.Errorf("Next() after Reset = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackoff_MultiplierBelowOneDoesNotShrink(t *testing.T) {
	b := NewBackoff(time.Second, 10*time.Second, 0.5, time.Second)
	b.Next()
	if got := b.Next(); got != time.Second {
		t.Errorf("Next() = %v, want %v", got, time.Second)
	}
}

func TestBuffer_NeverExceedsBound(t *testing.T) {
	b := NewBuffer(1024, 512)
	line := strings.Repeat("x", 99) + "\n"
	for i := 0; i < 10000; i++ {
		b.Append(line)
		if b.Len() > 1024 {
			t.Fatalf("buffer holds %d bytes, bound is 1024", b.Len())
		}
	}
	if b.Dropped() == 0 {
		t.Error("expected trimming to have dropped output")
	}
}

func TestBuffer_TrimsAtLineBoundary(t *testing.T) {
	b := NewBuffer(BufferMax, BufferTrim)
	line := strings.Repeat("y", 63) + "\n"
	for b.Dropped() == 0 {
		b.Append(line)
	}

	got := b.String()
	if !strings.HasPrefix(got, strings.Repeat("y", 63)+"\n") {
		t.Errorf("retained output does not start on a line boundary: %q", got[:70])
	}
	if len(got) > BufferMax {
		t.Errorf("retained %d bytes, bound is %d", len(got), BufferMax)
	}
}

func TestBuffer_OversizedAppend(t *testing.T) {
	b := NewBuffer(100, 50)
	b.Append(strings.Repeat("z", 1000))
	if b.Len() > 100 {
		t.Errorf("Len() = %d, want <= 100", b.Len())
	}
}

func TestNewBuffer_InvalidSizes(t *testing.T) {
	b := NewBuffer(0, 0)
	if b.max != BufferMax || b.trim != BufferMax/2 {
		t.Errorf("NewBuffer(0, 0) = max %d trim %d", b.max, b.trim)
	}

	b = NewBuffer(10, 20)
	if b.trim != 5 {
		t.Errorf("trim = %d, want 5", b.trim)
	}
}
