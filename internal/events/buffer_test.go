package events

import (
	"strconv"
	"testing"

	"pgregory.net/rapid"
)

// The window always holds the newest min(size, added) events in order.
func TestRingBufferMatchesTail(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 8).Draw(t, "size")
		adds := rapid.IntRange(0, 30).Draw(t, "adds")
		n := rapid.IntRange(-1, 10).Draw(t, "n")

		rb := NewRingBuffer(size)
		var all []Event
		for i := 0; i < adds; i++ {
			e := Event{Name: strconv.Itoa(i)}
			rb.Add(e)
			all = append(all, e)
		}

		keep := min(size, adds)
		tail := all[len(all)-keep:]
		if rb.Len() != keep {
			t.Fatalf("len %d, want %d", rb.Len(), keep)
		}
		if rb.TotalCount() != uint64(adds) {
			t.Fatalf("total %d, want %d", rb.TotalCount(), adds)
		}

		want := tail
		if n > 0 && n < len(tail) {
			want = tail[len(tail)-n:]
		}
		got := rb.Last(n)
		if len(got) != len(want) {
			t.Fatalf("Last(%d) returned %d events, want %d", n, len(got), len(want))
		}
		for i := range want {
			if got[i].Name != want[i].Name {
				t.Fatalf("Last(%d)[%d] = %s, want %s", n, i, got[i].Name, want[i].Name)
			}
		}
	})
}

func TestRingBufferClear(t *testing.T) {
	rb := NewRingBuffer(2)
	rb.Add(Event{Name: "a"})
	rb.Add(Event{Name: "b"})
	rb.Add(Event{Name: "c"})
	rb.Clear()
	if rb.Len() != 0 || rb.TotalCount() != 0 || len(rb.Snapshot()) != 0 {
		t.Fatal("expected empty buffer after Clear")
	}
	rb.Add(Event{Name: "d"})
	if got := rb.Snapshot(); len(got) != 1 || got[0].Name != "d" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}
