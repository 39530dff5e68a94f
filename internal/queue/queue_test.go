package queue

import (
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/SebastienMelki/timebuffer/internal/observability"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// ts returns a distinct timestamp for index i.
func ts(i int) time.Time {
	return base.Add(time.Duration(i) * time.Second)
}

func assertEntries(t *testing.T, got []time.Time, want ...time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("entry %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestOffer_PreservesFIFOOrder(t *testing.T) {
	q := New(10, nil, nil)

	for i := 0; i < 10; i++ {
		if !q.Offer(ts(i)) {
			t.Fatalf("Offer(%d) rejected below capacity", i)
		}
	}

	got := q.DrainUpTo(1000)
	want := make([]time.Time, 10)
	for i := range want {
		want[i] = ts(i)
	}
	assertEntries(t, got, want...)

	if q.Size() != 0 {
		t.Fatalf("expected empty queue, got size %d", q.Size())
	}
}

func TestOffer_DropsExcess(t *testing.T) {
	q := New(2, nil, nil)

	accepted := 0
	for i := 0; i < 3; i++ {
		if q.Offer(ts(i)) {
			accepted++
		}
	}

	if accepted != 2 {
		t.Fatalf("expected 2 accepted offers, got %d", accepted)
	}
	if q.Size() != 2 {
		t.Fatalf("expected size 2, got %d", q.Size())
	}
	assertEntries(t, q.DrainUpTo(10), ts(0), ts(1))
}

func TestDrainUpTo(t *testing.T) {
	tests := []struct {
		name    string
		offered int
		n       int
		want    int
	}{
		{name: "empty queue", offered: 0, n: 5, want: 0},
		{name: "fewer than requested", offered: 3, n: 5, want: 3},
		{name: "exactly requested", offered: 5, n: 5, want: 5},
		{name: "more than requested", offered: 8, n: 5, want: 5},
		{name: "zero requested", offered: 3, n: 0, want: 0},
		{name: "negative requested", offered: 3, n: -1, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(10, nil, nil)
			for i := 0; i < tt.offered; i++ {
				q.Offer(ts(i))
			}

			got := q.DrainUpTo(tt.n)
			if got == nil {
				t.Fatal("DrainUpTo returned nil, want empty slice")
			}
			if len(got) != tt.want {
				t.Fatalf("got %d entries, want %d", len(got), tt.want)
			}
			for i := range got {
				if !got[i].Equal(ts(i)) {
					t.Fatalf("entry %d out of order: %v", i, got[i])
				}
			}
			if q.Size() != tt.offered-tt.want {
				t.Fatalf("remaining size %d, want %d", q.Size(), tt.offered-tt.want)
			}
		})
	}
}

func TestReturnToHead_PrependsInOrder(t *testing.T) {
	q := New(10, nil, nil)
	q.Offer(ts(10))
	q.Offer(ts(11))

	q.ReturnToHead([]time.Time{ts(1), ts(2), ts(3)})

	assertEntries(t, q.DrainUpTo(3), ts(1), ts(2), ts(3))
	assertEntries(t, q.DrainUpTo(3), ts(10), ts(11))
}

func TestReturnToHead_UndoesDrain(t *testing.T) {
	q := New(5, nil, nil)
	for i := 0; i < 5; i++ {
		q.Offer(ts(i))
	}

	drained := q.DrainUpTo(3)
	q.ReturnToHead(drained)

	assertEntries(t, q.DrainUpTo(5), ts(0), ts(1), ts(2), ts(3), ts(4))
}

func TestReturnToHead_EvictsNewestOnOverflow(t *testing.T) {
	q := New(3, nil, nil)
	q.Offer(ts(0))
	q.Offer(ts(1))
	drained := q.DrainUpTo(2)

	// Producers refill the buffer while the write is in flight.
	q.Offer(ts(10))
	q.Offer(ts(11))
	q.Offer(ts(12))

	q.ReturnToHead(drained)

	if q.Size() != 3 {
		t.Fatalf("size %d exceeds capacity 3", q.Size())
	}
	assertEntries(t, q.DrainUpTo(3), ts(0), ts(1), ts(10))
}

func TestReturnToHead_LargerThanCapacity(t *testing.T) {
	q := New(2, nil, nil)

	q.ReturnToHead([]time.Time{ts(0), ts(1), ts(2)})

	assertEntries(t, q.DrainUpTo(5), ts(0), ts(1))
}

func TestReturnToHead_Empty(t *testing.T) {
	q := New(2, nil, nil)
	q.Offer(ts(0))

	q.ReturnToHead(nil)

	if q.Size() != 1 {
		t.Fatalf("expected size 1, got %d", q.Size())
	}
}

func TestWrapAround(t *testing.T) {
	q := New(3, nil, nil)

	for round := 0; round < 5; round++ {
		q.Offer(ts(round*2))
		q.Offer(ts(round*2 + 1))
		assertEntries(t, q.DrainUpTo(2), ts(round*2), ts(round*2+1))
	}
}

func TestNew_NonPositiveCapacity(t *testing.T) {
	q := New(0, nil, nil)
	if q.Capacity() != 1 {
		t.Fatalf("expected capacity 1, got %d", q.Capacity())
	}
}

func TestConcurrentOffers_NeverExceedCapacity(t *testing.T) {
	const (
		capacity  = 100
		producers = 8
		perWorker = 50
	)
	metrics, err := observability.NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	q := New(capacity, metrics, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if q.Offer(ts(p*perWorker + i)) {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
				if size := q.Size(); size > capacity {
					t.Errorf("size %d exceeds capacity", size)
				}
			}
		}(p)
	}
	wg.Wait()

	if accepted != capacity {
		t.Fatalf("expected %d accepted offers, got %d", capacity, accepted)
	}
	if q.Size() != capacity {
		t.Fatalf("expected size %d, got %d", capacity, q.Size())
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (Config{MaxBufferSize: 1}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Config{MaxBufferSize: 0}).Validate(); err != ErrInvalidCapacity {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
}
