package writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/SebastienMelki/timebuffer/internal/queue"
	"github.com/SebastienMelki/timebuffer/internal/store"
)

var (
	t1 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Second)
	t3 = t1.Add(2 * time.Second)

	errConnection = &store.Error{Op: "insert", Code: store.CodeConnectionFailure, Err: io.EOF}
	errConstraint = &store.Error{Op: "insert", Code: "23502", Err: errors.New("null value")}
)

// mockRepository records calls and returns the configured error.
type mockRepository struct {
	err      error
	rows     []time.Time
	single   []time.Time
	batches  [][]time.Time
	selected int
}

func (m *mockRepository) InsertOne(_ context.Context, ts time.Time) error {
	m.single = append(m.single, ts)
	return m.err
}

func (m *mockRepository) InsertMany(_ context.Context, timestamps []time.Time) error {
	m.batches = append(m.batches, timestamps)
	return m.err
}

func (m *mockRepository) SelectAll(_ context.Context) ([]time.Time, error) {
	m.selected++
	if m.err != nil {
		return nil, m.err
	}
	return m.rows, nil
}

// mockBreaker counts trips.
type mockBreaker struct {
	trips int
}

func (m *mockBreaker) MarkUnavailable() {
	m.trips++
}

func newTestCoordinator(repoErr error) (*Coordinator, *mockRepository, *queue.Queue, *mockBreaker) {
	repo := &mockRepository{err: repoErr}
	q := queue.New(10, nil, nil)
	breaker := &mockBreaker{}
	return NewCoordinator(repo, q, breaker, nil, nil), repo, q, breaker
}

func TestWriteOne_Success(t *testing.T) {
	c, repo, q, breaker := newTestCoordinator(nil)

	if err := c.WriteOne(context.Background(), t1); err != nil {
		t.Fatalf("WriteOne: %v", err)
	}
	if len(repo.single) != 1 || !repo.single[0].Equal(t1) {
		t.Fatalf("unexpected inserts: %v", repo.single)
	}
	if q.Size() != 0 || breaker.trips != 0 {
		t.Fatalf("unexpected side effects: size=%d trips=%d", q.Size(), breaker.trips)
	}
}

func TestWriteOne_ConnectionFailureRequeues(t *testing.T) {
	c, _, q, breaker := newTestCoordinator(errConnection)
	q.Offer(t3)

	if err := c.WriteOne(context.Background(), t1); err != nil {
		t.Fatalf("connection failures must be contained, got %v", err)
	}
	if breaker.trips != 1 {
		t.Fatalf("expected breaker tripped once, got %d", breaker.trips)
	}
	got := q.DrainUpTo(10)
	if len(got) != 2 || !got[0].Equal(t1) || !got[1].Equal(t3) {
		t.Fatalf("expected [t1 t3] with t1 at head, got %v", got)
	}
}

func TestWriteOne_OtherFailurePropagates(t *testing.T) {
	c, _, q, breaker := newTestCoordinator(errConstraint)

	err := c.WriteOne(context.Background(), t1)
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	if !errors.Is(err, errConstraint) {
		t.Fatal("expected the store error in the chain")
	}
	if q.Size() != 0 {
		t.Fatalf("entry must not be requeued, size=%d", q.Size())
	}
	if breaker.trips != 0 {
		t.Fatal("breaker must not trip on non-connection errors")
	}
}

func TestWriteBatch(t *testing.T) {
	tests := []struct {
		name      string
		repoErr   error
		wantErr   bool
		wantQueue []time.Time
		wantTrips int
	}{
		{
			name:      "success",
			repoErr:   nil,
			wantQueue: nil,
		},
		{
			name:      "connection failure requeues the whole batch",
			repoErr:   errConnection,
			wantQueue: []time.Time{t1, t2},
			wantTrips: 1,
		},
		{
			name:      "wrapped connection failure requeues",
			repoErr:   fmt.Errorf("exec: %w", &store.Error{Code: store.CodeUnableToConnect}),
			wantQueue: []time.Time{t1, t2},
			wantTrips: 1,
		},
		{
			name:    "other failure drops the batch",
			repoErr: errConstraint,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, repo, q, breaker := newTestCoordinator(tt.repoErr)

			err := c.WriteBatch(context.Background(), []time.Time{t1, t2})
			if (err != nil) != tt.wantErr {
				t.Fatalf("WriteBatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(repo.batches) != 1 || len(repo.batches[0]) != 2 {
				t.Fatalf("expected one batch of 2, got %v", repo.batches)
			}

			got := q.DrainUpTo(10)
			if len(got) != len(tt.wantQueue) {
				t.Fatalf("queue = %v, want %v", got, tt.wantQueue)
			}
			for i := range got {
				if !got[i].Equal(tt.wantQueue[i]) {
					t.Fatalf("queue[%d] = %v, want %v", i, got[i], tt.wantQueue[i])
				}
			}
			if breaker.trips != tt.wantTrips {
				t.Fatalf("trips = %d, want %d", breaker.trips, tt.wantTrips)
			}
		})
	}
}

func TestWriteBatch_EmptyIsNoop(t *testing.T) {
	c, repo, _, _ := newTestCoordinator(errConnection)

	if err := c.WriteBatch(context.Background(), nil); err != nil {
		t.Fatalf("WriteBatch(nil): %v", err)
	}
	if len(repo.batches) != 0 {
		t.Fatal("empty batch must not reach the store")
	}
}

func TestFindAll(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c, repo, _, breaker := newTestCoordinator(nil)
		repo.rows = []time.Time{t2, t1}

		got, err := c.FindAll(context.Background())
		if err != nil {
			t.Fatalf("FindAll: %v", err)
		}
		if len(got) != 2 || breaker.trips != 0 {
			t.Fatalf("got %v, trips %d", got, breaker.trips)
		}
	})

	t.Run("connection failure trips and propagates", func(t *testing.T) {
		c, _, q, breaker := newTestCoordinator(errConnection)

		_, err := c.FindAll(context.Background())
		if !store.IsConnectionError(err) {
			t.Fatalf("expected connection error, got %v", err)
		}
		if breaker.trips != 1 {
			t.Fatalf("expected one trip, got %d", breaker.trips)
		}
		if q.Size() != 0 {
			t.Fatal("reads must not touch the queue")
		}
	})

	t.Run("other failure propagates without trip", func(t *testing.T) {
		c, _, _, breaker := newTestCoordinator(errConstraint)

		if _, err := c.FindAll(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		if breaker.trips != 0 {
			t.Fatal("breaker must not trip on non-connection errors")
		}
	})
}
