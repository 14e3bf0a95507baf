package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/okian/refmatch/internal/adapters/mq/queue"
	"github.com/okian/refmatch/internal/adapters/mq/worker"
	"github.com/okian/refmatch/internal/adapters/notify"
	"github.com/okian/refmatch/internal/adapters/payment"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/pkg/logger"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

// flakyHandler fails the first failures[id] attempts of each intent.
type flakyHandler struct {
	mu       sync.Mutex
	failures map[string]int
	attempts map[string]int
	handled  []model.Intent
}

func newFlakyHandler() *flakyHandler {
	return &flakyHandler{failures: map[string]int{}, attempts: map[string]int{}}
}

func (h *flakyHandler) Handle(_ context.Context, in model.Intent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts[in.ID]++
	if h.attempts[in.ID] <= h.failures[in.ID] {
		return errors.New("temporarily unavailable")
	}
	h.handled = append(h.handled, in)
	return nil
}

func (h *flakyHandler) snapshot() ([]model.Intent, map[string]int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	attempts := make(map[string]int, len(h.attempts))
	for k, v := range h.attempts {
		attempts[k] = v
	}
	return append([]model.Intent(nil), h.handled...), attempts
}

func notifyIntent(id string) model.Intent {
	return model.Intent{
		ID:        id,
		Kind:      model.IntentNotify,
		Message:   model.MessageOffer,
		Recipient: model.Recipient{Role: model.RoleReferee, ID: "r-1"},
		GameID:    "g-1",
	}
}

func TestRouter(t *testing.T) {
	Convey("Given a router over a sink and a ledger", t, func() {
		var notified []model.Intent
		sink := notify.SinkFunc(func(_ context.Context, in model.Intent) error {
			notified = append(notified, in)
			return nil
		})
		ledger := payment.NewLedger(nil)
		r := worker.Router{Sink: sink, Payments: ledger}
		ctx := context.Background()
		a := model.Assignment{ID: "a-1", GameID: "g-1", Fee: decimal.NewFromInt(60)}

		Convey("When a confirmation and its authorization are handled", func() {
			So(r.Handle(ctx, model.Notify(model.Recipient{Role: model.RoleOrganizer, ID: "o-1"}, model.MessageConfirmed, a)), ShouldBeNil)
			So(r.Handle(ctx, model.Payment(model.IntentAuthorize, a, a.Fee)), ShouldBeNil)

			Convey("Then the sink and the ledger each see one", func() {
				So(notified, ShouldHaveLength, 1)
				h, ok := ledger.Get("a-1")
				So(ok, ShouldBeTrue)
				So(h.Status, ShouldEqual, payment.HoldAuthorized)
			})

			Convey("And the game completes", func() {
				So(r.Handle(ctx, model.Payment(model.IntentCapture, a, a.Fee)), ShouldBeNil)
				h, _ := ledger.Get("a-1")
				So(h.Status, ShouldEqual, payment.HoldCaptured)
			})
		})

		Convey("When a void arrives", func() {
			So(r.Handle(ctx, model.Payment(model.IntentVoid, a, decimal.Zero)), ShouldBeNil)
			h, _ := ledger.Get("a-1")
			So(h.Status, ShouldEqual, payment.HoldVoided)
		})

		Convey("When the kind is unknown", func() {
			err := r.Handle(ctx, model.Intent{ID: "x", Kind: "fax"})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestInMemoryWorker(t *testing.T) {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	Convey("Given a worker over a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		h := newFlakyHandler()

		var (
			dlMu sync.Mutex
			dead []model.Intent
		)
		w := worker.NewInMemoryWorker(q, h,
			worker.WithName("test-dispatcher"),
			worker.WithMaxAttempts(3),
			worker.WithBackoff(time.Millisecond, 4*time.Millisecond),
			worker.WithDeadLetter(func(_ context.Context, in model.Intent, _ error) {
				dlMu.Lock()
				dead = append(dead, in)
				dlMu.Unlock()
			}),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		Convey("When an intent fails twice and then succeeds", func() {
			h.failures["i-1"] = 2
			So(q.Enqueue(ctx, notifyIntent("i-1")), ShouldBeTrue)
			eventually(func() bool { handled, _ := h.snapshot(); return len(handled) == 1 })

			Convey("Then it is delivered on the third attempt", func() {
				handled, attempts := h.snapshot()
				So(attempts["i-1"], ShouldEqual, 3)
				So(handled, ShouldHaveLength, 1)
				So(handled[0].Attempt, ShouldEqual, 3)
			})
		})

		Convey("When an intent keeps failing", func() {
			h.failures["i-2"] = 10
			So(q.Enqueue(ctx, notifyIntent("i-2")), ShouldBeTrue)
			eventually(func() bool { dlMu.Lock(); defer dlMu.Unlock(); return len(dead) == 1 })

			Convey("Then it is dead-lettered after the attempt limit", func() {
				_, attempts := h.snapshot()
				So(attempts["i-2"], ShouldEqual, 3)
				dlMu.Lock()
				defer dlMu.Unlock()
				So(dead, ShouldHaveLength, 1)
				So(dead[0].ID, ShouldEqual, "i-2")
			})
		})

		Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer shutdownCancel()

			So(w.Shutdown(shutdownCtx), ShouldBeNil)
		})
	})
}

func TestBackoff(t *testing.T) {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	Convey("Given a worker with 100ms base backoff capped at 1s", t, func() {
		w := worker.NewInMemoryWorker(queue.NewInMemoryQueue(), newFlakyHandler(),
			worker.WithBackoff(100*time.Millisecond, time.Second))

		Convey("Then the delay doubles up to the cap", func() {
			So(w.Backoff(1), ShouldEqual, 100*time.Millisecond)
			So(w.Backoff(2), ShouldEqual, 200*time.Millisecond)
			So(w.Backoff(4), ShouldEqual, 800*time.Millisecond)
			So(w.Backoff(5), ShouldEqual, time.Second)
			So(w.Backoff(30), ShouldEqual, time.Second)
		})
	})
}

func TestPool(t *testing.T) {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		t.Fatalf("logger init: %v", err)
	}

	Convey("Given a pool of four dispatchers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		h := newFlakyHandler()
		pool := worker.NewPool(4, q, h, worker.WithBackoff(time.Millisecond, time.Millisecond))
		So(pool.Size(), ShouldEqual, 4)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		Convey("When many intents are queued and the pool shuts down", func() {
			ids := []string{"i-1", "i-2", "i-3", "i-4", "i-5", "i-6", "i-7", "i-8"}
			h.failures["i-3"] = 1
			for _, id := range ids {
				So(q.Enqueue(ctx, notifyIntent(id)), ShouldBeTrue)
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			So(pool.Shutdown(shutdownCtx), ShouldBeNil)

			Convey("Then every queued intent was delivered", func() {
				handled, _ := h.snapshot()
				So(handled, ShouldHaveLength, len(ids))
				So(q.IsClosed(), ShouldBeTrue)
			})
		})

		Convey("When created with no count", func() {
			p := worker.NewPool(0, q, h)
			So(p.Size(), ShouldBeGreaterThan, 0)
		})
	})
}

// eventually polls cond for up to a second.
func eventually(cond func() bool) {
	deadline := time.Now().Add(time.Second)
	for !cond() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}
