package poller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/bikewatch/internal/adapters/poller"
	"github.com/okian/bikewatch/internal/domain/model"
	logging "github.com/okian/bikewatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// tickRecorder counts cycles and tracks the maximum concurrency observed.
type tickRecorder struct {
	calls    atomic.Int32
	active   atomic.Int32
	maxSeen  atomic.Int32
	duration time.Duration
	err      error
}

func (r *tickRecorder) tick(ctx context.Context) error {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	r.calls.Add(1)
	if r.duration > 0 {
		time.Sleep(r.duration)
	}
	return r.err
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestPoller_Lifecycle(t *testing.T) {
	convey.Convey("Given a new poller", t, func() {
		_ = logging.Init()

		convey.Convey("When created with a non-positive interval", func() {
			p := poller.New(0)

			convey.Convey("Then it falls back to one second", func() {
				convey.So(p.Interval(), convey.ShouldEqual, time.Second)
			})
		})

		convey.Convey("When started", func() {
			rec := &tickRecorder{}
			p := poller.New(10*time.Millisecond, poller.WithName("test-poller"))
			err := p.Start(context.Background(), rec.tick)
			defer p.Stop()

			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the first cycle runs immediately and repeats", func() {
				convey.So(waitFor(func() bool { return rec.calls.Load() >= 3 }, time.Second), convey.ShouldBeTrue)
			})

			convey.Convey("Then starting again is rejected", func() {
				convey.So(errors.Is(p.Start(context.Background(), rec.tick), poller.ErrAlreadyStarted), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When stopped before starting", func() {
			p := poller.New(10 * time.Millisecond)
			convey.So(p.Stopped(), convey.ShouldBeFalse)
			p.Stop()

			convey.Convey("Then start fails and wait returns", func() {
				convey.So(p.Stopped(), convey.ShouldBeTrue)
				convey.So(errors.Is(p.Start(context.Background(), func(context.Context) error { return nil }), poller.ErrStopped), convey.ShouldBeTrue)
				p.Wait()
			})
		})
	})
}

func TestPoller_NoOverlap(t *testing.T) {
	convey.Convey("Given a cycle slower than the interval", t, func() {
		_ = logging.Init()

		rec := &tickRecorder{duration: 30 * time.Millisecond}
		p := poller.New(time.Millisecond)
		convey.So(p.Start(context.Background(), rec.tick), convey.ShouldBeNil)

		convey.Convey("When triggered repeatedly while busy", func() {
			for i := 0; i < 20; i++ {
				p.Trigger()
				time.Sleep(3 * time.Millisecond)
			}
			p.Stop()
			p.Wait()

			convey.Convey("Then at most one cycle was ever in flight", func() {
				convey.So(rec.maxSeen.Load(), convey.ShouldEqual, int32(1))
				convey.So(rec.calls.Load(), convey.ShouldBeGreaterThan, int32(0))
			})
		})
	})

	convey.Convey("Given a cycle in flight", t, func() {
		_ = logging.Init()

		release := make(chan struct{})
		entered := make(chan struct{}, 1)
		p := poller.New(time.Hour)
		err := p.Start(context.Background(), func(context.Context) error {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			return nil
		})
		convey.So(err, convey.ShouldBeNil)
		<-entered

		convey.Convey("Then a manual trigger is skipped", func() {
			convey.So(p.Busy(), convey.ShouldBeTrue)
			convey.So(p.Trigger(), convey.ShouldBeFalse)
			close(release)
			p.Stop()
			p.Wait()
		})
	})
}

func TestPoller_Stop(t *testing.T) {
	convey.Convey("Given a running poller with a slow cycle", t, func() {
		_ = logging.Init()

		var finished atomic.Bool
		var cancelled atomic.Bool
		entered := make(chan struct{}, 1)
		p := poller.New(time.Hour)
		err := p.Start(context.Background(), func(ctx context.Context) error {
			select {
			case entered <- struct{}{}:
			default:
			}
			time.Sleep(40 * time.Millisecond)
			cancelled.Store(ctx.Err() != nil)
			finished.Store(true)
			return nil
		})
		convey.So(err, convey.ShouldBeNil)
		<-entered

		convey.Convey("When stopped twice mid-cycle", func() {
			convey.So(func() {
				p.Stop()
				p.Stop()
			}, convey.ShouldNotPanic)
			p.Wait()

			convey.Convey("Then the in-flight cycle finished uncancelled", func() {
				convey.So(finished.Load(), convey.ShouldBeTrue)
				convey.So(cancelled.Load(), convey.ShouldBeFalse)
			})

			convey.Convey("Then triggers are refused", func() {
				convey.So(p.Trigger(), convey.ShouldBeFalse)
			})
		})
	})

	convey.Convey("Given a poller whose context is cancelled", t, func() {
		_ = logging.Init()

		rec := &tickRecorder{}
		ctx, cancel := context.WithCancel(context.Background())
		p := poller.New(5 * time.Millisecond)
		convey.So(p.Start(ctx, rec.tick), convey.ShouldBeNil)
		cancel()
		p.Wait()

		convey.Convey("Then no further cycles run", func() {
			n := rec.calls.Load()
			time.Sleep(30 * time.Millisecond)
			convey.So(rec.calls.Load(), convey.ShouldEqual, n)
		})
	})
}

func TestPoller_FailureKeepsPolling(t *testing.T) {
	convey.Convey("Given a cycle that always fails", t, func() {
		_ = logging.Init()

		rec := &tickRecorder{err: errors.New("network down")}
		p := poller.New(5 * time.Millisecond)
		convey.So(p.Start(context.Background(), rec.tick), convey.ShouldBeNil)
		defer p.Stop()

		convey.Convey("Then the poller keeps cycling", func() {
			convey.So(waitFor(func() bool { return rec.calls.Load() >= 3 }, time.Second), convey.ShouldBeTrue)
		})
	})
}

func TestPoller_Pushed(t *testing.T) {
	convey.Convey("Given a poller consuming pushed samples", t, func() {
		_ = logging.Init()

		ch := make(chan model.Sample)
		var mu sync.Mutex
		var got []float64
		p := poller.New(time.Hour, poller.WithPushed(ch, func(_ context.Context, s model.Sample) {
			mu.Lock()
			got = append(got, s.Power)
			mu.Unlock()
		}))
		convey.So(p.Start(context.Background(), func(context.Context) error { return nil }), convey.ShouldBeNil)
		defer p.Stop()

		convey.Convey("When samples arrive", func() {
			ch <- model.Sample{Power: 100}
			ch <- model.Sample{Power: 110}
			close(ch)

			convey.Convey("Then each is applied in order", func() {
				ok := waitFor(func() bool {
					mu.Lock()
					defer mu.Unlock()
					return len(got) == 2
				}, time.Second)
				convey.So(ok, convey.ShouldBeTrue)
				mu.Lock()
				convey.So(got, convey.ShouldResemble, []float64{100, 110})
				mu.Unlock()
			})
		})
	})
}
