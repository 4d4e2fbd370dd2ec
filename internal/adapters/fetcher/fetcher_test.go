package fetcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/bikewatch/internal/adapters/fetcher"
	"github.com/okian/bikewatch/internal/adapters/transport"
	"github.com/okian/bikewatch/internal/domain/model"
	logging "github.com/okian/bikewatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type stubTransport struct {
	config  string
	data    string
	history string
	weather string
	found   bool
	err     error

	lastCount int
}

func (s *stubTransport) GetConfig(context.Context) ([]byte, error) {
	return []byte(s.config), s.err
}

func (s *stubTransport) GetData(context.Context, string) ([]byte, error) {
	return []byte(s.data), s.err
}

func (s *stubTransport) GetHistory(_ context.Context, _ string, count int) ([]byte, error) {
	s.lastCount = count
	return []byte(s.history), s.err
}

func (s *stubTransport) GetWeatherSingleStation(context.Context, int) ([]byte, bool, error) {
	return []byte(s.weather), s.found, s.err
}

func (s *stubTransport) Close() error { return nil }

type pushTransport struct {
	stubTransport
	ch chan transport.Message
}

func (p *pushTransport) Pushed(context.Context) <-chan transport.Message {
	return p.ch
}

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newFetcher(t transport.Transport) *fetcher.Fetcher {
	return fetcher.New(t, fetcher.WithClock(func() time.Time { return fixedNow }))
}

func TestFetcher_FetchConfig(t *testing.T) {
	convey.Convey("Given a transport serving configuration", t, func() {
		_ = logging.Init()
		ctx := context.Background()

		convey.Convey("When the payload uses canonical keys", func() {
			st := &stubTransport{config: `{"deviceId":"taurusx","trackId":"bm","sessionDate":"2024-01-01","sessionStartTime":"10:00"}`}
			cfg, err := newFetcher(st).FetchConfig(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg, convey.ShouldResemble, model.Config{
				DeviceID: "taurusx", TrackID: "bm", SessionDate: "2024-01-01", SessionStartTime: "10:00",
			})
		})

		convey.Convey("When the payload uses legacy and snake_case keys", func() {
			st := &stubTransport{config: `{"bike_name":"taurusx","trackName":"bm","date":"2024-01-01","start_time":"10:00"}`}
			cfg, err := newFetcher(st).FetchConfig(ctx)

			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.DeviceID, convey.ShouldEqual, "taurusx")
			convey.So(cfg.TrackID, convey.ShouldEqual, "bm")
			convey.So(cfg.SessionDate, convey.ShouldEqual, "2024-01-01")
			convey.So(cfg.SessionStartTime, convey.ShouldEqual, "10:00")
		})

		convey.Convey("When a required field is missing", func() {
			st := &stubTransport{config: `{"deviceId":"taurusx","sessionDate":"2024-01-01"}`}
			_, err := newFetcher(st).FetchConfig(ctx)

			convey.So(errors.Is(err, fetcher.ErrSchema), convey.ShouldBeTrue)
			convey.So(fetcher.Kind(err), convey.ShouldEqual, "schema")
		})

		convey.Convey("When the payload is not JSON", func() {
			st := &stubTransport{config: `<html>`}
			_, err := newFetcher(st).FetchConfig(ctx)

			convey.So(errors.Is(err, fetcher.ErrSchema), convey.ShouldBeTrue)
		})

		convey.Convey("When the transport fails", func() {
			st := &stubTransport{err: errors.New("connection refused")}
			_, err := newFetcher(st).FetchConfig(ctx)

			convey.So(errors.Is(err, fetcher.ErrNetwork), convey.ShouldBeTrue)
			convey.So(fetcher.Kind(err), convey.ShouldEqual, "network")
		})
	})
}

func TestFetcher_FetchSample(t *testing.T) {
	convey.Convey("Given a transport serving samples", t, func() {
		_ = logging.Init()
		ctx := context.Background()

		convey.Convey("When numeric fields arrive as strings", func() {
			st := &stubTransport{data: `{"power":"250","cadence":90,"speed":32.5,"latitude":"45.07","longitude":"7.68","timestamp":"2024-01-01T10:00:05Z"}`}
			s, err := newFetcher(st).FetchSample(ctx, "taurusx")

			convey.So(err, convey.ShouldBeNil)
			convey.So(s.Power, convey.ShouldEqual, 250.0)
			convey.So(s.Latitude, convey.ShouldEqual, 45.07)
			convey.So(s.Longitude, convey.ShouldEqual, 7.68)
			convey.So(s.Timestamp.Equal(time.Date(2024, 1, 1, 10, 0, 5, 0, time.UTC)), convey.ShouldBeTrue)
		})

		convey.Convey("When the power is reserved", func() {
			st := &stubTransport{data: `{"power":-1,"cadence":0,"speed":0,"latitude":0,"longitude":0}`}
			s, err := newFetcher(st).FetchSample(ctx, "taurusx")

			convey.So(err, convey.ShouldBeNil)
			convey.So(s.Reserved(), convey.ShouldBeTrue)
		})

		convey.Convey("When the timestamp is absent", func() {
			st := &stubTransport{data: `{"power":1,"cadence":2,"speed":3,"latitude":4,"longitude":5}`}
			s, err := newFetcher(st).FetchSample(ctx, "taurusx")

			convey.So(err, convey.ShouldBeNil)
			convey.So(s.Timestamp.Equal(fixedNow), convey.ShouldBeTrue)
		})

		convey.Convey("When the timestamp is in unix seconds or millis", func() {
			sec := &stubTransport{data: `{"power":1,"cadence":2,"speed":3,"latitude":4,"longitude":5,"timestamp":1704103205}`}
			ms := &stubTransport{data: `{"power":1,"cadence":2,"speed":3,"latitude":4,"longitude":5,"timestamp":1704103205000}`}

			a, err := newFetcher(sec).FetchSample(ctx, "taurusx")
			convey.So(err, convey.ShouldBeNil)
			b, err := newFetcher(ms).FetchSample(ctx, "taurusx")
			convey.So(err, convey.ShouldBeNil)
			convey.So(a.Timestamp.Equal(b.Timestamp), convey.ShouldBeTrue)
			convey.So(a.Timestamp.Equal(time.Date(2024, 1, 1, 10, 0, 5, 0, time.UTC)), convey.ShouldBeTrue)
		})

		convey.Convey("When a field is missing or malformed", func() {
			missing := &stubTransport{data: `{"power":1,"cadence":2,"speed":3,"latitude":4}`}
			bad := &stubTransport{data: `{"power":"abc","cadence":2,"speed":3,"latitude":4,"longitude":5}`}

			_, err := newFetcher(missing).FetchSample(ctx, "taurusx")
			convey.So(errors.Is(err, fetcher.ErrSchema), convey.ShouldBeTrue)
			_, err = newFetcher(bad).FetchSample(ctx, "taurusx")
			convey.So(errors.Is(err, fetcher.ErrSchema), convey.ShouldBeTrue)
		})

		convey.Convey("When a numeric field is not finite", func() {
			for _, payload := range []string{
				`{"power":"NaN","cadence":2,"speed":3,"latitude":4,"longitude":5}`,
				`{"power":1,"cadence":2,"speed":"Inf","latitude":4,"longitude":5}`,
				`{"power":1,"cadence":2,"speed":3,"latitude":"-Infinity","longitude":5}`,
			} {
				_, err := newFetcher(&stubTransport{data: payload}).FetchSample(ctx, "taurusx")
				convey.So(errors.Is(err, fetcher.ErrSchema), convey.ShouldBeTrue)
			}
		})

		convey.Convey("When the transport fails", func() {
			st := &stubTransport{err: errors.New("timeout")}
			_, err := newFetcher(st).FetchSample(ctx, "taurusx")

			convey.So(errors.Is(err, fetcher.ErrNetwork), convey.ShouldBeTrue)
		})
	})
}

func TestFetcher_FetchHistory(t *testing.T) {
	convey.Convey("Given a transport serving history", t, func() {
		_ = logging.Init()
		ctx := context.Background()
		records := `[
			{"power":100,"cadence":80,"speed":30,"latitude":0,"longitude":0,"timestamp":1704103201},
			{"power":101,"cadence":80,"speed":30,"latitude":0,"longitude":0,"timestamp":1704103202},
			{"power":102,"cadence":80,"speed":30,"latitude":0,"longitude":0,"timestamp":1704103203}
		]`

		convey.Convey("When the service returns no more than requested", func() {
			st := &stubTransport{history: records}
			got, err := newFetcher(st).FetchHistory(ctx, "taurusx", 5)

			convey.So(err, convey.ShouldBeNil)
			convey.So(st.lastCount, convey.ShouldEqual, 5)
			convey.So(len(got), convey.ShouldEqual, 3)
			convey.So(got[0].Power, convey.ShouldEqual, 100.0)
		})

		convey.Convey("When the service returns more than requested", func() {
			st := &stubTransport{history: records}
			got, err := newFetcher(st).FetchHistory(ctx, "taurusx", 2)

			convey.Convey("Then the most recent records are kept", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(got), convey.ShouldEqual, 2)
				convey.So(got[0].Power, convey.ShouldEqual, 101.0)
				convey.So(got[1].Power, convey.ShouldEqual, 102.0)
			})
		})

		convey.Convey("When a record is malformed", func() {
			st := &stubTransport{history: `[{"power":1}]`}
			_, err := newFetcher(st).FetchHistory(ctx, "taurusx", 5)

			convey.So(errors.Is(err, fetcher.ErrSchema), convey.ShouldBeTrue)
		})

		convey.Convey("When the history is empty", func() {
			st := &stubTransport{history: `[]`}
			got, err := newFetcher(st).FetchHistory(ctx, "taurusx", 5)

			convey.So(err, convey.ShouldBeNil)
			convey.So(got, convey.ShouldBeEmpty)
		})
	})
}

func TestFetcher_FetchWeather(t *testing.T) {
	convey.Convey("Given a weather station", t, func() {
		_ = logging.Init()
		ctx := context.Background()

		convey.Convey("When a reading is available", func() {
			st := &stubTransport{weather: `{"temperature":"21.5"}`, found: true}
			w, err := newFetcher(st).FetchWeather(ctx, 3)

			convey.So(err, convey.ShouldBeNil)
			convey.So(w, convey.ShouldNotBeNil)
			convey.So(w.Temperature, convey.ShouldEqual, 21.5)
		})

		convey.Convey("When the service has no data for this caller", func() {
			st := &stubTransport{found: false}
			w, err := newFetcher(st).FetchWeather(ctx, 3)

			convey.Convey("Then absence is not an error", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the reading is not finite", func() {
			st := &stubTransport{weather: `{"temperature":"NaN"}`, found: true}
			_, err := newFetcher(st).FetchWeather(ctx, 3)

			convey.So(errors.Is(err, fetcher.ErrSchema), convey.ShouldBeTrue)
		})

		convey.Convey("When the payload is null", func() {
			st := &stubTransport{weather: `null`, found: true}
			w, err := newFetcher(st).FetchWeather(ctx, 3)

			convey.So(err, convey.ShouldBeNil)
			convey.So(w, convey.ShouldBeNil)
		})

		convey.Convey("When the transport fails", func() {
			st := &stubTransport{err: errors.New("reset")}
			_, err := newFetcher(st).FetchWeather(ctx, 3)

			convey.So(errors.Is(err, fetcher.ErrNetwork), convey.ShouldBeTrue)
		})
	})
}

func TestFetcher_Pushed(t *testing.T) {
	convey.Convey("Given a transport that does not push", t, func() {
		_ = logging.Init()

		convey.So(newFetcher(&stubTransport{}).Pushed(context.Background()), convey.ShouldBeNil)
	})

	convey.Convey("Given a pushing transport", t, func() {
		_ = logging.Init()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pt := &pushTransport{ch: make(chan transport.Message, 3)}
		f := newFetcher(pt)
		out := f.Pushed(ctx)

		convey.Convey("When valid and invalid payloads arrive", func() {
			received := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)
			pt.ch <- transport.Message{Payload: []byte(`{"power":1,"cadence":2,"speed":3,"latitude":4,"longitude":5}`), Received: received}
			pt.ch <- transport.Message{Payload: []byte(`garbage`)}
			pt.ch <- transport.Message{Payload: []byte(`{"power":7,"cadence":2,"speed":3,"latitude":4,"longitude":5}`)}
			close(pt.ch)

			convey.Convey("Then undecodable payloads are dropped", func() {
				var got []model.Sample
				for s := range out {
					got = append(got, s)
				}
				convey.So(len(got), convey.ShouldEqual, 2)
				convey.So(got[0].Timestamp.Equal(received), convey.ShouldBeTrue)
				convey.So(got[1].Power, convey.ShouldEqual, 7.0)
				convey.So(got[1].Timestamp.Equal(fixedNow), convey.ShouldBeTrue)
			})
		})

		convey.Convey("Then repeated calls return the same channel", func() {
			convey.So(f.Pushed(ctx) == out, convey.ShouldBeTrue)
		})
	})
}
