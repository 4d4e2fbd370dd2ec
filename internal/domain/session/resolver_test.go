package session_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/bikewatch/internal/domain/gate"
	"github.com/okian/bikewatch/internal/domain/model"
	"github.com/okian/bikewatch/internal/domain/session"
	"github.com/smartystreets/goconvey/convey"
)

type stubSource struct {
	cfg model.Config
	err error
}

func (s stubSource) FetchConfig(context.Context) (model.Config, error) {
	return s.cfg, s.err
}

func TestResolver_Resolve(t *testing.T) {
	convey.Convey("Given a config source", t, func() {
		ctx := context.Background()

		convey.Convey("When it returns a config", func() {
			want := model.Config{DeviceID: "taurusx", TrackID: "bm", SessionDate: "2024-01-01", SessionStartTime: "10:00"}
			r := session.NewResolver(stubSource{cfg: want}, time.UTC)

			convey.Convey("Then the config is returned unchanged", func() {
				got, err := r.Resolve(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got, convey.ShouldResemble, want)
			})
		})

		convey.Convey("When it fails with a network error", func() {
			r := session.NewResolver(stubSource{err: fmt.Errorf("%w: boom", model.ErrNetwork)}, time.UTC)

			convey.Convey("Then the error kind propagates", func() {
				_, err := r.Resolve(ctx)
				convey.So(errors.Is(err, model.ErrNetwork), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When no location is given", func() {
			r := session.NewResolver(stubSource{}, nil)

			convey.Convey("Then the local zone is used", func() {
				convey.So(r.Location(), convey.ShouldEqual, time.Local)
			})
		})
	})
}

func TestStartInstant(t *testing.T) {
	convey.Convey("Given session dates and times", t, func() {
		convey.Convey("When the time has minutes precision", func() {
			got, err := session.StartInstant(model.Config{SessionDate: "2024-01-01", SessionStartTime: "10:00"}, time.UTC)

			convey.So(err, convey.ShouldBeNil)
			convey.So(got.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
		})

		convey.Convey("When the time has seconds precision", func() {
			got, err := session.StartInstant(model.Config{SessionDate: "2024-03-15", SessionStartTime: "18:30:45"}, time.UTC)

			convey.So(err, convey.ShouldBeNil)
			convey.So(got.Equal(time.Date(2024, 3, 15, 18, 30, 45, 0, time.UTC)), convey.ShouldBeTrue)
		})

		convey.Convey("When a fixed zone is configured", func() {
			loc := time.FixedZone("CET", 3600)
			got, err := session.StartInstant(model.Config{SessionDate: "2024-01-01", SessionStartTime: "10:00"}, loc)

			convey.So(err, convey.ShouldBeNil)
			convey.So(got.UTC().Hour(), convey.ShouldEqual, 9)
		})

		convey.Convey("When the input is malformed", func() {
			cases := []model.Config{
				{SessionDate: "", SessionStartTime: "10:00"},
				{SessionDate: "01/02/2024", SessionStartTime: "10:00"},
				{SessionDate: "2024-02-30", SessionStartTime: "10:00"},
				{SessionDate: "2024-01-01", SessionStartTime: ""},
				{SessionDate: "2024-01-01", SessionStartTime: "25:00"},
				{SessionDate: "2024-01-01", SessionStartTime: "ten"},
			}

			convey.Convey("Then every case is a schema error", func() {
				for _, c := range cases {
					_, err := session.StartInstant(c, time.UTC)
					convey.So(errors.Is(err, session.ErrSchema), convey.ShouldBeTrue)
				}
			})
		})
	})
}

func TestResolver_SeedsGate(t *testing.T) {
	convey.Convey("Given a session configured for 2024-01-01 10:00", t, func() {
		r := session.NewResolver(stubSource{cfg: model.Config{
			DeviceID: "taurusx", SessionDate: "2024-01-01", SessionStartTime: "10:00",
		}}, time.UTC)

		cfg, err := r.Resolve(context.Background())
		convey.So(err, convey.ShouldBeNil)
		start, err := r.StartInstant(cfg)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When seeded at 09:59:59", func() {
			g := gate.New(start, time.Date(2024, 1, 1, 9, 59, 59, 0, time.UTC))

			convey.Convey("Then the gate waits, and opens at 10:00:00", func() {
				convey.So(g.State(), convey.ShouldEqual, model.GateWaiting)
				convey.So(g.Observe(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)), convey.ShouldEqual, model.GateLive)
			})
		})
	})
}
