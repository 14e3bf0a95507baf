package reliability_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/internal/domain/reliability"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)

func TestScore(t *testing.T) {
	Convey("Given the default tracker", t, func() {
		tr := reliability.New()

		Convey("When a referee has no history", func() {
			Convey("Then the score is the initial value", func() {
				So(tr.Score(model.Stats{}, now), ShouldAlmostEqual, 0.85, 1e-9)
				So(tr.Initial(), ShouldAlmostEqual, 0.85, 1e-9)
			})
		})

		Convey("When the last no-show is older than the penalty window", func() {
			s := model.Stats{Completed: 9, NoShows: 1, TotalOutcomes: 10, Streak: 9, LastNoShowAt: now.AddDate(0, 0, -60)}

			Convey("Then base ratio plus capped streak bonus applies", func() {
				So(tr.Score(s, now), ShouldAlmostEqual, 0.85, 1e-9)
			})
		})

		Convey("When the no-show just happened", func() {
			s := model.Stats{Completed: 9, NoShows: 1, TotalOutcomes: 10, LastNoShowAt: now}

			Convey("Then the full recency penalty applies", func() {
				So(tr.Score(s, now), ShouldAlmostEqual, 0.70, 1e-9)
			})

			Convey("Then the penalty decays linearly over the window", func() {
				So(tr.Score(s, now.AddDate(0, 0, 15)), ShouldAlmostEqual, 0.75, 1e-9)
				So(tr.Score(s, now.AddDate(0, 0, 30)), ShouldAlmostEqual, 0.80, 1e-9)
			})
		})

		Convey("When the streak grows", func() {
			s := model.Stats{Completed: 8, NoShows: 2, TotalOutcomes: 10}

			Convey("Then the score never decreases and the bonus is capped", func() {
				prev := tr.Score(s, now)
				for i := 1; i <= 10; i++ {
					s.Streak = i
					cur := tr.Score(s, now)
					So(cur, ShouldBeGreaterThanOrEqualTo, prev)
					prev = cur
				}
				So(prev, ShouldAlmostEqual, 0.65, 1e-9)
			})
		})

		Convey("When stats are arbitrary", func() {
			rng := rand.New(rand.NewSource(7))

			Convey("Then the score stays within [0,1]", func() {
				for i := 0; i < 500; i++ {
					completed := rng.Intn(40)
					noShows := rng.Intn(40)
					s := model.Stats{
						Completed:     completed,
						NoShows:       noShows,
						TotalOutcomes: completed + noShows,
						Streak:        rng.Intn(100),
					}
					if rng.Intn(2) == 0 {
						s.LastNoShowAt = now.Add(-time.Duration(rng.Intn(40*24)) * time.Hour)
					}
					v := tr.Score(s, now)
					So(v, ShouldBeBetweenOrEqual, 0.0, 1.0)
				}
			})
		})
	})
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	Convey("Given a referee with a clean record", t, func() {
		tr := reliability.New()
		ref := model.Referee{
			ID:          "r-1",
			Reliability: 1,
			Stats: model.Stats{
				Completed:        4,
				TotalOutcomes:    4,
				Streak:           4,
				CompletedBySport: map[model.Sport]int{"soccer": 4},
			},
		}

		Convey("When a completed outcome is applied", func() {
			a := model.Assignment{ID: "a-1", RefereeID: "r-1", Status: model.AssignmentCompleted}
			out, applied, err := tr.Apply(ctx, ref, "soccer", a, now)

			Convey("Then stats and per-sport counts advance", func() {
				So(err, ShouldBeNil)
				So(applied, ShouldBeTrue)
				So(out.Stats.Completed, ShouldEqual, 5)
				So(out.Stats.Streak, ShouldEqual, 5)
				So(out.Stats.CompletedBySport["soccer"], ShouldEqual, 5)
				So(out.Stats.LastGameBySport["soccer"], ShouldEqual, now)
				So(ref.Stats.CompletedBySport["soccer"], ShouldEqual, 4)
			})

			Convey("And the same outcome is replayed", func() {
				again, applied, err := tr.Apply(ctx, out, "soccer", a, now)

				Convey("Then nothing is double counted", func() {
					So(err, ShouldBeNil)
					So(applied, ShouldBeFalse)
					So(again.Stats.Completed, ShouldEqual, 5)
					So(again.Stats.CompletedBySport["soccer"], ShouldEqual, 5)
				})
			})

			Convey("And the outcome is reverted", func() {
				So(tr.Revert(ctx, a), ShouldBeNil)

				Convey("Then it can be applied again", func() {
					_, applied, err := tr.Apply(ctx, ref, "soccer", a, now)
					So(err, ShouldBeNil)
					So(applied, ShouldBeTrue)
				})
			})
		})

		Convey("When a no-show is applied", func() {
			a := model.Assignment{ID: "a-2", RefereeID: "r-1", Status: model.AssignmentNoShow}
			out, applied, err := tr.Apply(ctx, ref, "soccer", a, now)

			Convey("Then reliability drops and the streak resets", func() {
				So(err, ShouldBeNil)
				So(applied, ShouldBeTrue)
				So(out.Reliability, ShouldBeLessThan, ref.Reliability)
				So(out.Reliability, ShouldAlmostEqual, 0.5, 1e-9)
				So(out.Stats.Streak, ShouldEqual, 0)
				So(out.Stats.NoShows, ShouldEqual, 1)
				So(out.Stats.LastNoShowAt, ShouldEqual, now)
			})
		})

		Convey("When a non-terminal outcome is applied", func() {
			a := model.Assignment{ID: "a-3", RefereeID: "r-1", Status: model.AssignmentConfirmed}
			_, _, err := tr.Apply(ctx, ref, "soccer", a, now)

			Convey("Then it is refused", func() {
				So(errors.Is(err, reliability.ErrUnsupportedOutcome), ShouldBeTrue)
			})
		})

		Convey("When the outcome belongs to someone else", func() {
			a := model.Assignment{ID: "a-4", RefereeID: "r-2", Status: model.AssignmentCompleted}
			_, _, err := tr.Apply(ctx, ref, "soccer", a, now)

			Convey("Then it is refused", func() {
				So(errors.Is(err, reliability.ErrRefereeMismatch), ShouldBeTrue)
			})
		})
	})

	Convey("Given a referee without history", t, func() {
		tr := reliability.New(reliability.WithInitial(0.9))
		ref := model.Referee{ID: "r-9", Reliability: 0.9}

		Convey("Then the stored value is used for ranking", func() {
			So(tr.Current(ref, now), ShouldAlmostEqual, 0.9, 1e-9)
		})

		Convey("When emergency responses are recorded", func() {
			out := reliability.RecordEmergencyResponse(ref, true)
			out = reliability.RecordEmergencyResponse(out, false)

			Convey("Then offers and accepts are counted", func() {
				So(out.Stats.EmergencyOffers, ShouldEqual, 2)
				So(out.Stats.EmergencyAccepts, ShouldEqual, 1)
				So(ref.Stats.EmergencyOffers, ShouldEqual, 0)
			})
		})
	})
}
