package scoring_test

import (
	"testing"
	"time"

	"github.com/okian/refmatch/internal/domain/eligibility"
	"github.com/okian/refmatch/internal/domain/model"
	scoring "github.com/okian/refmatch/internal/domain/scoring"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, time.April, 10, 9, 0, 0, 0, time.UTC)

func soccerGame(startIn time.Duration) model.Game {
	return model.Game{
		ID:       "g-1",
		Sport:    "soccer",
		Level:    "intermediate",
		StartsAt: now.Add(startIn),
		Duration: 90 * time.Minute,
		BaseFee:  decimal.NewFromInt(60),
	}
}

func TestNormalScore(t *testing.T) {
	Convey("Given the default engine", t, func() {
		e := scoring.New()

		Convey("When weighting reliability 95, distance band 100 and experience 80", func() {
			Convey("Then the normal score is 93.5", func() {
				So(e.Combine(model.ModeNormal, 95, 100, 80, 0), ShouldAlmostEqual, 93.5, 1e-9)
			})
		})

		Convey("When scoring a full candidate with the same profile", func() {
			ref := model.Referee{
				ID: "r-1",
				Stats: model.Stats{
					CompletedBySport: map[model.Sport]int{"soccer": 50},
				},
			}
			g := soccerGame(72 * time.Hour)
			b := e.Score(scoring.Input{
				Game:        g,
				Candidate:   eligibility.Candidate{Referee: ref, DistanceKm: 8, LevelDelta: 1},
				Reliability: 0.95,
			}, e.Mode(g, now), now)

			Convey("Then the breakdown reproduces 93.5", func() {
				So(b.Mode, ShouldEqual, model.ModeNormal)
				So(b.Reliability, ShouldAlmostEqual, 95, 1e-9)
				So(b.Distance, ShouldEqual, 100)
				So(b.Experience, ShouldAlmostEqual, 80, 1e-9)
				So(b.Raw, ShouldAlmostEqual, 93.5, 1e-9)
				So(b.Final, ShouldAlmostEqual, b.Raw, 1e-12)
				So(b.LoadFactor, ShouldEqual, 1)
				So(b.EmergencyAvailability, ShouldEqual, 0)
			})
		})
	})
}

func TestDistanceBand(t *testing.T) {
	Convey("Given the distance bands", t, func() {
		Convey("Then band boundaries are inclusive", func() {
			So(scoring.DistanceBand(0), ShouldEqual, 100)
			So(scoring.DistanceBand(10), ShouldEqual, 100)
			So(scoring.DistanceBand(10.01), ShouldEqual, 80)
			So(scoring.DistanceBand(20), ShouldEqual, 80)
			So(scoring.DistanceBand(30), ShouldEqual, 60)
			So(scoring.DistanceBand(40), ShouldEqual, 40)
			So(scoring.DistanceBand(50), ShouldEqual, 20)
			So(scoring.DistanceBand(50.01), ShouldEqual, 0)
			So(scoring.DistanceBand(500), ShouldEqual, 0)
		})

		Convey("Then the band never increases with distance", func() {
			prev := scoring.DistanceBand(0)
			for km := 0.0; km <= 80; km += 0.25 {
				cur := scoring.DistanceBand(km)
				So(cur, ShouldBeLessThanOrEqualTo, prev)
				prev = cur
			}
		})
	})
}

func TestExperience(t *testing.T) {
	Convey("Given the default experience curve", t, func() {
		e := scoring.New()

		Convey("Then more games never lowers the score", func() {
			prev := -1.0
			for n := 0; n <= 80; n++ {
				r := model.Referee{Stats: model.Stats{CompletedBySport: map[model.Sport]int{"soccer": n}}}
				cur := e.Experience(r, "soccer", 0, now)
				So(cur, ShouldBeGreaterThanOrEqualTo, prev)
				prev = cur
			}
		})

		Convey("Then a higher certification never lowers the score", func() {
			r := model.Referee{}
			So(e.Experience(r, "soccer", 1, now), ShouldBeGreaterThan, e.Experience(r, "soccer", 0, now))
			So(e.Experience(r, "soccer", 3, now), ShouldBeGreaterThanOrEqualTo, e.Experience(r, "soccer", 2, now))
		})

		Convey("Then a recent game scores higher than an old one", func() {
			recent := model.Referee{Stats: model.Stats{LastGameBySport: map[model.Sport]time.Time{"soccer": now.AddDate(0, 0, -7)}}}
			old := model.Referee{Stats: model.Stats{LastGameBySport: map[model.Sport]time.Time{"soccer": now.AddDate(0, -6, 0)}}}
			ancient := model.Referee{Stats: model.Stats{LastGameBySport: map[model.Sport]time.Time{"soccer": now.AddDate(-2, 0, 0)}}}
			So(e.Experience(recent, "soccer", 0, now), ShouldBeGreaterThan, e.Experience(old, "soccer", 0, now))
			So(e.Experience(old, "soccer", 0, now), ShouldBeGreaterThan, e.Experience(ancient, "soccer", 0, now))
		})

		Convey("Then a maxed-out referee is bounded by 100", func() {
			r := model.Referee{Stats: model.Stats{
				CompletedBySport: map[model.Sport]int{"soccer": 500},
				LastGameBySport:  map[model.Sport]time.Time{"soccer": now},
			}}
			So(e.Experience(r, "soccer", 5, now), ShouldAlmostEqual, 100, 1e-9)
		})

		Convey("Then experience in another sport does not count", func() {
			r := model.Referee{Stats: model.Stats{CompletedBySport: map[model.Sport]int{"basketball": 50}}}
			So(e.Experience(r, "soccer", 0, now), ShouldAlmostEqual, 15, 1e-9)
		})
	})
}

func TestEmergency(t *testing.T) {
	Convey("Given the default engine", t, func() {
		e := scoring.New()

		Convey("When a game starts in 23 hours", func() {
			g := soccerGame(23 * time.Hour)

			Convey("Then it is scored in emergency mode", func() {
				So(e.Mode(g, now), ShouldEqual, model.ModeEmergency)
				So(e.Mode(soccerGame(25*time.Hour), now), ShouldEqual, model.ModeNormal)
			})
		})

		Convey("When a distant game has failed repeatedly", func() {
			g := soccerGame(96 * time.Hour)
			g.FailedOffers = 3

			Convey("Then urgency escalates it to emergency mode", func() {
				So(e.Mode(g, now), ShouldEqual, model.ModeEmergency)
				So(scoring.New(scoring.WithEscalateAfter(0)).Mode(g, now), ShouldEqual, model.ModeNormal)
			})
		})

		Convey("When comparing referees by free time", func() {
			start := now.Add(6 * time.Hour)
			r := model.Referee{}
			idle := e.EmergencyAvailability(r, nil, start, now)
			tight := e.EmergencyAvailability(r, []model.Window{{Start: now.Add(3 * time.Hour), End: now.Add(5 * time.Hour)}}, start, now)

			Convey("Then more slack scores higher", func() {
				So(idle, ShouldAlmostEqual, 60+20, 1e-9)
				So(tight, ShouldAlmostEqual, 15+20, 1e-9)
			})
		})

		Convey("When comparing referees by emergency history", func() {
			start := now.Add(6 * time.Hour)
			eager := model.Referee{Stats: model.Stats{EmergencyOffers: 4, EmergencyAccepts: 4}}
			reluctant := model.Referee{Stats: model.Stats{EmergencyOffers: 4, EmergencyAccepts: 0}}

			Convey("Then accepting referees score higher", func() {
				So(e.EmergencyAvailability(eager, nil, start, now), ShouldAlmostEqual, 100, 1e-9)
				So(e.EmergencyAvailability(reluctant, nil, start, now), ShouldAlmostEqual, 60, 1e-9)
			})
		})

		Convey("When scoring an emergency candidate", func() {
			g := soccerGame(6 * time.Hour)
			b := e.Score(scoring.Input{
				Game:        g,
				Candidate:   eligibility.Candidate{Referee: model.Referee{ID: "r"}, DistanceKm: 15},
				Reliability: 0.8,
			}, e.Mode(g, now), now)

			Convey("Then the emergency weights apply", func() {
				want := 0.40*b.EmergencyAvailability + 0.25*80 + 0.20*80 + 0.15*b.Experience
				So(b.Mode, ShouldEqual, model.ModeEmergency)
				So(b.Raw, ShouldAlmostEqual, want, 1e-9)
				So(b.Raw, ShouldBeBetweenOrEqual, 0.0, 100.0)
			})
		})
	})
}

func TestSurge(t *testing.T) {
	Convey("Given the default engine and a $60 game", t, func() {
		e := scoring.New()

		Convey("When the game is not an emergency", func() {
			m, fee := e.Surge(soccerGame(72*time.Hour), model.ModeNormal, now)

			Convey("Then no surge applies", func() {
				So(m.Equal(decimal.NewFromInt(1)), ShouldBeTrue)
				So(fee.Equal(decimal.NewFromInt(60)), ShouldBeTrue)
			})
		})

		Convey("When the game starts in 12 hours", func() {
			m, fee := e.Surge(soccerGame(12*time.Hour), model.ModeEmergency, now)

			Convey("Then the multiplier reflects half the urgency", func() {
				So(m.String(), ShouldEqual, "1.25")
				So(fee.String(), ShouldEqual, "75")
			})
		})

		Convey("When a game far from kickoff is re-matched as an emergency", func() {
			g := soccerGame(72 * time.Hour)
			g.FailedOffers = 1
			m, fee := e.Surge(g, model.ModeEmergency, now)

			Convey("Then each failed offer adds a step", func() {
				So(m.String(), ShouldEqual, "1.1")
				So(fee.String(), ShouldEqual, "66")
			})

			Convey("Then the same game in normal mode pays the base fee", func() {
				m, _ := e.Surge(g, model.ModeNormal, now)
				So(m.Equal(decimal.NewFromInt(1)), ShouldBeTrue)
			})
		})

		Convey("When urgency and failed offers pile up", func() {
			Convey("Then the multiplier never exceeds 1.5", func() {
				capFee := decimal.NewFromInt(90)
				for failed := 0; failed < 10; failed++ {
					for lead := time.Duration(0); lead <= 30*time.Hour; lead += 30 * time.Minute {
						g := soccerGame(lead)
						g.FailedOffers = failed
						m, fee := e.Surge(g, e.Mode(g, now), now)
						So(m.LessThanOrEqual(decimal.NewFromFloat(1.5)), ShouldBeTrue)
						So(m.GreaterThanOrEqual(decimal.NewFromInt(1)), ShouldBeTrue)
						So(fee.LessThanOrEqual(capFee), ShouldBeTrue)
					}
				}
			})
		})
	})
}

func TestRank(t *testing.T) {
	Convey("Given scored candidates", t, func() {
		reg := now.AddDate(-1, 0, 0)
		mk := func(id string, final, reliability, km float64, registered time.Time) scoring.Ranked {
			return scoring.Ranked{
				Candidate: eligibility.Candidate{Referee: model.Referee{ID: id, RegisteredAt: registered}, DistanceKm: km},
				Breakdown: model.ScoreBreakdown{Final: final, Reliability: reliability, DistanceKm: km},
			}
		}
		order := func(rs []scoring.Ranked) []string {
			out := make([]string, len(rs))
			for i, r := range rs {
				out[i] = r.Candidate.Referee.ID
			}
			return out
		}

		Convey("When the scores are 91, 93.5 and 60", func() {
			rs := []scoring.Ranked{mk("a", 91, 90, 5, reg), mk("b", 93.5, 95, 8, reg), mk("c", 60, 70, 40, reg)}
			scoring.Rank(rs)

			Convey("Then the 93.5 candidate ranks first", func() {
				So(order(rs), ShouldResemble, []string{"b", "a", "c"})
			})
		})

		Convey("When final scores tie", func() {
			rs := []scoring.Ranked{
				mk("late", 80, 90, 5, reg.Add(time.Hour)),
				mk("far", 80, 90, 9, reg),
				mk("early", 80, 90, 5, reg),
				mk("reliable", 80, 95, 20, reg),
			}
			scoring.Rank(rs)

			Convey("Then reliability, distance and registration break the tie", func() {
				So(order(rs), ShouldResemble, []string{"reliable", "early", "late", "far"})
			})
		})
	})
}
