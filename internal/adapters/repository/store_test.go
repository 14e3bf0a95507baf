package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/refmatch/internal/adapters/repository"
	"github.com/okian/refmatch/internal/domain/geo"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2026, time.September, 7, 12, 0, 0, 0, time.UTC)

func newGame(id string, startIn time.Duration) model.Game {
	return model.Game{
		ID:          id,
		OrganizerID: "org-1",
		Sport:       "soccer",
		Level:       "entry",
		StartsAt:    base.Add(startIn),
		Duration:    2 * time.Hour,
		Location:    geo.Point{Lat: 40, Lon: -75},
		BaseFee:     decimal.NewFromInt(45),
		Status:      model.GamePending,
	}
}

func newOffer(id, gameID, refereeID string) model.Assignment {
	return model.Assignment{
		ID:        id,
		GameID:    gameID,
		RefereeID: refereeID,
		Status:    model.AssignmentOffered,
		OfferedAt: base,
		Deadline:  base.Add(time.Hour),
		Fee:       decimal.NewFromInt(45),
	}
}

// contract runs the behavior every Store must share. ids are suffixed so
// the suite can run against a persistent database more than once.
func contract(newStore func() repository.Store) {
	ctx := context.Background()
	suffix := "-" + uuid.NewString()[:8]
	id := func(s string) string { return s + suffix }

	Convey("Given a store with one game and one referee", func() {
		s := newStore()
		g := newGame(id("g1"), 48*time.Hour)
		r := model.Referee{ID: id("r1"), Active: true, Reliability: 0.85, RegisteredAt: base}

		out, err := s.Commit(ctx, repository.Change{Game: &g, Referee: &r})
		So(err, ShouldBeNil)
		So(out.Game.Version, ShouldEqual, 1)
		So(out.Referee.Version, ShouldEqual, 1)

		Convey("When reading them back", func() {
			gotGame, err1 := s.GetGame(ctx, g.ID)
			gotRef, err2 := s.GetReferee(ctx, r.ID)

			Convey("Then the stored values and versions are returned", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(gotGame.Version, ShouldEqual, 1)
				So(gotGame.BaseFee.Equal(g.BaseFee), ShouldBeTrue)
				So(gotGame.StartsAt.Equal(g.StartsAt), ShouldBeTrue)
				So(gotRef.Reliability, ShouldAlmostEqual, 0.85, 1e-9)
			})
		})

		Convey("When reading an unknown id", func() {
			_, err := s.GetGame(ctx, id("missing"))

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When writing with a stale version", func() {
			stale := g
			stale.Status = model.GameCancelled
			stale.Version = 1
			_, err := s.Commit(ctx, repository.Change{Game: &stale})
			So(err, ShouldBeNil)

			_, err = s.Commit(ctx, repository.Change{Game: &stale})

			Convey("Then the second write is rejected", func() {
				So(errors.Is(err, repository.ErrStaleWrite), ShouldBeTrue)
			})
		})

		Convey("When creating an entity twice", func() {
			again := g
			again.Version = 0
			_, err := s.Commit(ctx, repository.Change{Game: &again})

			Convey("Then it is a stale write", func() {
				So(errors.Is(err, repository.ErrStaleWrite), ShouldBeTrue)
			})
		})

		Convey("When an offer is committed with the game", func() {
			a := newOffer(id("a1"), g.ID, r.ID)
			assigned := *out.Game
			assigned.Status = model.GameAssigned
			res, err := s.Commit(ctx, repository.Change{Game: &assigned, Assignment: &a})
			So(err, ShouldBeNil)

			Convey("Then both are written atomically", func() {
				So(res.Assignment.Version, ShouldEqual, 1)
				So(res.Game.Version, ShouldEqual, 2)
				history, err := s.ListAssignmentsByGame(ctx, g.ID)
				So(err, ShouldBeNil)
				So(history, ShouldHaveLength, 1)
			})

			Convey("Then a second active assignment is refused and nothing is written", func() {
				b := newOffer(id("a2"), g.ID, r.ID)
				touched := *res.Game
				touched.Venue = "should not persist"
				_, err := s.Commit(ctx, repository.Change{Game: &touched, Assignment: &b})
				So(errors.Is(err, repository.ErrActiveAssignment), ShouldBeTrue)

				stored, _ := s.GetGame(ctx, g.ID)
				So(stored.Venue, ShouldEqual, "")
				So(stored.Version, ShouldEqual, 2)
			})

			Convey("Then the offer shows up as active, overdue and as a commitment", func() {
				active, err := s.ListActiveAssignments(ctx)
				So(err, ShouldBeNil)
				So(containsAssignment(active, a.ID), ShouldBeTrue)

				overdue, err := s.ListOverdueOffers(ctx, base.Add(time.Hour))
				So(err, ShouldBeNil)
				So(containsAssignment(overdue, a.ID), ShouldBeTrue)

				early, err := s.ListOverdueOffers(ctx, base.Add(30*time.Minute))
				So(err, ShouldBeNil)
				So(containsAssignment(early, a.ID), ShouldBeFalse)

				busy, err := s.Commitments(ctx, id("other"))
				So(err, ShouldBeNil)
				So(busy[r.ID], ShouldHaveLength, 1)
				So(busy[r.ID][0].Start.Equal(g.StartsAt), ShouldBeTrue)

				own, err := s.Commitments(ctx, g.ID)
				So(err, ShouldBeNil)
				So(own[r.ID], ShouldBeEmpty)
			})

			Convey("Then the referee's load counts it inside the window only", func() {
				load, err := s.LoadByReferee(ctx, model.Window{Start: g.StartsAt.Add(-time.Hour), End: g.StartsAt.Add(time.Hour)})
				So(err, ShouldBeNil)
				So(load[r.ID], ShouldEqual, 1)

				later, err := s.LoadByReferee(ctx, model.Window{Start: g.StartsAt.Add(time.Hour), End: g.StartsAt.Add(48 * time.Hour)})
				So(err, ShouldBeNil)
				So(later[r.ID], ShouldEqual, 0)
			})

			Convey("And the offer is rejected", func() {
				rejected := *res.Assignment
				rejected.Status = model.AssignmentRejected
				_, err := s.Commit(ctx, repository.Change{Assignment: &rejected})
				So(err, ShouldBeNil)

				Convey("Then a new offer may be committed", func() {
					b := newOffer(id("a3"), g.ID, r.ID)
					_, err := s.Commit(ctx, repository.Change{Assignment: &b})
					So(err, ShouldBeNil)

					history, _ := s.ListAssignmentsByGame(ctx, g.ID)
					So(history, ShouldHaveLength, 2)
				})
			})
		})

		Convey("When listing games by status", func() {
			later := newGame(id("g2"), 72*time.Hour)
			later.Status = model.GameConfirmed
			_, err := s.Commit(ctx, repository.Change{Game: &later})
			So(err, ShouldBeNil)

			pending, err := s.ListGames(ctx, model.GamePending)

			Convey("Then only matching games are returned", func() {
				So(err, ShouldBeNil)
				So(containsGame(pending, g.ID), ShouldBeTrue)
				So(containsGame(pending, later.ID), ShouldBeFalse)
			})
		})
	})
}

func containsAssignment(as []model.Assignment, id string) bool {
	for _, a := range as {
		if a.ID == id {
			return true
		}
	}
	return false
}

func containsGame(gs []model.Game, id string) bool {
	for _, g := range gs {
		if g.ID == id {
			return true
		}
	}
	return false
}

func TestMemoryStore(t *testing.T) {
	Convey("MemoryStore", t, func() {
		contract(func() repository.Store {
			s := repository.NewMemoryStore(context.Background())
			Reset(func() { _ = s.Close() })
			return s
		})
	})

	Convey("Given a memory store", t, func() {
		s := repository.NewMemoryStore(context.Background())
		defer s.Close()

		Convey("When a caller mutates a returned game", func() {
			g := newGame("g-copy", time.Hour)
			g.ExcludedReferees = []string{"r-1"}
			_, err := s.Commit(context.Background(), repository.Change{Game: &g})
			So(err, ShouldBeNil)

			got, _ := s.GetGame(context.Background(), "g-copy")
			got.ExcludedReferees[0] = "tampered"

			Convey("Then the stored copy is unaffected", func() {
				again, _ := s.GetGame(context.Background(), "g-copy")
				So(again.ExcludedReferees[0], ShouldEqual, "r-1")
			})
		})
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("REFMATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REFMATCH_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pg, err := repository.OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}

	Convey("PostgresStore", t, func() {
		contract(func() repository.Store { return pg })
	})
}
