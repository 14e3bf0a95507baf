package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/refmatch/internal/adapters/http/api"
	"github.com/okian/refmatch/internal/adapters/repository"
	service "github.com/okian/refmatch/internal/app"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

var t0 = time.Date(2026, time.May, 4, 9, 0, 0, 0, time.UTC)

type discardOutbox struct{}

func (discardOutbox) Enqueue(context.Context, model.Intent) bool { return true }

type harness struct {
	handler http.Handler
	store   *repository.MemoryStore
}

func newHarness() *harness {
	store := repository.NewMemoryStore(context.Background(), repository.WithMetricsUpdateInterval(time.Hour))
	svc := service.New(store,
		service.WithClock(model.ClockFunc(func() time.Time { return t0 })),
		service.WithOutbox(discardOutbox{}),
	)
	return &harness{handler: api.NewServer(svc).Router(), store: store}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		So(err, ShouldBeNil)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

func refereeBody(id string) map[string]any {
	return map[string]any{
		"id":                 id,
		"name":               "Referee " + id,
		"home":               map[string]float64{"lat": 40.05, "lon": -75},
		"certifications":     []map[string]any{{"sport": "soccer", "level": "advanced", "active": true}},
		"active":             true,
		"background_cleared": true,
	}
}

func gameBody(id string) map[string]any {
	return map[string]any{
		"id":               id,
		"organizer_id":     "o-1",
		"sport":            "soccer",
		"level":            "intermediate",
		"starts_at":        t0.Add(72 * time.Hour).Format(time.RFC3339),
		"duration_minutes": 90,
		"location":         map[string]float64{"lat": 40, "lon": -75},
		"base_fee":         "60",
	}
}

type matchBody struct {
	Game struct {
		ID              string `json:"id"`
		Status          string `json:"status"`
		DurationMinutes int    `json:"duration_minutes"`
	} `json:"game"`
	Match struct {
		Result     string            `json:"result"`
		Assignment *model.Assignment `json:"assignment"`
	} `json:"match"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestHealth(t *testing.T) {
	Convey("Given the API router", t, func() {
		h := newHarness()
		defer h.store.Close()

		Convey("Then /livez answers ok", func() {
			w := h.do(http.MethodGet, "/livez", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Then /healthz exposes metrics", func() {
			w := h.do(http.MethodGet, "/healthz", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then /stats returns service statistics", func() {
			w := h.do(http.MethodGet, "/stats", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			decodeBody(w, &stats)
			So(stats, ShouldContainKey, "games")
			So(stats, ShouldContainKey, "activeAssignments")
		})

		Convey("Then unknown routes are 404", func() {
			w := h.do(http.MethodGet, "/rankings", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRefereeRoutes(t *testing.T) {
	Convey("Given the API router", t, func() {
		h := newHarness()
		defer h.store.Close()

		Convey("When a referee registers", func() {
			w := h.do(http.MethodPost, "/referees/", refereeBody("r-1"))

			Convey("Then it is created with the default reliability", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				var ref model.Referee
				decodeBody(w, &ref)
				So(ref.ID, ShouldEqual, "r-1")
				So(ref.Reliability, ShouldEqual, 0.85)
			})

			Convey("Then updating it answers 200", func() {
				w := h.do(http.MethodPost, "/referees/", refereeBody("r-1"))
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("Then it can be read back", func() {
				w := h.do(http.MethodGet, "/referees/r-1", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the home coordinate is invalid", func() {
			body := refereeBody("r-2")
			body["home"] = map[string]float64{"lat": 95, "lon": 0}
			w := h.do(http.MethodPost, "/referees/", body)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var e errorBody
				decodeBody(w, &e)
				So(e.Code, ShouldEqual, "invalid_request")
			})
		})

		Convey("When the body has unknown fields", func() {
			body := refereeBody("r-3")
			body["favourite_team"] = "none"
			w := h.do(http.MethodPost, "/referees/", body)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the referee does not exist", func() {
			w := h.do(http.MethodGet, "/referees/nobody", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestGameLifecycleRoutes(t *testing.T) {
	Convey("Given a registered referee", t, func() {
		h := newHarness()
		defer h.store.Close()
		So(h.do(http.MethodPost, "/referees/", refereeBody("r-1")).Code, ShouldEqual, http.StatusCreated)

		Convey("When a game is submitted", func() {
			w := h.do(http.MethodPost, "/games/", gameBody("g-1"))
			So(w.Code, ShouldEqual, http.StatusCreated)
			var body matchBody
			decodeBody(w, &body)

			Convey("Then it is offered right away", func() {
				So(body.Game.Status, ShouldEqual, "assigned")
				So(body.Game.DurationMinutes, ShouldEqual, 90)
				So(body.Match.Result, ShouldEqual, service.ResultOffered)
				So(body.Match.Assignment.RefereeID, ShouldEqual, "r-1")
			})

			Convey("Then the offer history lists it", func() {
				w := h.do(http.MethodGet, "/games/g-1/assignments", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
				var history []model.Assignment
				decodeBody(w, &history)
				So(history, ShouldHaveLength, 1)
			})

			Convey("Then games can be filtered by status", func() {
				w := h.do(http.MethodGet, "/games/?status=assigned", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
				var games []map[string]any
				decodeBody(w, &games)
				So(games, ShouldHaveLength, 1)
			})

			Convey("And the referee accepts", func() {
				id := body.Match.Assignment.ID
				w := h.do(http.MethodPost, "/assignments/"+id+"/response", map[string]bool{"accept": true})
				So(w.Code, ShouldEqual, http.StatusOK)

				Convey("Then completing before the game ends conflicts", func() {
					w := h.do(http.MethodPost, "/assignments/"+id+"/complete", nil)
					So(w.Code, ShouldEqual, http.StatusConflict)
					var e errorBody
					decodeBody(w, &e)
					So(e.Code, ShouldEqual, "invalid_transition")
				})

				Convey("Then answering twice conflicts", func() {
					w := h.do(http.MethodPost, "/assignments/"+id+"/response", map[string]bool{"accept": false})
					So(w.Code, ShouldEqual, http.StatusConflict)
				})

				Convey("Then a no-show can be recorded", func() {
					w := h.do(http.MethodPost, "/assignments/"+id+"/no-show", nil)
					So(w.Code, ShouldEqual, http.StatusOK)
					var a model.Assignment
					decodeBody(w, &a)
					So(a.Status, ShouldEqual, model.AssignmentNoShow)
				})

				Convey("Then cancelling the game releases the referee", func() {
					w := h.do(http.MethodPost, "/games/g-1/cancel", map[string]string{"reason": "weather"})
					So(w.Code, ShouldEqual, http.StatusOK)

					w = h.do(http.MethodGet, "/assignments/"+id, nil)
					var a model.Assignment
					decodeBody(w, &a)
					So(a.Status, ShouldEqual, model.AssignmentCancelled)
					So(a.Reason, ShouldEqual, "weather")

					w = h.do(http.MethodPost, "/games/g-1/cancel", nil)
					So(w.Code, ShouldEqual, http.StatusConflict)
				})
			})

			Convey("When the response omits accept", func() {
				w := h.do(http.MethodPost, "/assignments/"+body.Match.Assignment.ID+"/response", map[string]any{})
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the game already started", func() {
			body := gameBody("g-2")
			body["starts_at"] = t0.Add(-time.Hour).Format(time.RFC3339)
			w := h.do(http.MethodPost, "/games/", body)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the game does not exist", func() {
			So(h.do(http.MethodGet, "/games/missing", nil).Code, ShouldEqual, http.StatusNotFound)
			So(h.do(http.MethodGet, "/assignments/missing", nil).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestAdminRoutes(t *testing.T) {
	Convey("Given a game offered to one of two referees", t, func() {
		h := newHarness()
		defer h.store.Close()
		So(h.do(http.MethodPost, "/referees/", refereeBody("r-1")).Code, ShouldEqual, http.StatusCreated)
		far := refereeBody("r-far")
		far["home"] = map[string]float64{"lat": 42, "lon": -75}
		So(h.do(http.MethodPost, "/referees/", far).Code, ShouldEqual, http.StatusCreated)
		So(h.do(http.MethodPost, "/games/", gameBody("g-1")).Code, ShouldEqual, http.StatusCreated)

		Convey("When an admin forces an out-of-range referee", func() {
			w := h.do(http.MethodPost, "/admin/games/g-1/force-assign", map[string]string{"referee_id": "r-far"})

			Convey("Then it is unprocessable", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var e errorBody
				decodeBody(w, &e)
				So(e.Code, ShouldEqual, "no_eligible_referees")
			})
		})

		Convey("When the request has no referee", func() {
			w := h.do(http.MethodPost, "/admin/games/g-1/force-assign", map[string]string{})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a pass is triggered", func() {
			w := h.do(http.MethodPost, "/matching/run", nil)

			Convey("Then the report is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var report service.PassReport
				decodeBody(w, &report)
				So(report.Games, ShouldEqual, 0)
			})
		})
	})
}
