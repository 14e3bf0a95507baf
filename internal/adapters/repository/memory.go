package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/pkg/metrics"
)

// MemoryStore keeps the whole state in maps behind one RWMutex. Commit is
// atomic because it runs under the write lock. Values are copied on the
// way in and out so callers never share slices or maps with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	games       map[string]model.Game
	referees    map[string]model.Referee
	assignments map[string]model.Assignment
	byGame      map[string][]string // game id -> assignment ids, oldest first

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewMemoryStore constructs an in-memory store and starts its gauge updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		games:                 make(map[string]model.Game),
		referees:              make(map[string]model.Referee),
		assignments:           make(map[string]model.Assignment),
		byGame:                make(map[string][]string),
		metricsUpdateInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.stopChan = make(chan struct{})
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background gauge updater.
func (s *MemoryStore) Close() error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Game{}, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return copyGame(g), nil
}

func (s *MemoryStore) ListGames(_ context.Context, statuses ...model.GameStatus) ([]model.Game, error) {
	s.mu.RLock()
	out := make([]model.Game, 0, len(s.games))
	for _, g := range s.games {
		if len(statuses) == 0 || slices.Contains(statuses, g.Status) {
			out = append(out, copyGame(g))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Game) int {
		if c := a.StartsAt.Compare(b.StartsAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) GetReferee(_ context.Context, id string) (model.Referee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.referees[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Referee{}, fmt.Errorf("referee %s: %w", id, ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) ListReferees(_ context.Context) ([]model.Referee, error) {
	s.mu.RLock()
	out := make([]model.Referee, 0, len(s.referees))
	for _, r := range s.referees {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Referee) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) GetAssignment(_ context.Context, id string) (model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Assignment{}, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	return a, nil
}

func (s *MemoryStore) ListAssignmentsByGame(_ context.Context, gameID string) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byGame[gameID]
	out := make([]model.Assignment, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.assignments[id])
	}
	return out, nil
}

func (s *MemoryStore) ListActiveAssignments(_ context.Context) ([]model.Assignment, error) {
	return s.filterAssignments(func(a model.Assignment) bool { return a.Status.Active() }), nil
}

func (s *MemoryStore) ListOverdueOffers(_ context.Context, now time.Time) ([]model.Assignment, error) {
	return s.filterAssignments(func(a model.Assignment) bool {
		return a.Status == model.AssignmentOffered && !a.Deadline.After(now)
	}), nil
}

func (s *MemoryStore) filterAssignments(keep func(model.Assignment) bool) []model.Assignment {
	s.mu.RLock()
	out := make([]model.Assignment, 0)
	for _, a := range s.assignments {
		if keep(a) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Assignment) int {
		if c := a.OfferedAt.Compare(b.OfferedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (s *MemoryStore) Commitments(_ context.Context, excludeGameID string) (map[string][]model.Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]model.Window)
	for _, a := range s.assignments {
		if !a.Status.Active() || a.GameID == excludeGameID {
			continue
		}
		if g, ok := s.games[a.GameID]; ok {
			out[a.RefereeID] = append(out[a.RefereeID], g.Window())
		}
	}
	return out, nil
}

func (s *MemoryStore) LoadByReferee(_ context.Context, w model.Window) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, a := range s.assignments {
		if !countsAsLoad(a.Status) {
			continue
		}
		g, ok := s.games[a.GameID]
		if !ok || g.StartsAt.Before(w.Start) || !g.StartsAt.Before(w.End) {
			continue
		}
		out[a.RefereeID]++
	}
	return out, nil
}

func (s *MemoryStore) Commit(_ context.Context, c Change) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Game != nil {
		cur, ok := s.games[c.Game.ID]
		if err := checkVersion("game", c.Game.ID, c.Game.Version, cur.Version, ok); err != nil {
			return Change{}, err
		}
	}
	if c.Referee != nil {
		cur, ok := s.referees[c.Referee.ID]
		if err := checkVersion("referee", c.Referee.ID, c.Referee.Version, cur.Version, ok); err != nil {
			return Change{}, err
		}
	}
	if c.Assignment != nil {
		a := c.Assignment
		cur, ok := s.assignments[a.ID]
		if err := checkVersion("assignment", a.ID, a.Version, cur.Version, ok); err != nil {
			return Change{}, err
		}
		if a.Status.Active() {
			for _, id := range s.byGame[a.GameID] {
				if other := s.assignments[id]; id != a.ID && other.Status.Active() {
					metrics.RecordErrorByComponent("repository", "active_assignment")
					return Change{}, fmt.Errorf("game %s holds %s: %w", a.GameID, id, ErrActiveAssignment)
				}
			}
		}
	}

	var out Change
	if c.Game != nil {
		g := copyGame(*c.Game)
		g.Version++
		s.games[g.ID] = g
		out.Game = ptr(copyGame(g))
	}
	if c.Referee != nil {
		r := c.Referee.Clone()
		r.Version++
		s.referees[r.ID] = r
		out.Referee = ptr(r.Clone())
	}
	if c.Assignment != nil {
		a := *c.Assignment
		if _, ok := s.assignments[a.ID]; !ok {
			s.byGame[a.GameID] = append(s.byGame[a.GameID], a.ID)
		}
		a.Version++
		s.assignments[a.ID] = a
		out.Assignment = ptr(a)
	}
	return out, nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	s.mu.RLock()
	var pending, active int
	for _, g := range s.games {
		if g.Status == model.GamePending {
			pending++
		}
	}
	for _, a := range s.assignments {
		if a.Status.Active() {
			active++
		}
	}
	s.mu.RUnlock()

	metrics.UpdatePendingGames(pending)
	metrics.UpdateActiveAssignments(active)
}

func checkVersion(kind, id string, want, have int64, exists bool) error {
	switch {
	case want == 0 && exists:
		return fmt.Errorf("%s %s already exists: %w", kind, id, ErrStaleWrite)
	case want != 0 && !exists:
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	case want != have:
		return fmt.Errorf("%s %s at version %d, have %d: %w", kind, id, have, want, ErrStaleWrite)
	}
	return nil
}

func countsAsLoad(s model.AssignmentStatus) bool {
	return s == model.AssignmentOffered || s == model.AssignmentConfirmed || s == model.AssignmentCompleted
}

func copyGame(g model.Game) model.Game {
	g.ExcludedReferees = slices.Clone(g.ExcludedReferees)
	return g
}

func ptr[T any](v T) *T { return &v }
