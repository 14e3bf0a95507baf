// Package repository persists games, referees and assignments.
package repository

import (
	"context"
	"time"

	"github.com/okian/refmatch/internal/domain/model"
)

// Change is a set of writes applied atomically by Commit. Each non-nil
// entity is checked against its stored version: zero means create, any
// other value must match the stored version. Written entities come back
// with their new version.
type Change struct {
	Game       *model.Game
	Assignment *model.Assignment
	Referee    *model.Referee
}

// Store provides read/write access to the matching state.
type Store interface {
	// GetGame returns ErrNotFound for unknown ids.
	GetGame(ctx context.Context, id string) (model.Game, error)
	// ListGames returns games in any of statuses, or all games when none
	// are given, ordered by start time.
	ListGames(ctx context.Context, statuses ...model.GameStatus) ([]model.Game, error)

	GetReferee(ctx context.Context, id string) (model.Referee, error)
	ListReferees(ctx context.Context) ([]model.Referee, error)

	GetAssignment(ctx context.Context, id string) (model.Assignment, error)
	// ListAssignmentsByGame returns the game's history, oldest offer first.
	ListAssignmentsByGame(ctx context.Context, gameID string) ([]model.Assignment, error)
	// ListActiveAssignments returns every offered or confirmed assignment.
	ListActiveAssignments(ctx context.Context) ([]model.Assignment, error)
	// ListOverdueOffers returns offers whose deadline is at or before now.
	ListOverdueOffers(ctx context.Context, now time.Time) ([]model.Assignment, error)

	// Commitments maps referee ids to the windows of games they hold an
	// active assignment for, skipping excludeGameID.
	Commitments(ctx context.Context, excludeGameID string) (map[string][]model.Window, error)
	// LoadByReferee counts offered, confirmed and completed assignments per
	// referee for games starting inside w.
	LoadByReferee(ctx context.Context, w model.Window) (map[string]int, error)

	// Commit applies c atomically. It fails with ErrStaleWrite on a version
	// mismatch and ErrActiveAssignment when a second active assignment
	// would exist for one game.
	Commit(ctx context.Context, c Change) (Change, error)
}
