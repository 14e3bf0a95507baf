package service

import (
	"fmt"

	"github.com/okian/refmatch/internal/domain/assignment"
	"github.com/okian/refmatch/internal/domain/model"
)

var (
	// ErrGameClosed is returned when changing a completed, cancelled or
	// already started game.
	ErrGameClosed = fmt.Errorf("%w: game is closed", assignment.ErrInvalidTransition)
	// ErrConfirmedAssignment is returned when force-assigning over a
	// confirmed referee.
	ErrConfirmedAssignment = fmt.Errorf("%w: game already has a confirmed referee", assignment.ErrInvalidTransition)
	// ErrNoBaseRate is returned when a game has no fee and the rate table
	// has no entry for its sport and level.
	ErrNoBaseRate = fmt.Errorf("%w: no base rate for sport and level", model.ErrValidation)
)
