package service

import (
	"errors"

	"debate_arena/internal/engine"
)

var (
	ErrNotParticipant = engine.ErrNotParticipant
	ErrRoomInactive   = engine.ErrRoomInactive
	ErrTurnViolation  = engine.ErrTurnViolation
	ErrNotVotingPhase = engine.ErrNotVotingPhase
	ErrInvalidPhase   = engine.ErrInvalidTransition

	ErrNotPermitted        = errors.New("operation not permitted")
	ErrNotFound            = errors.New("not found")
	ErrSelfDebate          = errors.New("cannot debate your own opinion")
	ErrMissingPrerequisite = errors.New("post your own opinion on this topic before debating")
	ErrDuplicateFlag       = errors.New("message already flagged by this user")
	ErrOwnMessage          = errors.New("cannot flag your own message")
	ErrInvalidFallacy      = errors.New("unknown fallacy type")
	ErrInvalidContent      = errors.New("message content is empty or too long")
	ErrInvalidStatus       = errors.New("unknown moderation status")
)
