package engine

import "errors"

var (
	ErrNotParticipant    = errors.New("not a participant of this room")
	ErrRoomInactive      = errors.New("room is not active")
	ErrTurnViolation     = errors.New("not your turn")
	ErrNotVotingPhase    = errors.New("room is not in voting phase")
	ErrInvalidTransition = errors.New("invalid room transition")
)
