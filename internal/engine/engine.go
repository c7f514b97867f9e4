package engine

import (
	"time"

	"debate_arena/internal/models"
)

// Outcome 是一次投票後的共識結果
type Outcome int

const (
	// OutcomePending 表示尚有一方未投票，狀態不變
	OutcomePending Outcome = iota
	// OutcomeFreeForm 表示雙方皆同意繼續，進入自由發言
	OutcomeFreeForm
	// OutcomeEnded 表示雙方意見不一致或皆選擇結束
	OutcomeEnded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFreeForm:
		return "free-form"
	case OutcomeEnded:
		return "ended"
	default:
		return "pending"
	}
}

// NewRoom 建立一個新的結構化辯論房間，由 A 方先發言
func NewRoom(id, topicID, participantA, stanceA, participantB, stanceB string, now time.Time) *models.Room {
	turn := participantA
	return &models.Room{
		ID:            id,
		TopicID:       topicID,
		ParticipantA:  participantA,
		ParticipantB:  participantB,
		StanceA:       stanceA,
		StanceB:       stanceB,
		Status:        models.RoomStatusActive,
		Phase:         models.PhaseStructured,
		CurrentTurn:   &turn,
		StartedAt:     now,
		LastMessageAt: now,
	}
}

// ApplyMessage 驗證發言權並更新回合狀態。
// 只有 structured 階段強制輪流發言，發言後回合交給對手。
func ApplyMessage(room *models.Room, sender string, now time.Time) error {
	side := room.SideOf(sender)
	if side == models.SideNone {
		return ErrNotParticipant
	}
	if room.Status != models.RoomStatusActive {
		return ErrRoomInactive
	}
	if room.Phase == models.PhaseStructured && !room.IsTurnOf(sender) {
		return ErrTurnViolation
	}

	room.LastMessageAt = now
	if room.Phase != models.PhaseStructured {
		return nil
	}

	next := room.Counterpart(sender)
	room.CurrentTurn = &next
	if side == models.SideA {
		room.TurnsA++
	} else {
		room.TurnsB++
	}
	return nil
}

// TurnLimitReached 判斷雙方是否都已完成指定的結構化回合數，limit <= 0 表示不限制
func TurnLimitReached(room *models.Room, limit int) bool {
	if limit <= 0 || room.Phase != models.PhaseStructured {
		return false
	}
	return room.TurnsA >= limit && room.TurnsB >= limit
}

// StartVoting 將房間從 structured 或 free-form 切換到 voting，並清空上一輪的投票
func StartVoting(room *models.Room) error {
	if room.Status != models.RoomStatusActive {
		return ErrRoomInactive
	}
	if room.Phase != models.PhaseStructured && room.Phase != models.PhaseFreeForm {
		return ErrInvalidTransition
	}
	room.Phase = models.PhaseVoting
	room.CurrentTurn = nil
	room.VoteA = nil
	room.VoteB = nil
	return nil
}

// CastVote 記錄投票者的決定，再次投票只覆寫自己的票。
// 雙方都投票後立即結算，結果與投票在同一次狀態變更中套用。
func CastVote(room *models.Room, voter string, proceed bool, now time.Time) (Outcome, error) {
	side := room.SideOf(voter)
	if side == models.SideNone {
		return OutcomePending, ErrNotParticipant
	}
	if room.Status != models.RoomStatusActive {
		return OutcomePending, ErrRoomInactive
	}
	if room.Phase != models.PhaseVoting {
		return OutcomePending, ErrNotVotingPhase
	}

	v := proceed
	if side == models.SideA {
		room.VoteA = &v
	} else {
		room.VoteB = &v
	}

	outcome := ResolveVotes(room.VoteA, room.VoteB)
	switch outcome {
	case OutcomeFreeForm:
		room.Phase = models.PhaseFreeForm
		room.CurrentTurn = nil
		room.VoteA = nil
		room.VoteB = nil
	case OutcomeEnded:
		reason := models.EndReasonDisagreement
		if !*room.VoteA && !*room.VoteB {
			reason = models.EndReasonMutualEnd
		}
		finish(room, reason, now)
	}
	return outcome, nil
}

// ResolveVotes 是二對二的共識判斷：任一票缺席則等待，雙方都繼續才進入自由發言
func ResolveVotes(a, b *bool) Outcome {
	if a == nil || b == nil {
		return OutcomePending
	}
	if *a && *b {
		return OutcomeFreeForm
	}
	return OutcomeEnded
}

// End 由任一參與者單方面結束房間，不受階段限制
func End(room *models.Room, userID string, now time.Time) error {
	if !room.IsParticipant(userID) {
		return ErrNotParticipant
	}
	if room.Status != models.RoomStatusActive {
		return ErrRoomInactive
	}
	finish(room, models.EndReasonUnilateral, now)
	return nil
}

// SetPrivacy 只修改呼叫者自己的私密設定
func SetPrivacy(room *models.Room, userID string, private bool) error {
	switch room.SideOf(userID) {
	case models.SideA:
		room.PrivateA = private
	case models.SideB:
		room.PrivateB = private
	default:
		return ErrNotParticipant
	}
	return nil
}

// MarkRead 更新呼叫者自己的最後閱讀時間
func MarkRead(room *models.Room, userID string, now time.Time) error {
	t := now
	switch room.SideOf(userID) {
	case models.SideA:
		room.LastReadA = &t
	case models.SideB:
		room.LastReadB = &t
	default:
		return ErrNotParticipant
	}
	return nil
}

func finish(room *models.Room, reason models.EndReason, now time.Time) {
	t := now
	room.Status = models.RoomStatusEnded
	room.EndedAt = &t
	room.EndReason = reason
	room.CurrentTurn = nil
}
