package models

import (
	"time"
)

// Room 表示兩位參與者針對同一議題的一對一辯論房間
type Room struct {
	ID      string `gorm:"type:uuid;primaryKey" json:"id"`
	TopicID string `gorm:"type:uuid;not null;index" json:"topic_id"`

	// ParticipantA 為被挑戰意見的作者，擁有第一個發言權
	ParticipantA string `gorm:"type:uuid;not null;index" json:"participant_a"`
	ParticipantB string `gorm:"type:uuid;not null;index" json:"participant_b"`
	StanceA      string `gorm:"type:varchar(32);not null" json:"stance_a"`
	StanceB      string `gorm:"type:varchar(32);not null" json:"stance_b"`

	PrivateA bool `gorm:"not null;default:false" json:"private_a"`
	PrivateB bool `gorm:"not null;default:false" json:"private_b"`

	Status      RoomStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Phase       RoomPhase  `gorm:"type:varchar(16);not null" json:"phase"`
	CurrentTurn *string    `gorm:"type:uuid" json:"current_turn"`
	TurnsA      int        `gorm:"not null;default:0" json:"turns_a"`
	TurnsB      int        `gorm:"not null;default:0" json:"turns_b"`

	// VoteA / VoteB 為共識投票，nil 表示尚未投票，true 表示繼續
	VoteA *bool `json:"vote_a"`
	VoteB *bool `json:"vote_b"`

	LastReadA *time.Time `json:"last_read_a"`
	LastReadB *time.Time `json:"last_read_b"`

	StartedAt     time.Time  `gorm:"not null" json:"started_at"`
	LastMessageAt time.Time  `gorm:"not null;index" json:"last_message_at"`
	EndedAt       *time.Time `json:"ended_at"`
	EndReason     EndReason  `gorm:"type:varchar(16)" json:"end_reason,omitempty"`

	// PoliticalDistance 僅供配對與分析參考，不影響房間建立
	PoliticalDistance float64 `gorm:"not null;default:0" json:"political_distance"`
	Version           int     `gorm:"not null;default:0" json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoomStatus 定義房間生命週期狀態
type RoomStatus string

const (
	RoomStatusActive   RoomStatus = "active"
	RoomStatusEnded    RoomStatus = "ended"
	RoomStatusArchived RoomStatus = "archived"
)

// RoomPhase 定義辯論進行的階段
type RoomPhase string

const (
	PhaseStructured RoomPhase = "structured"
	PhaseVoting     RoomPhase = "voting"
	PhaseFreeForm   RoomPhase = "free-form"
)

// EndReason 記錄房間結束的原因
type EndReason string

const (
	EndReasonUnilateral   EndReason = "unilateral"
	EndReasonMutualEnd    EndReason = "mutual_end"
	EndReasonDisagreement EndReason = "disagreement"
)

// Side 表示參與者在房間中的位置
type Side int

const (
	SideNone Side = iota
	SideA
	SideB
)

// SideOf 回傳 userID 在房間中的位置，非參與者回傳 SideNone
func (r *Room) SideOf(userID string) Side {
	switch userID {
	case "":
		return SideNone
	case r.ParticipantA:
		return SideA
	case r.ParticipantB:
		return SideB
	default:
		return SideNone
	}
}

// IsParticipant 判斷用戶是否為房間參與者
func (r *Room) IsParticipant(userID string) bool {
	return r.SideOf(userID) != SideNone
}

// Counterpart 回傳對手的 ID
func (r *Room) Counterpart(userID string) string {
	if userID == r.ParticipantA {
		return r.ParticipantB
	}
	return r.ParticipantA
}

// IsPrivate 只要任一方設為私密，房間對外即為私密
func (r *Room) IsPrivate() bool {
	return r.PrivateA || r.PrivateB
}

// LastReadOf 回傳用戶最後閱讀時間
func (r *Room) LastReadOf(userID string) *time.Time {
	switch r.SideOf(userID) {
	case SideA:
		return r.LastReadA
	case SideB:
		return r.LastReadB
	}
	return nil
}

// IsTurnOf 判斷目前是否輪到該用戶發言
func (r *Room) IsTurnOf(userID string) bool {
	return r.CurrentTurn != nil && *r.CurrentTurn == userID
}

// Clone 複製房間狀態，指標欄位也一併複製
func (r *Room) Clone() *Room {
	c := *r
	c.CurrentTurn = cloneString(r.CurrentTurn)
	c.VoteA = cloneBool(r.VoteA)
	c.VoteB = cloneBool(r.VoteB)
	c.LastReadA = cloneTime(r.LastReadA)
	c.LastReadB = cloneTime(r.LastReadB)
	c.EndedAt = cloneTime(r.EndedAt)
	return &c
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
