package models

// Profile 是用戶服務維護的個人檔案唯讀視圖
type Profile struct {
	UserID      string `gorm:"type:uuid;primaryKey" json:"user_id"`
	DisplayName string `gorm:"type:varchar(64);not null" json:"display_name"`
	// 政治傾向分數由分析服務計算，可能尚未產生
	Economic      *float64 `json:"economic,omitempty"`
	Authoritarian *float64 `json:"authoritarian,omitempty"`
}

// UserRole 定義呼叫者的角色
type UserRole string

const (
	RoleUser      UserRole = "user"      // 一般用戶
	RoleModerator UserRole = "moderator" // 版主
	RoleAdmin     UserRole = "admin"     // 管理員
)

// Elevated 判斷角色是否具備版主以上權限
func (r UserRole) Elevated() bool {
	return r == RoleModerator || r == RoleAdmin
}
