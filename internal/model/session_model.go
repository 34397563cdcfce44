package model

// Session is the durable login session backing a token chain. Refresh tokens
// are bound to the handle and never stored raw, only as a SHA-256 hash; any
// generation of the chain locates the session through its handle, so a stale
// copy is detectable as replay. The parent hash keeps the previous link for
// auditing and lets a logout succeed with the rotated-out copy.
type Session struct {
	Handle                 string `gorm:"column:handle;primaryKey"`
	UserUUID               string `gorm:"column:user_uuid;not null"`
	ClientID               string `gorm:"column:client_id;not null"`
	HashedRefreshToken     string `gorm:"column:hashed_refresh_token;not null"`
	ParentRefreshTokenHash string `gorm:"column:parent_refresh_token_hash"`
	AntiCSRFToken          string `gorm:"column:anti_csrf_token;not null"`
	RefreshCount           int64  `gorm:"column:refresh_count"`
	CreatedAt              int64  `gorm:"column:created_at;not null"`
	ExpiresAt              int64  `gorm:"column:expires_at;not null"`
}

func (Session) TableName() string {
	return "sessions"
}
