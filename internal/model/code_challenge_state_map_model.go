package model

// CodeChallengeStateMap binds a PKCE code challenge to the opaque state value
// returned at the start of an authorization flow. Exactly one live row exists
// per state and it is consumed once during the provider callback.
type CodeChallengeStateMap struct {
	State         string `gorm:"column:state;primaryKey"`
	CodeChallenge string `gorm:"column:code_challenge;not null"`
	ClientID      string `gorm:"column:client_id;not null"`
	ClientState   string `gorm:"column:client_state"`
	CreatedAt     int64  `gorm:"column:created_at;not null"`
	ExpiresAt     int64  `gorm:"column:expires_at;not null"`
}

func (CodeChallengeStateMap) TableName() string {
	return "code_challenge_state_maps"
}
