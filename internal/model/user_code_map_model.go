package model

// UserCodeMap is a single-use login code bound to the PKCE challenge of the
// authorization flow it came from. It is destroyed on redemption or expiry.
type UserCodeMap struct {
	LoginCode     string `gorm:"column:login_code;primaryKey"`
	ClientID      string `gorm:"column:client_id;not null"`
	ClientState   string `gorm:"column:client_state"`
	UserUUID      string `gorm:"column:user_uuid;not null"`
	Type          string `gorm:"column:type;not null"`
	ACR           string `gorm:"column:acr;not null"`
	CodeChallenge string `gorm:"column:code_challenge;not null"`
	CreatedAt     int64  `gorm:"column:created_at;not null"`
	ExpiresAt     int64  `gorm:"column:expires_at;not null"`
}

func (UserCodeMap) TableName() string {
	return "user_code_maps"
}
