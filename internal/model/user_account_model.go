package model

// UserAccount is the durable user record, keyed by the verified subject
// identifier asserted by an identity provider.
type UserAccount struct {
	UUID         string `gorm:"column:uuid;primaryKey"`
	SubjectID    string `gorm:"column:subject_id;not null"`
	Provider     string `gorm:"column:provider"`
	Email        string `gorm:"column:email"`
	Name         string `gorm:"column:name"`
	LastSignInIP string `gorm:"column:last_sign_in_ip"`
	LastSignInAt int64  `gorm:"column:last_sign_in_at"`
	CreatedAt    int64  `gorm:"column:created_at;not null"`
}

func (UserAccount) TableName() string {
	return "user_accounts"
}
