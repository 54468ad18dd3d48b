package entities

import "time"

// StoredToken is one half of a persisted TokenPair in the durable scope.
// Name is AccessTokenKey or RefreshTokenKey; Value is sealed ciphertext.
type StoredToken struct {
	Name      string    `gorm:"primaryKey;type:varchar(32)" json:"name"`
	Value     string    `gorm:"type:text;not null" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (StoredToken) TableName() string {
	return "session_tokens"
}
