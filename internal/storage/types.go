package storage

import "time"

// SessionRecord is the persisted form of a broker session. Token values are
// stored as SHA-256 hashes so the database never holds a usable bearer token;
// the Google credential lives in the sealed Envelope.
type SessionRecord struct {
	ID               string     `gorm:"primaryKey"`
	AccessTokenHash  string     `gorm:"uniqueIndex;not null"`
	RefreshTokenHash string     `gorm:"index"`
	Envelope         string     `gorm:"not null"`
	Revoked          bool       `gorm:"default:false;index"`
	RevokedAt        *time.Time `gorm:"default:null"`
	CreatedAt        time.Time  `gorm:"autoCreateTime"`
	ExpiresAt        time.Time  `gorm:"index"`
}

// TableName overrides the default gorm table name.
func (SessionRecord) TableName() string {
	return "broker_sessions"
}
