package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	RoleAccount = "account"
	RoleAdmin   = "admin"
)

const apiKeyPrefix = "pfk_"

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// APICredential authenticates callers at the service boundary. Only the
// SHA-256 hash of a key is stored.
type APICredential struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	AccountID    string     `gorm:"type:varchar(191);not null;index" json:"account_id"`
	KeyPrefix    string     `gorm:"type:varchar(16);not null" json:"key_prefix"`
	KeyHash      string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	Role         string     `gorm:"type:varchar(20);not null;default:'account'" json:"role"`
	Active       bool       `gorm:"default:true;index" json:"active"`
	LastUsedAt   *time.Time `gorm:"type:timestamp;default:null" json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey creates a new raw key plus its stored prefix and hash. The
// raw key is shown to the caller exactly once.
func GenerateAPIKey() (rawKey, prefix, hash string, err error) {
	b := make([]byte, 32)
	if _, err = rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := strings.ToLower(apiKeyEncoding.EncodeToString(b))
	rawKey = apiKeyPrefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	prefix = rawKey[:16]
	hash = HashAPIKey(rawKey)
	return rawKey, prefix, hash, nil
}
