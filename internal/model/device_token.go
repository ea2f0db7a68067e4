package model

import (
	"strings"
	"time"
)

// DeviceType identifies the client platform a token was issued for.
type DeviceType string

// Device type constants
const (
	DeviceTypeWeb     DeviceType = "web"
	DeviceTypeAndroid DeviceType = "android"
	DeviceTypeIOS     DeviceType = "ios"
	DeviceTypeDesktop DeviceType = "desktop"
)

// ParseDeviceType normalizes a client supplied device type.
// Returns ErrInvalidDeviceType for anything outside web/android/ios/desktop.
func ParseDeviceType(s string) (DeviceType, error) {
	switch dt := DeviceType(strings.ToLower(strings.TrimSpace(s))); dt {
	case DeviceTypeWeb, DeviceTypeAndroid, DeviceTypeIOS, DeviceTypeDesktop:
		return dt, nil
	default:
		return "", ErrInvalidDeviceType
	}
}

// DeviceToken represents one installed client that can receive pushes.
// A token value belongs to exactly one user at a time.
type DeviceToken struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"-"`
	Token      string     `db:"token" json:"-"` // provider address, hidden from JSON
	DeviceType DeviceType `db:"device_type" json:"device_type"`
	DeviceInfo string     `db:"device_info" json:"device_info"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	LastUsed   time.Time  `db:"last_used" json:"last_used"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// RegisterTokenRequest is the payload for registering or refreshing a device token.
type RegisterTokenRequest struct {
	Token      string `json:"token"`
	DeviceType string `json:"device_type"`
	DeviceInfo string `json:"device_info"`
}

// TokenRegistration is returned after a successful registration.
type TokenRegistration struct {
	Status  string `json:"status"`
	TokenID string `json:"token_id"`
	Message string `json:"message"`
}

// TokenSuffix masks a token for logging, keeping the last four characters.
func TokenSuffix(token string) string {
	if len(token) < 4 {
		return "****"
	}
	return "..." + token[len(token)-4:]
}
