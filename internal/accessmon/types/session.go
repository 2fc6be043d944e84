package types

import (
	"errors"
	"time"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = stateActive
	SessionCompleted SessionStatus = stateCompleted
)

// ErrSessionNotActive is returned when ending a session that already ended.
var ErrSessionNotActive = errors.New("session is not active")

// SessionRecord is one login-to-logout interval of a user.
type SessionRecord struct {
	ID         string
	UserID     string
	LoginTime  time.Time
	LogoutTime *time.Time // nil while active
	Status     SessionStatus
}

// NewSession returns an active session that started at loginTime.
func NewSession(id, userID string, loginTime time.Time) SessionRecord {
	return SessionRecord{
		ID:        id,
		UserID:    userID,
		LoginTime: loginTime,
		Status:    SessionActive,
	}
}

func (s SessionRecord) IsActive() bool {
	return s.Status == SessionActive && s.LogoutTime == nil
}

// Duration reports logout minus login for a completed session. The second
// result is false while the session is still in progress.
func (s SessionRecord) Duration() (time.Duration, bool) {
	if s.LogoutTime == nil {
		return 0, false
	}
	return s.LogoutTime.Sub(s.LoginTime), true
}

// Clone returns a copy of s that shares no memory with it.
func (s SessionRecord) Clone() SessionRecord {
	if s.LogoutTime != nil {
		t := *s.LogoutTime
		s.LogoutTime = &t
	}
	return s
}

// SessionStats aggregates the ledger. UniqueUsers counts distinct user ids
// across every stored session, active or completed.
type SessionStats struct {
	TotalSessions  int64
	ActiveSessions int64
	UniqueUsers    int64
}

type SessionRequest struct {
	UserID string `json:"userId"`
}

type LoginResponse struct {
	Success   bool   `json:"success"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	LoginTime string `json:"loginTime"`
	Message   string `json:"message"`
}

type LogoutResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// SessionView is the report shape of a SessionRecord.
type SessionView struct {
	ID              string  `json:"id"`
	UserID          string  `json:"userId"`
	LoginTime       string  `json:"loginTime"`
	LogoutTime      *string `json:"logoutTime"`
	Status          string  `json:"status"`
	IsActive        bool    `json:"isActive"`
	Duration        string  `json:"duration"`
	DurationSeconds *int64  `json:"durationSeconds,omitempty"`
}
