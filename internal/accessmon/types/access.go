package types

import "time"

// Profile is the optional identity detail of an access record. Name, Email
// and Department are stored together or not at all.
type Profile struct {
	Name       string
	Email      string
	Department string
}

// AccessRecord is one registered user and the last time they were seen.
type AccessRecord struct {
	UserID         string
	Profile        *Profile
	LastAccessTime time.Time
}

// Clone returns a copy of r that shares no memory with it.
func (r AccessRecord) Clone() AccessRecord {
	if r.Profile != nil {
		p := *r.Profile
		r.Profile = &p
	}
	return r
}

type RegisterRequest struct {
	UserID     string `json:"userId"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
}

type RegisterResponse struct {
	Success       bool   `json:"success"`
	IsNewUser     bool   `json:"isNewUser"`
	UserID        string `json:"userId"`
	LastLoginTime string `json:"lastLoginTime"`
	Message       string `json:"message"`
}

type RemoveUserResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// AccessHistoryEntry is the list view of an AccessRecord.
type AccessHistoryEntry struct {
	UserID        string `json:"userId"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Department    string `json:"department,omitempty"`
	LastLoginTime string `json:"lastLoginTime"`
	FormattedTime string `json:"formattedTime"`
}

type SystemInfo struct {
	SystemName         string `json:"systemName"`
	CurrentUsers       int    `json:"currentUsers"`
	Capacity           int    `json:"capacity"`
	TotalSessions      int64  `json:"totalSessions"`
	ActiveSessions     int64  `json:"activeSessions"`
	UniqueUsers        int64  `json:"uniqueUsers"`
	RegistrationPolicy string `json:"registrationPolicy"`
	LastUpdated        string `json:"lastUpdated"`
}

// Profile returns the request's profile, or nil when no profile field was
// sent at all.
func (r RegisterRequest) Profile() *Profile {
	if r.Name == "" && r.Email == "" && r.Department == "" {
		return nil
	}
	return &Profile{Name: r.Name, Email: r.Email, Department: r.Department}
}
