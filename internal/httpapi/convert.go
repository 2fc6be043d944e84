package httpapi

import (
	"fmt"
	"time"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/types"
)

const displayLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ── Access history ──────────────────────────────────────────────────────────

func accessEntry(rec types.AccessRecord) types.AccessHistoryEntry {
	e := types.AccessHistoryEntry{
		UserID:        rec.UserID,
		LastLoginTime: formatTime(rec.LastAccessTime),
		FormattedTime: rec.LastAccessTime.UTC().Format(displayLayout),
	}
	if p := rec.Profile; p != nil {
		e.Name = p.Name
		e.Email = p.Email
		e.Department = p.Department
	}
	return e
}

func accessEntries(recs []types.AccessRecord) []types.AccessHistoryEntry {
	out := make([]types.AccessHistoryEntry, len(recs))
	for i, rec := range recs {
		out[i] = accessEntry(rec)
	}
	return out
}

// ── Sessions ─────────────────────────────────────────────────────────────────

func sessionView(rec types.SessionRecord) types.SessionView {
	v := types.SessionView{
		ID:        rec.ID,
		UserID:    rec.UserID,
		LoginTime: formatTime(rec.LoginTime),
		Status:    string(rec.Status),
		IsActive:  rec.IsActive(),
		Duration:  "in progress",
	}
	if rec.LogoutTime != nil {
		s := formatTime(*rec.LogoutTime)
		v.LogoutTime = &s
	}
	if d, ok := rec.Duration(); ok {
		secs := int64(d / time.Second)
		v.DurationSeconds = &secs
		v.Duration = fmt.Sprintf("%d minutes", int64(d/time.Minute))
	}
	return v
}

func sessionViews(recs []types.SessionRecord) []types.SessionView {
	out := make([]types.SessionView, len(recs))
	for i, rec := range recs {
		out[i] = sessionView(rec)
	}
	return out
}
