package models

import (
	"strings"
	"time"
)

// Talk request modes. Mode is fixed at creation and never changes.
const (
	TalkModePhone    = "phone"
	TalkModeVideo    = "video"
	TalkModeChat     = "chat"
	TalkModeSchedule = "schedule"
)

// Talk request statuses.
const (
	TalkStatusWaiting   = "waiting"
	TalkStatusScheduled = "scheduled"
	TalkStatusActive    = "active"
	TalkStatusCompleted = "completed"
	TalkStatusAsync     = "async"
	TalkStatusCancelled = "cancelled"
)

// TalkRequest is a customer's request to speak with an expert. Requests may
// be anonymous; UserID is a weak reference populated only for signed-in
// submitters. Rows are never deleted.
type TalkRequest struct {
	BaseModel

	Name        string `gorm:"not null" json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Requirement string `gorm:"type:text;not null" json:"requirement"`

	Mode         string     `gorm:"type:varchar(16);not null" json:"mode"`
	Immediate    bool       `gorm:"not null" json:"immediate"`
	ScheduledFor *time.Time `json:"scheduled_for"`

	Status string `gorm:"type:varchar(16);not null;index" json:"status"`

	UserID *string `gorm:"type:uuid;index" json:"user_id"`

	Transcript []TalkTranscriptEntry `gorm:"foreignKey:RequestID" json:"transcript,omitempty"`
}

// TalkTranscriptEntry is one line of a chat transcript. Entries are
// insert-only so concurrent appends cannot overwrite each other.
type TalkTranscriptEntry struct {
	BaseModel

	RequestID string `gorm:"type:uuid;not null;index" json:"request_id"`
	Author    string `gorm:"not null" json:"author"`
	Text      string `gorm:"type:text;not null" json:"text"`
}

// ValidTalkMode reports whether the value belongs to the talk mode set.
func ValidTalkMode(mode string) bool {
	switch mode {
	case TalkModePhone, TalkModeVideo, TalkModeChat, TalkModeSchedule:
		return true
	}
	return false
}

// NormalizeTalkStatus lower-cases and validates a status value, returning the
// canonical form and whether it belongs to the status set.
func NormalizeTalkStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case TalkStatusWaiting, TalkStatusScheduled, TalkStatusActive,
		TalkStatusCompleted, TalkStatusAsync, TalkStatusCancelled:
		return status, true
	}
	return "", false
}
