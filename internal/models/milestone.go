package models

import "time"

// Milestone statuses.
const (
	MilestoneStatusPending    = "pending"
	MilestoneStatusInProgress = "in_progress"
	MilestoneStatusDone       = "done"
)

// Milestone is a dated checkpoint within a project.
type Milestone struct {
	BaseModel

	ProjectID string     `gorm:"type:uuid;not null;index" json:"project_id"`
	Title     string     `gorm:"not null" json:"title"`
	Detail    string     `gorm:"type:text" json:"detail"`
	Status    string     `gorm:"type:varchar(32);default:'pending'" json:"status"`
	DueAt     *time.Time `json:"due_at"`
	SortOrder int        `gorm:"default:0" json:"sort_order"`
}

// ValidMilestoneStatus reports whether the value belongs to the milestone status set.
func ValidMilestoneStatus(status string) bool {
	switch status {
	case MilestoneStatusPending, MilestoneStatusInProgress, MilestoneStatusDone:
		return true
	}
	return false
}
