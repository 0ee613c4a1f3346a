package models

import "time"

// Project statuses.
const (
	ProjectStatusDraft     = "draft"
	ProjectStatusActive    = "active"
	ProjectStatusOnHold    = "on_hold"
	ProjectStatusCompleted = "completed"
	ProjectStatusArchived  = "archived"
)

// Project is a client engagement tracked through milestones and tasks.
type Project struct {
	BaseModel

	ClientID    string `gorm:"type:uuid;not null;index" json:"client_id"`
	Client      *User  `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Status      string `gorm:"type:varchar(32);default:'draft';index" json:"status"`
	BudgetCents int64  `json:"budget_cents"`

	StartedAt *time.Time `json:"started_at"`
	DueAt     *time.Time `json:"due_at"`

	Milestones []Milestone `gorm:"foreignKey:ProjectID" json:"milestones,omitempty"`
	Tasks      []Task      `gorm:"foreignKey:ProjectID" json:"tasks,omitempty"`
	Files      []ProjectFile `gorm:"foreignKey:ProjectID" json:"files,omitempty"`
}

// ValidProjectStatus reports whether the value belongs to the project status set.
func ValidProjectStatus(status string) bool {
	switch status {
	case ProjectStatusDraft, ProjectStatusActive, ProjectStatusOnHold,
		ProjectStatusCompleted, ProjectStatusArchived:
		return true
	}
	return false
}
