package models

// Task statuses.
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusBlocked    = "blocked"
	TaskStatusDone       = "done"
)

// Task is a unit of work within a project, optionally attached to a milestone.
type Task struct {
	BaseModel

	ProjectID   string  `gorm:"type:uuid;not null;index" json:"project_id"`
	MilestoneID *string `gorm:"type:uuid;index" json:"milestone_id"`
	AssigneeID  *string `gorm:"type:uuid" json:"assignee_id"`
	Assignee    *User   `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`

	Title  string `gorm:"not null" json:"title"`
	Detail string `gorm:"type:text" json:"detail"`
	Status string `gorm:"type:varchar(32);default:'todo';index" json:"status"`
}

// ValidTaskStatus reports whether the value belongs to the task status set.
func ValidTaskStatus(status string) bool {
	switch status {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusBlocked, TaskStatusDone:
		return true
	}
	return false
}
