package models

// ProjectMessage is a message posted on a project's discussion thread.
// Rows are append-only; edits and deletes are not exposed.
type ProjectMessage struct {
	BaseModel

	ProjectID string `gorm:"type:uuid;not null;index" json:"project_id"`
	AuthorID  string `gorm:"type:uuid;not null" json:"author_id"`
	Author    *User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Body      string `gorm:"type:text;not null" json:"body"`
}
