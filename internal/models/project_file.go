package models

// ProjectFile records a file uploaded to object storage for a project.
// The bytes live in the object store; only metadata is kept here.
type ProjectFile struct {
	BaseModel

	ProjectID  string `gorm:"type:uuid;not null;index" json:"project_id"`
	UploaderID string `gorm:"type:uuid;not null" json:"uploader_id"`
	ObjectKey  string `gorm:"uniqueIndex;not null" json:"object_key"`

	FileName    string `gorm:"not null" json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}
