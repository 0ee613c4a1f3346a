package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/internal/storage"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
)

// ErrFileNotFound indicates the file record does not exist within the project.
var ErrFileNotFound = apperrors.New("FILE_NOT_FOUND", "File not found", http.StatusNotFound)

// PresignUploadInput describes a requested upload slot.
type PresignUploadInput struct {
	ProjectID   string
	FileName    string
	ContentType string
	SizeBytes   int64
}

// FileService issues presigned URLs and tracks file metadata per project.
// Bytes never pass through the application server.
type FileService struct {
	db        *gorm.DB
	projects  *ProjectService
	presigner *storage.Presigner
}

// NewFileService constructs a FileService.
func NewFileService(db *gorm.DB, projects *ProjectService, presigner *storage.Presigner) (*FileService, error) {
	if db == nil {
		return nil, errors.New("file service: db is required")
	}
	if projects == nil {
		return nil, errors.New("file service: project service is required")
	}
	if presigner == nil {
		return nil, errors.New("file service: presigner is required")
	}
	return &FileService{db: db, projects: projects, presigner: presigner}, nil
}

// PresignUpload records file metadata and returns a presigned PUT URL. The
// record is created up front so orphaned uploads can be reconciled later.
func (s *FileService) PresignUpload(ctx context.Context, actor Actor, input PresignUploadInput) (*models.ProjectFile, *storage.PresignedUpload, error) {
	ctx = ensureContext(ctx)

	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, nil, apperrors.NewBadRequest("file_name is required")
	}
	if input.SizeBytes < 0 {
		return nil, nil, apperrors.NewBadRequest("size_bytes cannot be negative")
	}

	project, err := s.projects.EnsureAccess(ctx, actor, input.ProjectID)
	if err != nil {
		return nil, nil, err
	}

	objectKey := storage.ObjectKey(project.ID, fileName)

	upload, err := s.presigner.PresignUpload(ctx, objectKey)
	if err != nil {
		return nil, nil, fmt.Errorf("file service: presign upload: %w", err)
	}

	file := &models.ProjectFile{
		ProjectID:   project.ID,
		UploaderID:  actor.UserID,
		ObjectKey:   objectKey,
		FileName:    fileName,
		ContentType: strings.TrimSpace(input.ContentType),
		SizeBytes:   input.SizeBytes,
	}

	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		return nil, nil, fmt.Errorf("file service: create file record: %w", err)
	}

	return file, upload, nil
}

// PresignDownload returns a short-lived download URL for a stored file.
func (s *FileService) PresignDownload(ctx context.Context, actor Actor, projectID, fileID string) (*storage.PresignedDownload, error) {
	ctx = ensureContext(ctx)

	file, err := s.get(ctx, actor, projectID, fileID)
	if err != nil {
		return nil, err
	}

	download, err := s.presigner.PresignDownload(ctx, file.ObjectKey, file.FileName)
	if err != nil {
		return nil, fmt.Errorf("file service: presign download: %w", err)
	}

	return download, nil
}

// List returns file metadata for a project.
func (s *FileService) List(ctx context.Context, actor Actor, projectID string) ([]models.ProjectFile, error) {
	ctx = ensureContext(ctx)

	project, err := s.projects.EnsureAccess(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}

	var files []models.ProjectFile
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", project.ID).
		Order("created_at DESC").
		Find(&files).Error; err != nil {
		return nil, fmt.Errorf("file service: list files: %w", err)
	}

	return files, nil
}

// Delete removes a file record and its stored object. Storage failures are
// ignored once the record is gone; reconciliation handles stragglers.
func (s *FileService) Delete(ctx context.Context, actor Actor, projectID, fileID string) error {
	ctx = ensureContext(ctx)

	file, err := s.get(ctx, actor, projectID, fileID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin && file.UploaderID != actor.UserID {
		return apperrors.ErrForbidden
	}

	if err := s.db.WithContext(ctx).Delete(&models.ProjectFile{}, "id = ?", file.ID).Error; err != nil {
		return fmt.Errorf("file service: delete file record: %w", err)
	}

	_ = s.presigner.RemoveObject(ctx, file.ObjectKey)
	return nil
}

func (s *FileService) get(ctx context.Context, actor Actor, projectID, fileID string) (*models.ProjectFile, error) {
	project, err := s.projects.EnsureAccess(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}

	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, apperrors.NewBadRequest("file id is required")
	}

	var file models.ProjectFile
	err = s.db.WithContext(ctx).
		Take(&file, "id = ? AND project_id = ?", fileID, project.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file service: load file: %w", err)
	}

	return &file, nil
}
