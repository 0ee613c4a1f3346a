package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/services"
	"github.com/atelierhq/atelier/pkg/response"
)

// FileHandler exposes presigned upload and download operations.
type FileHandler struct {
	files *services.FileService
}

func NewFileHandler(files *services.FileService) *FileHandler {
	return &FileHandler{files: files}
}

type presignUploadRequest struct {
	FileName    string `json:"file_name" validate:"required,min=1,max=255"`
	ContentType string `json:"content_type" validate:"max=128"`
	SizeBytes   int64  `json:"size_bytes" validate:"gte=0"`
}

// POST /api/projects/:id/files/presign
func (h *FileHandler) PresignUpload(c *gin.Context) {
	var req presignUploadRequest
	if !bindAndValidate(c, &req) {
		return
	}

	file, upload, err := h.files.PresignUpload(requestContext(c), currentActor(c), services.PresignUploadInput{
		ProjectID:   c.Param("id"),
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"file":   file,
		"upload": upload,
	})
}

// GET /api/projects/:id/files
func (h *FileHandler) List(c *gin.Context) {
	files, err := h.files.List(requestContext(c), currentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, files)
}

// GET /api/projects/:id/files/:fileID/download
func (h *FileHandler) PresignDownload(c *gin.Context) {
	download, err := h.files.PresignDownload(requestContext(c), currentActor(c), c.Param("id"), c.Param("fileID"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, download)
}

// DELETE /api/projects/:id/files/:fileID
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.files.Delete(requestContext(c), currentActor(c), c.Param("id"), c.Param("fileID")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
