package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/models"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
)

var (
	// ErrProjectNotFound indicates the project does not exist or the caller cannot see it.
	ErrProjectNotFound = apperrors.New("PROJECT_NOT_FOUND", "Project not found", http.StatusNotFound)
	// ErrMilestoneNotFound indicates the milestone does not exist within the project.
	ErrMilestoneNotFound = apperrors.New("MILESTONE_NOT_FOUND", "Milestone not found", http.StatusNotFound)
	// ErrTaskNotFound indicates the task does not exist within the project.
	ErrTaskNotFound = apperrors.New("TASK_NOT_FOUND", "Task not found", http.StatusNotFound)
)

// Actor identifies the caller for access checks.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// CreateProjectInput describes a new client engagement.
type CreateProjectInput struct {
	ClientID    string
	Name        string
	Description string
	BudgetCents int64
	StartedAt   *time.Time
	DueAt       *time.Time
}

// UpdateProjectInput enumerates mutable project attributes.
type UpdateProjectInput struct {
	Name        *string
	Description *string
	Status      *string
	BudgetCents *int64
	StartedAt   *time.Time
	DueAt       *time.Time
}

// MilestoneInput describes a milestone create or update.
type MilestoneInput struct {
	Title     string
	Detail    string
	DueAt     *time.Time
	SortOrder int
}

// TaskInput describes a task create.
type TaskInput struct {
	Title       string
	Detail      string
	MilestoneID string
	AssigneeID  string
}

// ListProjectsInput filters the project listing.
type ListProjectsInput struct {
	Status string
	Limit  int
	Offset int
}

// ProjectService manages client engagements and their milestones and tasks.
type ProjectService struct {
	db *gorm.DB
}

// NewProjectService constructs a ProjectService.
func NewProjectService(db *gorm.DB) (*ProjectService, error) {
	if db == nil {
		return nil, errors.New("project service: db is required")
	}
	return &ProjectService{db: db}, nil
}

// Create provisions a new project for a client. Admin only.
func (s *ProjectService) Create(ctx context.Context, actor Actor, input CreateProjectInput) (*models.Project, error) {
	ctx = ensureContext(ctx)
	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}

	clientID := strings.TrimSpace(input.ClientID)
	if clientID == "" {
		return nil, apperrors.NewBadRequest("client_id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}

	var client models.User
	if err := s.db.WithContext(ctx).Take(&client, "id = ?", clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("project service: load client: %w", err)
	}

	project := &models.Project{
		ClientID:    client.ID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Status:      models.ProjectStatusDraft,
		BudgetCents: input.BudgetCents,
		StartedAt:   input.StartedAt,
		DueAt:       input.DueAt,
	}

	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		return nil, fmt.Errorf("project service: create project: %w", err)
	}

	return project, nil
}

// Get loads a project with its milestones and tasks, enforcing ownership.
func (s *ProjectService) Get(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	ctx = ensureContext(ctx)

	project, err := s.load(ctx, projectID, true)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && project.ClientID != actor.UserID {
		// Hide existence from non-owners.
		return nil, ErrProjectNotFound
	}

	return project, nil
}

// List returns projects visible to the actor, newest first. Clients see only
// their own engagements.
func (s *ProjectService) List(ctx context.Context, actor Actor, input ListProjectsInput) ([]models.Project, int64, error) {
	ctx = ensureContext(ctx)

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&models.Project{})
	if !actor.IsAdmin {
		query = query.Where("client_id = ?", actor.UserID)
	}
	if status := strings.TrimSpace(input.Status); status != "" {
		if !models.ValidProjectStatus(status) {
			return nil, 0, apperrors.NewBadRequest("unknown status filter")
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("project service: count projects: %w", err)
	}

	var projects []models.Project
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&projects).Error; err != nil {
		return nil, 0, fmt.Errorf("project service: list projects: %w", err)
	}

	return projects, total, nil
}

// Update applies project changes. Admin only.
func (s *ProjectService) Update(ctx context.Context, actor Actor, projectID string, input UpdateProjectInput) (*models.Project, error) {
	ctx = ensureContext(ctx)
	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}

	project, err := s.load(ctx, projectID, false)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		status := strings.TrimSpace(*input.Status)
		if !models.ValidProjectStatus(status) {
			return nil, apperrors.NewBadRequest("status must be one of draft, active, on_hold, completed, archived")
		}
		updates["status"] = status
	}
	if input.BudgetCents != nil {
		updates["budget_cents"] = *input.BudgetCents
	}
	if input.StartedAt != nil {
		updates["started_at"] = input.StartedAt
	}
	if input.DueAt != nil {
		updates["due_at"] = input.DueAt
	}

	if len(updates) == 0 {
		return project, nil
	}

	if err := s.db.WithContext(ctx).Model(project).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("project service: update project: %w", err)
	}

	return s.load(ctx, projectID, true)
}

// AddMilestone appends a milestone to a project. Admin only.
func (s *ProjectService) AddMilestone(ctx context.Context, actor Actor, projectID string, input MilestoneInput) (*models.Milestone, error) {
	ctx = ensureContext(ctx)
	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}

	project, err := s.load(ctx, projectID, false)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}

	milestone := &models.Milestone{
		ProjectID: project.ID,
		Title:     title,
		Detail:    strings.TrimSpace(input.Detail),
		Status:    models.MilestoneStatusPending,
		DueAt:     input.DueAt,
		SortOrder: input.SortOrder,
	}

	if err := s.db.WithContext(ctx).Create(milestone).Error; err != nil {
		return nil, fmt.Errorf("project service: create milestone: %w", err)
	}

	return milestone, nil
}

// UpdateMilestoneStatus moves a milestone through its status set. Admin only.
func (s *ProjectService) UpdateMilestoneStatus(ctx context.Context, actor Actor, projectID, milestoneID, status string) (*models.Milestone, error) {
	ctx = ensureContext(ctx)
	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}
	if !models.ValidMilestoneStatus(status) {
		return nil, apperrors.NewBadRequest("status must be one of pending, in_progress, done")
	}

	var milestone models.Milestone
	err := s.db.WithContext(ctx).
		Take(&milestone, "id = ? AND project_id = ?", strings.TrimSpace(milestoneID), strings.TrimSpace(projectID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMilestoneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project service: load milestone: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&milestone).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("project service: update milestone: %w", err)
	}

	milestone.Status = status
	return &milestone, nil
}

// AddTask creates a task within a project. Admin only.
func (s *ProjectService) AddTask(ctx context.Context, actor Actor, projectID string, input TaskInput) (*models.Task, error) {
	ctx = ensureContext(ctx)
	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}

	project, err := s.load(ctx, projectID, false)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}

	task := &models.Task{
		ProjectID: project.ID,
		Title:     title,
		Detail:    strings.TrimSpace(input.Detail),
		Status:    models.TaskStatusTodo,
	}

	if milestoneID := strings.TrimSpace(input.MilestoneID); milestoneID != "" {
		var milestone models.Milestone
		err := s.db.WithContext(ctx).
			Take(&milestone, "id = ? AND project_id = ?", milestoneID, project.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMilestoneNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("project service: load milestone: %w", err)
		}
		task.MilestoneID = &milestone.ID
	}

	if assigneeID := strings.TrimSpace(input.AssigneeID); assigneeID != "" {
		task.AssigneeID = &assigneeID
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("project service: create task: %w", err)
	}

	return task, nil
}

// UpdateTaskStatus moves a task through its status set. Admin only.
func (s *ProjectService) UpdateTaskStatus(ctx context.Context, actor Actor, projectID, taskID, status string) (*models.Task, error) {
	ctx = ensureContext(ctx)
	if !actor.IsAdmin {
		return nil, apperrors.ErrForbidden
	}
	if !models.ValidTaskStatus(status) {
		return nil, apperrors.NewBadRequest("status must be one of todo, in_progress, blocked, done")
	}

	var task models.Task
	err := s.db.WithContext(ctx).
		Take(&task, "id = ? AND project_id = ?", strings.TrimSpace(taskID), strings.TrimSpace(projectID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project service: load task: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&task).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("project service: update task: %w", err)
	}

	task.Status = status
	return &task, nil
}

// EnsureAccess verifies the actor may read the project.
func (s *ProjectService) EnsureAccess(ctx context.Context, actor Actor, projectID string) (*models.Project, error) {
	ctx = ensureContext(ctx)

	project, err := s.load(ctx, projectID, false)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && project.ClientID != actor.UserID {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

func (s *ProjectService) load(ctx context.Context, projectID string, preload bool) (*models.Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, apperrors.NewBadRequest("project id is required")
	}

	query := s.db.WithContext(ctx)
	if preload {
		query = query.
			Preload("Milestones", func(db *gorm.DB) *gorm.DB {
				return db.Order("sort_order ASC, created_at ASC")
			}).
			Preload("Tasks", func(db *gorm.DB) *gorm.DB {
				return db.Order("created_at ASC")
			}).
			Preload("Files")
	}

	var project models.Project
	err := query.Take(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project service: load project: %w", err)
	}

	return &project, nil
}
