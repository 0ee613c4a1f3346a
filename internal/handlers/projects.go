package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/internal/services"
	"github.com/atelierhq/atelier/pkg/response"
)

// ProjectHandler exposes project, milestone, and task operations.
type ProjectHandler struct {
	projects *services.ProjectService
}

func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

type createProjectRequest struct {
	ClientID    string     `json:"client_id" validate:"required,uuid4"`
	Name        string     `json:"name" validate:"required,min=1,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	BudgetCents int64      `json:"budget_cents" validate:"gte=0"`
	StartedAt   *time.Time `json:"started_at"`
	DueAt       *time.Time `json:"due_at"`
}

// POST /api/admin/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req createProjectRequest
	if !bindAndValidate(c, &req) {
		return
	}

	project, err := h.projects.Create(requestContext(c), currentActor(c), services.CreateProjectInput{
		ClientID:    req.ClientID,
		Name:        req.Name,
		Description: req.Description,
		BudgetCents: req.BudgetCents,
		StartedAt:   req.StartedAt,
		DueAt:       req.DueAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, project)
}

// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 25)

	projects, total, err := h.projects.List(requestContext(c), currentActor(c), services.ListProjectsInput{
		Status: c.Query("status"),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, projects, paginationMeta(page, perPage, total))
}

// GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.projects.Get(requestContext(c), currentActor(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, project)
}

type updateProjectRequest struct {
	Name        *string    `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Status      *string    `json:"status" validate:"omitempty,oneof=draft active on_hold completed archived"`
	BudgetCents *int64     `json:"budget_cents" validate:"omitempty,gte=0"`
	StartedAt   *time.Time `json:"started_at"`
	DueAt       *time.Time `json:"due_at"`
}

// PATCH /api/admin/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	var req updateProjectRequest
	if !bindAndValidate(c, &req) {
		return
	}

	project, err := h.projects.Update(requestContext(c), currentActor(c), c.Param("id"), services.UpdateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		BudgetCents: req.BudgetCents,
		StartedAt:   req.StartedAt,
		DueAt:       req.DueAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, project)
}

type milestoneRequest struct {
	Title     string     `json:"title" validate:"required,min=1,max=200"`
	Detail    string     `json:"detail" validate:"max=5000"`
	DueAt     *time.Time `json:"due_at"`
	SortOrder int        `json:"sort_order"`
}

// POST /api/admin/projects/:id/milestones
func (h *ProjectHandler) AddMilestone(c *gin.Context) {
	var req milestoneRequest
	if !bindAndValidate(c, &req) {
		return
	}

	milestone, err := h.projects.AddMilestone(requestContext(c), currentActor(c), c.Param("id"), services.MilestoneInput{
		Title:     req.Title,
		Detail:    req.Detail,
		DueAt:     req.DueAt,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, milestone)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// PUT /api/admin/projects/:id/milestones/:milestoneID/status
func (h *ProjectHandler) UpdateMilestoneStatus(c *gin.Context) {
	var req statusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	milestone, err := h.projects.UpdateMilestoneStatus(requestContext(c), currentActor(c), c.Param("id"), c.Param("milestoneID"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, milestone)
}

type taskRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=200"`
	Detail      string `json:"detail" validate:"max=5000"`
	MilestoneID string `json:"milestone_id" validate:"omitempty,uuid4"`
	AssigneeID  string `json:"assignee_id" validate:"omitempty,uuid4"`
}

// POST /api/admin/projects/:id/tasks
func (h *ProjectHandler) AddTask(c *gin.Context) {
	var req taskRequest
	if !bindAndValidate(c, &req) {
		return
	}

	task, err := h.projects.AddTask(requestContext(c), currentActor(c), c.Param("id"), services.TaskInput{
		Title:       req.Title,
		Detail:      req.Detail,
		MilestoneID: req.MilestoneID,
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, task)
}

// PUT /api/admin/projects/:id/tasks/:taskID/status
func (h *ProjectHandler) UpdateTaskStatus(c *gin.Context) {
	var req statusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	task, err := h.projects.UpdateTaskStatus(requestContext(c), currentActor(c), c.Param("id"), c.Param("taskID"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, task)
}
