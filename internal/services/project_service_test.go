package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/atelierhq/atelier/internal/database/testutil"
	"github.com/atelierhq/atelier/internal/models"
	apperrors "github.com/atelierhq/atelier/pkg/errors"
)

func newProjectFixture(t *testing.T, db *gorm.DB) (*ProjectService, *models.User) {
	t.Helper()

	svc, err := NewProjectService(db)
	require.NoError(t, err)

	client := &models.User{
		Name:     "Client",
		Email:    "client@example.com",
		Password: "not-a-real-hash",
		IsActive: true,
	}
	require.NoError(t, db.Create(client).Error)

	return svc, client
}

func TestProjectCreate(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, client := newProjectFixture(t, db)
	ctx := context.Background()

	admin := Actor{UserID: "admin-1", IsAdmin: true}

	t.Run("requires admin", func(t *testing.T) {
		_, err := svc.Create(ctx, Actor{UserID: client.ID}, CreateProjectInput{
			ClientID: client.ID,
			Name:     "Website",
		})
		require.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("requires existing client", func(t *testing.T) {
		_, err := svc.Create(ctx, admin, CreateProjectInput{
			ClientID: "missing-client",
			Name:     "Website",
		})
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	project, err := svc.Create(ctx, admin, CreateProjectInput{
		ClientID:    client.ID,
		Name:        "Website relaunch",
		BudgetCents: 1_500_000,
	})
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusDraft, project.Status)
	require.Equal(t, client.ID, project.ClientID)
}

func TestProjectOwnershipIsEnforced(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, client := newProjectFixture(t, db)
	ctx := context.Background()

	admin := Actor{UserID: "admin-1", IsAdmin: true}
	project, err := svc.Create(ctx, admin, CreateProjectInput{
		ClientID: client.ID,
		Name:     "Website relaunch",
	})
	require.NoError(t, err)

	// Existence is hidden from non-owners.
	_, err = svc.Get(ctx, Actor{UserID: "stranger"}, project.ID)
	require.ErrorIs(t, err, ErrProjectNotFound)

	got, err := svc.Get(ctx, Actor{UserID: client.ID}, project.ID)
	require.NoError(t, err)
	require.Equal(t, project.ID, got.ID)

	mine, total, err := svc.List(ctx, Actor{UserID: client.ID}, ListProjectsInput{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, mine, 1)

	_, total, err = svc.List(ctx, Actor{UserID: "stranger"}, ListProjectsInput{})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestProjectUpdate(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, client := newProjectFixture(t, db)
	ctx := context.Background()

	admin := Actor{UserID: "admin-1", IsAdmin: true}
	project, err := svc.Create(ctx, admin, CreateProjectInput{
		ClientID: client.ID,
		Name:     "Website relaunch",
	})
	require.NoError(t, err)

	status := models.ProjectStatusActive
	name := "Website relaunch v2"
	updated, err := svc.Update(ctx, admin, project.ID, UpdateProjectInput{
		Name:   &name,
		Status: &status,
	})
	require.NoError(t, err)
	require.Equal(t, models.ProjectStatusActive, updated.Status)
	require.Equal(t, "Website relaunch v2", updated.Name)

	bad := "paused"
	_, err = svc.Update(ctx, admin, project.ID, UpdateProjectInput{Status: &bad})
	requireBadRequest(t, err)

	_, err = svc.Update(ctx, Actor{UserID: client.ID}, project.ID, UpdateProjectInput{Name: &name})
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestMilestonesAndTasks(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, client := newProjectFixture(t, db)
	ctx := context.Background()

	admin := Actor{UserID: "admin-1", IsAdmin: true}
	project, err := svc.Create(ctx, admin, CreateProjectInput{
		ClientID: client.ID,
		Name:     "Website relaunch",
	})
	require.NoError(t, err)

	discovery, err := svc.AddMilestone(ctx, admin, project.ID, MilestoneInput{
		Title:     "Discovery",
		SortOrder: 1,
	})
	require.NoError(t, err)
	require.Equal(t, models.MilestoneStatusPending, discovery.Status)

	build, err := svc.AddMilestone(ctx, admin, project.ID, MilestoneInput{
		Title:     "Build",
		SortOrder: 2,
	})
	require.NoError(t, err)

	task, err := svc.AddTask(ctx, admin, project.ID, TaskInput{
		Title:       "Interview stakeholders",
		MilestoneID: discovery.ID,
	})
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusTodo, task.Status)
	require.NotNil(t, task.MilestoneID)
	require.Equal(t, discovery.ID, *task.MilestoneID)

	t.Run("task milestone must belong to the project", func(t *testing.T) {
		other, err := svc.Create(ctx, admin, CreateProjectInput{
			ClientID: client.ID,
			Name:     "Second project",
		})
		require.NoError(t, err)

		_, err = svc.AddTask(ctx, admin, other.ID, TaskInput{
			Title:       "Orphan task",
			MilestoneID: discovery.ID,
		})
		require.ErrorIs(t, err, ErrMilestoneNotFound)
	})

	t.Run("status updates", func(t *testing.T) {
		updated, err := svc.UpdateMilestoneStatus(ctx, admin, project.ID, discovery.ID, models.MilestoneStatusDone)
		require.NoError(t, err)
		require.Equal(t, models.MilestoneStatusDone, updated.Status)

		movedTask, err := svc.UpdateTaskStatus(ctx, admin, project.ID, task.ID, models.TaskStatusInProgress)
		require.NoError(t, err)
		require.Equal(t, models.TaskStatusInProgress, movedTask.Status)

		_, err = svc.UpdateTaskStatus(ctx, admin, project.ID, task.ID, "parked")
		requireBadRequest(t, err)
	})

	t.Run("get preloads ordered milestones", func(t *testing.T) {
		loaded, err := svc.Get(ctx, admin, project.ID)
		require.NoError(t, err)
		require.Len(t, loaded.Milestones, 2)
		require.Equal(t, discovery.ID, loaded.Milestones[0].ID)
		require.Equal(t, build.ID, loaded.Milestones[1].ID)
		require.Len(t, loaded.Tasks, 1)
	})
}
