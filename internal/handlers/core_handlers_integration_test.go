package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/internal/handlers/testutil"
	"github.com/atelierhq/atelier/internal/models"
)

func TestProjectHandler_AdminCreatesClientSees(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateAdmin("AdminPassw0rd!")
	client := env.CreateUser("ClientPassw0rd!")
	outsider := env.CreateUser("OutsiderPassw0rd!")

	adminLogin := env.Login(admin.Email, "AdminPassw0rd!")
	clientLogin := env.Login(client.Email, "ClientPassw0rd!")
	outsiderLogin := env.Login(outsider.Email, "OutsiderPassw0rd!")

	created := env.Request(http.MethodPost, "/api/admin/projects", map[string]any{
		"client_id":    client.ID,
		"name":         "Identity refresh",
		"budget_cents": 900_000,
	}, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var project models.Project
	testutil.DecodeInto(t, testutil.DecodeResponse(t, created).Data, &project)
	require.Equal(t, models.ProjectStatusDraft, project.Status)

	// Clients cannot reach the admin console.
	denied := env.Request(http.MethodPost, "/api/admin/projects", map[string]any{
		"client_id": client.ID,
		"name":      "Sneaky",
	}, clientLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, denied.Code)

	// The owning client sees the project; an unrelated account does not.
	visible := env.Request(http.MethodGet, "/api/projects/"+project.ID, nil, clientLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, visible.Code)

	hidden := env.Request(http.MethodGet, "/api/projects/"+project.ID, nil, outsiderLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusNotFound, hidden.Code)

	milestone := env.Request(http.MethodPost, "/api/admin/projects/"+project.ID+"/milestones", map[string]any{
		"title":      "Discovery",
		"sort_order": 1,
	}, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, milestone.Code, milestone.Body.String())

	listed := env.Request(http.MethodGet, "/api/projects", nil, clientLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, listed.Code)
	var projects []models.Project
	testutil.DecodeInto(t, testutil.DecodeResponse(t, listed).Data, &projects)
	require.Len(t, projects, 1)
}

func TestTicketHandler_CreateAndReply(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateAdmin("AdminPassw0rd!")
	client := env.CreateUser("ClientPassw0rd!")
	clientLogin := env.Login(client.Email, "ClientPassw0rd!")

	created := env.Request(http.MethodPost, "/api/tickets", map[string]string{
		"subject": "Invoice question",
		"body":    "The November invoice looks off.",
	}, clientLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var ticket models.SupportTicket
	testutil.DecodeInto(t, testutil.DecodeResponse(t, created).Data, &ticket)
	require.Equal(t, models.TicketStatusOpen, ticket.Status)
	require.Equal(t, models.TicketPriorityNormal, ticket.Priority)

	reply := env.Request(http.MethodPost, "/api/tickets/"+ticket.ID+"/replies", map[string]string{
		"body": "Adding a screenshot for context.",
	}, clientLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, reply.Code, reply.Body.String())

	invalid := env.Request(http.MethodPost, "/api/tickets", map[string]string{
		"subject":  "Bad priority",
		"body":     "Body",
		"priority": "urgent",
	}, clientLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestInvoiceHandler_LifecycleWithoutProcessor(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateAdmin("AdminPassw0rd!")
	client := env.CreateUser("ClientPassw0rd!")

	adminLogin := env.Login(admin.Email, "AdminPassw0rd!")
	clientLogin := env.Login(client.Email, "ClientPassw0rd!")

	createdProject := env.Request(http.MethodPost, "/api/admin/projects", map[string]any{
		"client_id": client.ID,
		"name":      "Billing project",
	}, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, createdProject.Code)
	var project models.Project
	testutil.DecodeInto(t, testutil.DecodeResponse(t, createdProject).Data, &project)

	createdInvoice := env.Request(http.MethodPost, "/api/admin/invoices", map[string]any{
		"project_id":   project.ID,
		"amount_cents": 250_000,
		"description":  "Milestone one",
	}, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, createdInvoice.Code, createdInvoice.Body.String())
	var invoice models.Invoice
	testutil.DecodeInto(t, testutil.DecodeResponse(t, createdInvoice).Data, &invoice)
	require.Equal(t, models.InvoiceStatusDraft, invoice.Status)

	sent := env.Request(http.MethodPost, "/api/admin/invoices/"+invoice.ID+"/send", nil, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, sent.Code, sent.Body.String())

	listed := env.Request(http.MethodGet, "/api/invoices", nil, clientLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, listed.Code)
	var invoices []models.Invoice
	testutil.DecodeInto(t, testutil.DecodeResponse(t, listed).Data, &invoices)
	require.Len(t, invoices, 1)

	// No payment processor is configured in this environment.
	checkout := env.Request(http.MethodPost, "/api/invoices/"+invoice.ID+"/checkout", nil, clientLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusServiceUnavailable, checkout.Code)
}

func TestWebhookWithoutSecretAcknowledges(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/webhooks/payments", map[string]any{
		"type": "checkout.session.completed",
	}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestAdminHandler_UserManagement(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateAdmin("AdminPassw0rd!")
	client := env.CreateUser("ClientPassw0rd!")
	adminLogin := env.Login(admin.Email, "AdminPassw0rd!")

	listed := env.Request(http.MethodGet, "/api/admin/users", nil, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, listed.Code)
	var users []models.User
	testutil.DecodeInto(t, testutil.DecodeResponse(t, listed).Data, &users)
	require.Len(t, users, 2)

	deactivated := env.Request(http.MethodPut, "/api/admin/users/"+client.ID+"/active", map[string]any{
		"active": false,
	}, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, deactivated.Code, deactivated.Body.String())

	// A deactivated account cannot sign in anymore.
	denied := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    client.Email,
		"password": "ClientPassw0rd!",
	}, "")
	require.Equal(t, http.StatusForbidden, denied.Code)

	promoted := env.Request(http.MethodPut, "/api/admin/users/"+client.ID+"/admin", map[string]any{
		"admin": true,
	}, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, promoted.Code, promoted.Body.String())

	// Revoking your own admin role is rejected.
	selfDemote := env.Request(http.MethodPut, "/api/admin/users/"+admin.ID+"/admin", map[string]any{
		"admin": false,
	}, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusBadRequest, selfDemote.Code)

	demoted := env.Request(http.MethodPut, "/api/admin/users/"+client.ID+"/admin", map[string]any{
		"admin": false,
	}, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, demoted.Code)
}

func TestNotificationHandler_Flow(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateAdmin("AdminPassw0rd!")
	adminLogin := env.Login(admin.Email, "AdminPassw0rd!")

	// A public talk submission fans out a notification to every admin.
	submitted := env.Request(http.MethodPost, "/api/talk", map[string]any{
		"name":        "Prospect",
		"email":       "prospect@example.com",
		"requirement": "New engagement",
		"mode":        "chat",
		"immediate":   true,
	}, "")
	require.Equal(t, http.StatusCreated, submitted.Code)

	unread := env.Request(http.MethodGet, "/api/notifications/unread-count", nil, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, unread.Code)
	var countData map[string]int64
	testutil.DecodeInto(t, testutil.DecodeResponse(t, unread).Data, &countData)
	require.EqualValues(t, 1, countData["unread"])

	list := env.Request(http.MethodGet, "/api/notifications", nil, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, list.Code)
	var notifications []models.Notification
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &notifications)
	require.Len(t, notifications, 1)

	read := env.Request(http.MethodPut, "/api/notifications/"+notifications[0].ID+"/read", nil, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, read.Code)

	unread = env.Request(http.MethodGet, "/api/notifications/unread-count", nil, adminLogin.Tokens.AccessToken)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, unread).Data, &countData)
	require.Zero(t, countData["unread"])
}
