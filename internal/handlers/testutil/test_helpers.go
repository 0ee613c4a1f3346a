package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/atelierhq/atelier/internal/api"
	"github.com/atelierhq/atelier/internal/app"
	iauth "github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/internal/auth/mfa"
	sharedtestutil "github.com/atelierhq/atelier/internal/database/testutil"
	"github.com/atelierhq/atelier/internal/middleware"
	"github.com/atelierhq/atelier/internal/models"
	"github.com/atelierhq/atelier/internal/realtime"
	"github.com/atelierhq/atelier/internal/services"
	"github.com/atelierhq/atelier/internal/storage"
	"github.com/atelierhq/atelier/pkg/crypto"
	"github.com/atelierhq/atelier/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	OTPs   *services.OTPService
	Talks  *services.TalkService
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: jwtSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
				CookieName:    "atelier_token",
			},
		},
	}

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)

	totpSvc, err := mfa.NewTOTPService(db, []byte("12345678901234567890123456789012"))
	require.NoError(t, err)

	hub := realtime.NewHub()

	otpSvc, err := services.NewOTPService(db, nil)
	require.NoError(t, err)

	userSvc, err := services.NewUserService(db, otpSvc)
	require.NoError(t, err)

	admins, err := services.NewAdminDirectory(db)
	require.NoError(t, err)

	notificationSvc, err := services.NewNotificationService(db, admins, hub, nil)
	require.NoError(t, err)

	projectSvc, err := services.NewProjectService(db)
	require.NoError(t, err)

	presigner, err := storage.NewPresigner(storage.Config{
		Endpoint:  "127.0.0.1:9000",
		AccessKey: "test-access",
		SecretKey: "test-secret",
		Bucket:    "atelier-test",
	})
	require.NoError(t, err)

	fileSvc, err := services.NewFileService(db, projectSvc, presigner)
	require.NoError(t, err)

	messageSvc, err := services.NewMessageService(db, projectSvc, hub)
	require.NoError(t, err)

	ticketSvc, err := services.NewTicketService(db, notificationSvc)
	require.NoError(t, err)

	invoiceSvc, err := services.NewInvoiceService(db, projectSvc, nil, notificationSvc)
	require.NoError(t, err)

	talkSvc, err := services.NewTalkService(db, admins, notificationSvc, hub, services.WithTalkFanout(false))
	require.NoError(t, err)

	dashboardSvc, err := services.NewDashboardService(db)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:            db,
		Config:        cfg,
		JWT:           jwtSvc,
		Sessions:      sessionSvc,
		TOTP:          totpSvc,
		Hub:           hub,
		RateStore:     middleware.NewMemoryRateStore(),
		Users:         userSvc,
		Projects:      projectSvc,
		Files:         fileSvc,
		Messages:      messageSvc,
		Tickets:       ticketSvc,
		Invoices:      invoiceSvc,
		Talks:         talkSvc,
		Notifications: notificationSvc,
		Dashboard:     dashboardSvc,
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		OTPs:   otpSvc,
		Talks:  talkSvc,
	}
}

// CreateUser inserts a verified active client account and returns the record.
func (e *Env) CreateUser(password string) *models.User {
	e.T.Helper()
	return e.createAccount(password, false)
}

// CreateAdmin inserts a verified active administrator account and returns the record.
func (e *Env) CreateAdmin(password string) *models.User {
	e.T.Helper()
	return e.createAccount(password, true)
}

func (e *Env) createAccount(password string, admin bool) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	now := time.Now().UTC()
	prefix := "client-"
	if admin {
		prefix = "admin-"
	}
	name := prefix + uuid.NewString()

	user := &models.User{
		Name:         name,
		Email:        name + "@example.com",
		Password:     hashed,
		IsAdmin:      admin,
		IsActive:     true,
		VerifiedAt:   &now,
		Availability: models.AvailabilityOffline,
	}

	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// TokenPair mirrors the token payload returned by auth endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	IsAdmin      bool   `json:"is_admin"`
	IsActive     bool   `json:"is_active"`
	Verified     bool   `json:"verified"`
	Availability string `json:"availability"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Tokens TokenPair   `json:"tokens"`
	User   UserPayload `json:"user"`
}

// Login authenticates with email and password and returns the issued tokens.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"email":    email,
		"password": password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	require.Equal(e.T, email, result.User.Email)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
