package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/internal/handlers/testutil"
	"github.com/atelierhq/atelier/internal/models"
)

func TestTalkHandler_AnonymousIntake(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/talk", map[string]any{
		"name":        "Prospect",
		"email":       "prospect@example.com",
		"requirement": "We need a storefront redesign.",
		"mode":        "chat",
		"immediate":   true,
	}, "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var request models.TalkRequest
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &request)
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.TalkModeChat, request.Mode)
	// No admin is online, so a chat request lands in the async queue.
	require.Equal(t, models.TalkStatusAsync, request.Status)
	require.Nil(t, request.UserID)
}

func TestTalkHandler_SignedInIntakeLinksAccount(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("TalkPassw0rd!")
	login := env.Login(user.Email, "TalkPassw0rd!")

	resp := env.Request(http.MethodPost, "/api/talk", map[string]any{
		"name":        "Existing Client",
		"requirement": "Quick scoping call please.",
		"mode":        "phone",
		"phone":       "+4512345678",
		"immediate":   true,
	}, login.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var request models.TalkRequest
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &request)
	require.NotNil(t, request.UserID)
	require.Equal(t, user.ID, *request.UserID)
}

func TestTalkHandler_IntakeValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/talk", map[string]any{
		"name":        "Prospect",
		"requirement": "Something",
		"mode":        "carrier-pigeon",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, "BAD_REQUEST", testutil.DecodeResponse(t, resp).Error.Code)
}

func TestTalkHandler_TranscriptAppend(t *testing.T) {
	env := testutil.NewEnv(t)

	created := env.Request(http.MethodPost, "/api/talk", map[string]any{
		"name":        "Prospect",
		"email":       "prospect@example.com",
		"requirement": "Chat about branding.",
		"mode":        "chat",
		"immediate":   true,
	}, "")
	require.Equal(t, http.StatusCreated, created.Code)

	var request models.TalkRequest
	testutil.DecodeInto(t, testutil.DecodeResponse(t, created).Data, &request)

	entry := env.Request(http.MethodPost, "/api/talk/"+request.ID+"/messages", map[string]string{
		"author": "Prospect",
		"text":   "Hello, anyone there?",
	}, "")
	require.Equal(t, http.StatusCreated, entry.Code, entry.Body.String())

	var count int64
	require.NoError(t, env.DB.Model(&models.TalkTranscriptEntry{}).
		Where("request_id = ?", request.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	missing := env.Request(http.MethodPost, "/api/talk/missing-id/messages", map[string]string{
		"author": "Prospect",
		"text":   "Hello?",
	}, "")
	require.Equal(t, http.StatusNotFound, missing.Code)
}

func TestTalkHandler_AdminLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateAdmin("AdminPassw0rd!")
	client := env.CreateUser("ClientPassw0rd!")

	created := env.Request(http.MethodPost, "/api/talk", map[string]any{
		"name":        "Prospect",
		"email":       "prospect@example.com",
		"requirement": "Need advice on scaling.",
		"mode":        "video",
		"immediate":   true,
	}, "")
	require.Equal(t, http.StatusCreated, created.Code)
	var request models.TalkRequest
	testutil.DecodeInto(t, testutil.DecodeResponse(t, created).Data, &request)

	adminLogin := env.Login(admin.Email, "AdminPassw0rd!")
	clientLogin := env.Login(client.Email, "ClientPassw0rd!")

	// The console is closed to regular accounts.
	forbidden := env.Request(http.MethodGet, "/api/admin/talk", nil, clientLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, forbidden.Code)

	list := env.Request(http.MethodGet, "/api/admin/talk", nil, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, list.Code)
	var requests []models.TalkRequest
	listResp := testutil.DecodeResponse(t, list)
	testutil.DecodeInto(t, listResp.Data, &requests)
	require.Len(t, requests, 1)
	require.NotNil(t, listResp.Meta)
	require.Equal(t, 1, listResp.Meta.Total)

	transition := env.Request(http.MethodPut, "/api/admin/talk/"+request.ID+"/status", map[string]string{
		"status": "Active",
	}, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, transition.Code, transition.Body.String())
	var updated models.TalkRequest
	testutil.DecodeInto(t, testutil.DecodeResponse(t, transition).Data, &updated)
	require.Equal(t, models.TalkStatusActive, updated.Status)

	rejected := env.Request(http.MethodPut, "/api/admin/talk/"+request.ID+"/status", map[string]string{
		"status": "archived",
	}, adminLogin.Tokens.AccessToken)
	require.Equal(t, http.StatusBadRequest, rejected.Code)
}
