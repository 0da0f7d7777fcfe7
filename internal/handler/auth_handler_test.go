package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/metropolis-api/internal/middleware"
	"github.com/noah-isme/metropolis-api/internal/models"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

type authenticatorMock struct {
	got models.LoginRequest
}

func (m *authenticatorMock) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.got = req
	if req.Password != "secret" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{AccessToken: "token", User: models.UserInfo{ID: "u1", Email: req.Email}}, nil
}

func loginRequest(body string) (*httptest.ResponseRecorder, *gin.Context) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set("User-Agent", "handler-test")
	return w, c
}

func TestAuthHandlerLogin(t *testing.T) {
	mock := &authenticatorMock{}
	handler := NewAuthHandler(mock)
	w, c := loginRequest(`{"email":"ada@example.com","password":"secret"}`)

	handler.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token":"token"`)
	assert.Equal(t, "handler-test", mock.got.UserAgent)
}

func TestAuthHandlerLoginRejectsBadCredentials(t *testing.T) {
	handler := NewAuthHandler(&authenticatorMock{})
	w, c := loginRequest(`{"email":"ada@example.com","password":"nope"}`)

	handler.Login(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&authenticatorMock{})
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/auth/me", nil)

	handler.Me(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Email: "ada@example.com", Role: models.RoleAdmin})

	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"ada@example.com"`)
}
