package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/models"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	findByEmailErr   error
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil || m.userByEmail.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

type mockAuditRepo struct {
	logs []*models.AuditLog
}

func (m *mockAuditRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func newAuthService(t *testing.T, active bool) (*AuthService, *mockAuthRepo, *mockAuditRepo) {
	t.Helper()
	hash, err := HashPassword("Password123!")
	require.NoError(t, err)
	repo := &mockAuthRepo{userByEmail: &models.User{
		ID: "user-1", Email: "exec@example.com", PasswordHash: hash, FullName: "Club Exec", Role: models.RoleStudent, Active: active,
	}}
	audit := &mockAuditRepo{}
	svc := NewAuthService(repo, audit, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "metropolis",
	})
	return svc, repo, audit
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, repo, audit := newAuthService(t, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email: " Exec@Example.com ", Password: "Password123!", IP: "127.0.0.1", UserAgent: "test",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.Actor{UserID: "user-1", Role: models.RoleStudent}, claims.Actor())
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, _, audit := newAuthService(t, true)
	ctx := context.Background()

	_, err := svc.Login(ctx, models.LoginRequest{Email: "exec@example.com", Password: "wrong"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "nobody@example.com", Password: "Password123!"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(ctx, models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.Contains(t, appErrors.FromError(err).Fields, "email")
	assert.Empty(t, audit.logs)

	inactive, _, _ := newAuthService(t, false)
	_, err = inactive.Login(ctx, models.LoginRequest{Email: "exec@example.com", Password: "Password123!"})
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))
}

func TestAuthServiceRejectsForeignTokens(t *testing.T) {
	svc, _, _ := newAuthService(t, true)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "exec@example.com", Password: "Password123!"})
	require.NoError(t, err)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	_, err = other.ValidateToken(resp.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.ValidateToken("garbage")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
