package database

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/metropolis-api/pkg/config"
)

func TestDSNEscapesCredentialsAndPinsUTC(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host: "db.internal", Port: 5433, User: "metro", Password: "p@ss word/1", Name: "metropolis", SSLMode: "require",
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.internal:5433", u.Host)
	assert.Equal(t, "/metropolis", u.Path)
	password, _ := u.User.Password()
	assert.Equal(t, "p@ss word/1", password)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "UTC", u.Query().Get("timezone"))
	assert.Equal(t, applicationName, u.Query().Get("application_name"))
}
