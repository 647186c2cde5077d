package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("RESET_CODE_STORE", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTokenTTL())
	assert.Equal(t, 10*time.Minute, cfg.Auth.ResetCodeTTL())
	assert.Equal(t, IntakeAuthenticated, cfg.Tickets.IntakeMode)
	assert.False(t, cfg.Tickets.AnonymousIntake())
	assert.Equal(t, int64(10<<20), cfg.Tickets.MaxAttachmentBytes())
	assert.Equal(t, 5, cfg.Tickets.TokenMaxAttempts)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoadRejectsUnknownIntakeMode(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TICKET_INTAKE_MODE", "both")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TICKET_INTAKE_MODE")
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("AUTH_JWT_SECRET", "s3cr3t")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", cfg.Auth.JWTSecret)
}

func TestAnonymousIntakeFlag(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TICKET_INTAKE_MODE", "ANONYMOUS")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Tickets.AnonymousIntake())
}
