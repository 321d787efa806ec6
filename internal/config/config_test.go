package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, int64(32768), cfg.ReadLimit)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "drop", cfg.Backpressure)
	assert.False(t, cfg.AllowQueryIdentity)
	assert.Equal(t, 10*time.Second, cfg.InitiateInterval)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DUET_PORT", "9090")
	t.Setenv("DUET_STORE_DRIVER", "postgres")
	t.Setenv("DUET_BACKPRESSURE", "disconnect")

	v := viper.New()
	v.SetEnvPrefix("DUET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "disconnect", cfg.Backpressure)
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("store.driver", "cassandra")
	_, err := FromViper(v)
	assert.Error(t, err)

	v = viper.New()
	SetDefaults(v)
	v.Set("backpressure", "pray")
	_, err = FromViper(v)
	assert.Error(t, err)
}
