package config_test

import (
	"testing"

	"github.com/dmitrymomot/conveyor/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Host string `env:"CFG_TEST_HOST" envDefault:"localhost"`
	Port int    `env:"CFG_TEST_PORT" envDefault:"5432"`
}

func TestLoad_AppliesDefaults(t *testing.T) {
	config.Reset()

	var cfg testConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	config.Reset()
	t.Setenv("CFG_TEST_HOST", "db.internal")
	t.Setenv("CFG_TEST_PORT", "6543")

	var cfg testConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
}

func TestLoad_CachesPerType(t *testing.T) {
	config.Reset()
	t.Setenv("CFG_TEST_HOST", "first")

	var first testConfig
	require.NoError(t, config.Load(&first))
	assert.Equal(t, "first", first.Host)

	t.Setenv("CFG_TEST_HOST", "second")

	var second testConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "first", second.Host, "cached value should not reflect the later env change")
}

func TestMustLoad_PanicsOnInvalidValue(t *testing.T) {
	config.Reset()
	t.Setenv("CFG_TEST_PORT", "not-a-number")

	assert.Panics(t, func() {
		var cfg testConfig
		config.MustLoad(&cfg)
	})
}
