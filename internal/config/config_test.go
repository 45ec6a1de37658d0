package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/chatquiz/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Store struct {
		Driver string
		Redis  struct {
			Addrs  []string
			Prefix string
		}
	}

	Question struct {
		Retry struct {
			MaxRetries      int
			InitialInterval time.Duration
		}
	}
}

func defaults() testConfig {
	var c testConfig
	c.HTTP.Port = 8080
	c.Store.Driver = "sqlite"
	c.Store.Redis.Prefix = "chatquiz"
	c.Question.Retry.MaxRetries = 3
	c.Question.Retry.InitialInterval = time.Second
	return c
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9090
store:
  driver: redis
  redis:
    addrs: ["localhost:6379"]
question:
  retry:
    initialinterval: 250ms
`), 0o600))

	c := defaults()
	require.NoError(t, config.Load(path, &c))

	require.Equal(t, int32(9090), c.HTTP.Port)
	require.Equal(t, "redis", c.Store.Driver)
	require.Equal(t, []string{"localhost:6379"}, c.Store.Redis.Addrs)
	require.Equal(t, "chatquiz", c.Store.Redis.Prefix, "should keep defaults the file does not mention")
	require.Equal(t, 3, c.Question.Retry.MaxRetries)
	require.Equal(t, 250*time.Millisecond, c.Question.Retry.InitialInterval)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"store": {"driver": "redis"}}`), 0o600))

	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("QUESTION_RETRY_MAXRETRIES", "5")

	c := defaults()
	require.NoError(t, config.Load(path, &c))

	require.Equal(t, "postgres", c.Store.Driver)
	require.Equal(t, 5, c.Question.Retry.MaxRetries)
}

func TestLoad_WithoutFile(t *testing.T) {
	t.Setenv("HTTP_PORT", "7000")

	c := defaults()
	require.NoError(t, config.Load("", &c))

	require.Equal(t, int32(7000), c.HTTP.Port)
	require.Equal(t, "sqlite", c.Store.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	c := defaults()
	require.Error(t, config.Load(filepath.Join(t.TempDir(), "missing.yaml"), &c))
}
