package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":12015", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "/jthub:wrs", cfg.Store.Root)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, []string{"localhost:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "https://github.com", cfg.Git.Server)
	assert.Equal(t, time.Minute, cfg.AMS.CacheTTL)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: etcd
  root: /custom
  timeout: 2s
etcd:
  endpoints: ["etcd-0:2379", "etcd-1:2379"]
ams:
  url: http://ams.local/api/
auth:
  enable: true
  issuer: https://issuer.example.com/
`), 0o644))
	t.Setenv("WRS_STORE_ROOT", "/from-env")
	t.Setenv("WRS_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, BackendEtcd, cfg.Store.Backend)
	assert.Equal(t, "/from-env", cfg.Store.Root)
	assert.Equal(t, 2*time.Second, cfg.Store.Timeout)
	assert.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, "http://ams.local/api", cfg.AMS.URL)
	assert.Equal(t, "https://issuer.example.com", cfg.Auth.Issuer)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Store.Backend = BackendMemory
		cfg.Store.Root = "/jthub:wrs"
		cfg.AMS.URL = "http://ams"
		return cfg
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Store.Backend = "zookeeper"
	assert.ErrorContains(t, cfg.Validate(), "unknown store.backend")

	cfg = valid()
	cfg.Store.Backend = BackendEtcd
	assert.ErrorContains(t, cfg.Validate(), "etcd.endpoints")

	cfg = valid()
	cfg.Store.Backend = BackendRedis
	assert.ErrorContains(t, cfg.Validate(), "redis.addr")

	cfg = valid()
	cfg.Auth.Enable = true
	assert.ErrorContains(t, cfg.Validate(), "auth.issuer")
}

func TestDSN(t *testing.T) {
	cfg := &Config{}
	cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode = "db", 5432, "u", "p", "wrs", "disable"
	assert.Equal(t, "postgres://u:p@db:5432/wrs?sslmode=disable", cfg.DSN())
}

func TestWarnings(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	warnings := cfg.Warnings()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "store.backend is memory")
	assert.Contains(t, warnings[1], "auth is disabled")

	cfg.Store.Backend = BackendEtcd
	cfg.Auth.Enable = true
	assert.Empty(t, cfg.Warnings())
}
