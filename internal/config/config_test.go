package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().StoreRateLimit, cfg.StoreRateLimit)
}

func TestLoad_OverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_regions: ["US"]
persistence:
  mode: remote
  redis_addr: "localhost:6379"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"US"}, cfg.DefaultRegions)
	assert.Equal(t, "remote", cfg.Persistence.Mode)
	assert.Equal(t, "localhost:6379", cfg.Persistence.RedisAddr)
}

func TestValidate_RejectsUnknownDefaultRegion(t *testing.T) {
	cfg := Default()
	cfg.DefaultRegions = []string{"XX"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsAutoAcceptBelowCandidate(t *testing.T) {
	cfg := Default()
	cfg.Resolver.AutoAcceptThreshold = 10
	cfg.Resolver.CandidateThreshold = 60
	assert.Error(t, cfg.Validate())
}
