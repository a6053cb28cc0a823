package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigManager_DefaultConfig(t *testing.T) {
	cm := NewConfigManagerWithDir(t.TempDir())

	cfg, err := cm.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultAPIURL, cfg.API())
	assert.Equal(t, InstallModeSymlink, cfg.Mode())
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeoutDuration())
	assert.Equal(t, DefaultCloneTimeout, cfg.CloneTimeoutDuration())
	assert.False(t, cfg.IncludeInternal)
}

func TestConfigManager_SaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	cm := NewConfigManagerWithDir(dir)

	cfg := &Config{
		APIURL:        "https://api.example.com/",
		DefaultAgents: []string{"cursor", "claude-code"},
		InstallMode:   InstallModeCopy,
		HTTPTimeout:   "5s",
		CloneTimeout:  "2m",
	}
	require.NoError(t, cm.Save(cfg))
	_, err := os.Stat(cm.ConfigPath())
	require.NoError(t, err)
	_, err = os.Stat(cm.ConfigPath() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	loaded, err := cm.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, "https://api.example.com", loaded.API())
	assert.Equal(t, InstallModeCopy, loaded.Mode())
	assert.Equal(t, 5*time.Second, loaded.HTTPTimeoutDuration())
	assert.Equal(t, 2*time.Minute, loaded.CloneTimeoutDuration())
}

func TestConfigManager_Invalid(t *testing.T) {
	dir := t.TempDir()
	cm := NewConfigManagerWithDir(dir)

	require.NoError(t, os.WriteFile(cm.ConfigPath(), []byte("api_url = [unterminated"), 0o644))
	_, err := cm.Load()
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrConfigParse))

	require.NoError(t, os.WriteFile(cm.ConfigPath(), []byte(`install_mode = "hardlink"`), 0o644))
	_, err = cm.Load()
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrConfigParse))
}

func TestConfig_ApplyEnv(t *testing.T) {
	env := map[string]string{
		"PLAYBOOKS_API_URL":        "https://legacy.example.com",
		"RETURNMYTIME_SKILLS_REPO": "./skills",
		"INSTALL_INTERNAL_SKILLS":  "TRUE",
	}
	cfg := &Config{APIURL: "https://file.example.com"}
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "https://legacy.example.com", cfg.APIURL)
	assert.Equal(t, "./skills", cfg.SkillsRepo)
	assert.True(t, cfg.IncludeInternal)

	env["RETURNMYTIME_API_URL"] = "https://new.example.com"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "https://new.example.com", cfg.APIURL)
}

func TestConfig_LocalSkillsRepo(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		repo string
		want string
	}{
		{"", ""},
		{"https://github.com/acme/skills", ""},
		{"git@github.com:acme/skills.git", ""},
		{filepath.Join(dir, "missing"), ""},
		{dir, dir},
	}
	for _, tt := range tests {
		cfg := &Config{SkillsRepo: tt.repo}
		assert.Equal(t, tt.want, cfg.LocalSkillsRepo(), tt.repo)
	}
}
