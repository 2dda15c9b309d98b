package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/banksync/internal/model"
)

func TestRoundTrip(t *testing.T) {
	cfg := Default("Test Biz", model.GroupWeek)
	cfg.Sync.MetricsFile = "metrics/banksync.prom"
	cfg.Feeds = append(cfg.Feeds, Feed{Pattern: "savings-*.json", Account: "savings", Format: "json"})

	path := filepath.Join(t.TempDir(), FileName)
	err := Save(path, cfg)
	require.NoError(t, err)

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Business.Name, got.Business.Name)
	assert.Equal(t, "week", got.Sync.Grouping)
	assert.Equal(t, model.GroupWeek, got.Grouping())
	assert.Equal(t, "info", got.Sync.LogLevel)
	assert.Equal(t, "metrics/banksync.prom", got.Sync.MetricsFile)
	assert.Equal(t, cfg.Git, got.Git)
	require.Len(t, got.Feeds, 3)
	assert.Equal(t, "savings", got.Feeds[2].Account)
}

func TestDefaults(t *testing.T) {
	cfg := Default("My Company", model.GroupMonth)

	assert.Equal(t, "My Company", cfg.Business.Name)
	assert.Equal(t, model.GroupMonth, cfg.Grouping())
	assert.True(t, cfg.Git.AutoCommit)
	assert.Equal(t, "banksync", cfg.Git.AuthorName)
	assert.Empty(t, cfg.Sync.MetricsFile)
	require.NoError(t, cfg.Validate())
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad grouping", "sync:\n  grouping: fortnightly\n", "sync.grouping"},
		{"feed without account", "feeds:\n  - pattern: '*.csv'\n    format: chase\n", "account is required"},
		{"bad pattern", "feeds:\n  - pattern: '[a'\n    account: checking\n", "bad pattern"},
		{"not yaml", "sync: [", "parsing config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEmptyGroupingDefaultsToMonth(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, model.GroupMonth, cfg.Grouping())
}

func TestFeedFor(t *testing.T) {
	cfg := Default("Biz", model.GroupMonth)
	cfg.Feeds = append([]Feed{{Pattern: "savings-*", Account: "savings", Format: "json"}}, cfg.Feeds...)

	f, ok := cfg.FeedFor("savings-2016.json")
	require.True(t, ok)
	assert.Equal(t, "savings", f.Account)

	f, ok = cfg.FeedFor("chase-jan.csv")
	require.True(t, ok)
	assert.Equal(t, "chase", f.Format)

	_, ok = cfg.FeedFor("notes.txt")
	assert.False(t, ok)
}

func TestYAMLFormat(t *testing.T) {
	cfg := Default("Test Biz", model.GroupDay)
	path := filepath.Join(t.TempDir(), FileName)
	err := Save(path, cfg)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := string(data)

	assert.Contains(t, contents, "name: Test Biz")
	assert.Contains(t, contents, "grouping: day")
	assert.Contains(t, contents, "log_level: info")
	assert.Contains(t, contents, "auto_commit: true")
	assert.NotContains(t, contents, "metrics_file")
}
