package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mdlgrade/internal/config"
	"github.com/noah-isme/mdlgrade/internal/store"
)

func initTree(t *testing.T, cfg config.Config) string {
	t.Helper()

	root := t.TempDir()
	_, err := store.Open(root)
	require.NoError(t, err)
	require.NoError(t, config.Write(root, cfg))
	return root
}

func validConfig() config.Config {
	return config.Config{
		ServiceURL: "https://moodle.example.edu",
		Token:      "s3cret",
		UserID:     7,
		CourseIDs:  []int{3, 4},
	}
}

func TestLoadRoundTrip(t *testing.T) {
	root := initTree(t, validConfig())

	cfg, err := config.Load(root)
	require.NoError(t, err)
	require.Equal(t, "https://moodle.example.edu", cfg.ServiceURL)
	require.Equal(t, "s3cret", cfg.Token)
	require.Equal(t, 7, cfg.UserID)
	require.Equal(t, []int{3, 4}, cfg.CourseIDs)

	// Tunables fall back to their defaults.
	require.Equal(t, 10, cfg.Workers)
	require.Equal(t, 60*time.Second, cfg.TaskTimeout)
}

func TestLoadMissingConfig(t *testing.T) {
	root := t.TempDir()
	_, err := store.Open(root)
	require.NoError(t, err)

	_, err = config.Load(root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "run init first")
}

func TestLoadRejectsInvalidDocument(t *testing.T) {
	cfg := validConfig()
	cfg.ServiceURL = "not a url"
	root := initTree(t, cfg)

	_, err := config.Load(root)
	require.Error(t, err)
}

func TestLoadRejectsEmptyCourses(t *testing.T) {
	cfg := validConfig()
	cfg.CourseIDs = nil
	root := initTree(t, cfg)

	_, err := config.Load(root)
	require.Error(t, err)
}

func TestLoadCorruptDocumentIsFatal(t *testing.T) {
	root := t.TempDir()
	_, err := store.Open(root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.ConfigPath(root), []byte("{nope"), 0o600))

	_, err = config.Load(root)
	require.Error(t, err)
}

func TestEnvironmentOverridesWorkers(t *testing.T) {
	root := initTree(t, validConfig())
	t.Setenv("MDL_WORKERS", "3")

	cfg, err := config.Load(root)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Workers)
}
