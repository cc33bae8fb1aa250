package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-packager/internal/config"
	"github.com/oshokin/update-packager/internal/domain/update"
)

// TestExitCode maps wrapped error categories to exit codes.
func TestExitCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2, exitCode(fmt.Errorf("load: %w", update.ErrConfigurationMissing)))
	require.Equal(t, 3, exitCode(update.ErrNoEligibleWork))
	require.Equal(t, 4, exitCode(fmt.Errorf("assemble: %w", update.ErrMissingFile)))
	require.Equal(t, 5, exitCode(fmt.Errorf("load: %w", update.ErrInvalidSettings)))
	require.Equal(t, 1, exitCode(errors.New("boom")))
}

// TestWriteSettings persists the defaults with the level override and keeps existing values.
func TestWriteSettings(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)

	var out bytes.Buffer
	require.NoError(t, writeSettings(&out, path, "debug"))
	require.Contains(t, out.String(), path)

	saved, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", saved.LogLevel)
	require.Equal(t, config.FormatArchive, saved.PackageFormat)

	saved.PackageFormat = config.FormatDirectory
	require.NoError(t, config.Save(path, saved))
	require.NoError(t, writeSettings(&out, path, ""))

	reloaded, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.FormatDirectory, reloaded.PackageFormat)
	require.Equal(t, "debug", reloaded.LogLevel)

	err = writeSettings(&out, path, "loud")
	require.ErrorIs(t, err, update.ErrInvalidSettings)
	require.Equal(t, 5, exitCode(err))
}
