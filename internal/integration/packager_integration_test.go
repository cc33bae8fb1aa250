package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/update-packager/internal/config"
	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/service/codec"
	"github.com/oshokin/update-packager/internal/service/packager"
	"github.com/oshokin/update-packager/internal/service/session"
)

const projectYAML = `name: harvester
devices:
  - type: ESX3CM
    programmable: true
    aliases: [ESX3CM_B]
  - type: DISPLAY
    file_based: true
  - type: BOOT
    legacy_flashloader: true
nodes:
  - id: left
    name: ECU left
    device: ESX3CM
    bus: CAN1
    squad: pair
    applications:
      - name: main
        programmable: true
        output: build/left.hex
  - id: right
    name: ECU right
    device: ESX3CM
    bus: CAN1
    squad: pair
    applications:
      - name: main
        programmable: true
        output: build/right.hex
  - id: display
    name: Display
    device: DISPLAY
    bus: ETH1
    applications:
      - name: ui
        programmable: true
        output: build/ui.tar
  - id: boot
    name: Bootloader
    device: BOOT
    bus: CAN2
view:
  name: field service
  positions: [2, 2, 0, 1]
  active: [true, false, true, true]
`

// TestPackager_EndToEnd loads a project, validates, round-trips the
// deployment configuration and writes an archive package.
func TestPackager_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	writeFiles(t, map[string]string{
		"project.yaml":               projectYAML,
		config.DefaultConfigFilename: "package_format: archive\ncompatibility_check: true\n",
		"build/left.hex":             hexImage("bootblock ESX3CM_B v2"),
		"build/right.hex":            hexImage("bootblock OTHER v1"),
		"build/ui.tar":               "ui bundle",
		"nvm/left.syde_psi":          "parameters",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	registry := prometheus.NewRegistry()
	opts := &session.Options{
		ConfigPath:  config.DefaultConfigFilename,
		ProjectPath: "project.yaml",
		Registerer:  registry,
	}

	s, err := session.Open(ctx, opts)
	require.NoError(t, err)

	// The squad follows its first member and the legacy node has no application.
	require.Len(t, s.Slots, 3)
	require.Equal(t, "Display", s.Slots[0].NodeName)
	require.Equal(t, "ECU left", s.Slots[1].NodeName)
	require.Equal(t, "ECU right", s.Slots[2].NodeName)

	_, err = s.Files.AddFile(ctx, "left", update.KindUnknown, "nvm/left.syde_psi")
	require.NoError(t, err)

	report := s.Validate(ctx)
	require.False(t, report.HasMissing())
	require.Equal(t, 4, report.ValidFiles)
	require.Equal(t, []string{filepath.Join(dir, "build/right.hex")}, report.CompatibilityWarnings)

	assignments := "assignments" + codec.BinaryConfigExtension
	require.NoError(t, s.ExportConfig(ctx, assignments))

	opts.AssignmentsPath = assignments
	opts.Registerer = prometheus.NewRegistry()

	reopened, err := session.Open(ctx, opts)
	require.NoError(t, err)

	destination := filepath.Join("out", "harvester"+packager.ArchiveExtension)

	result, err := reopened.CreatePackage(ctx, destination)
	require.NoError(t, err)
	require.Equal(t, packager.StatusSuccessWithWarnings, result.Status)
	require.Equal(t, 4, result.Manifest.FileCount())

	reader, err := zip.OpenReader(destination)
	require.NoError(t, err)

	defer func() {
		_ = reader.Close()
	}()

	var (
		names    = make([]string, 0, len(reader.File))
		manifest packager.Manifest
	)

	for _, file := range reader.File {
		names = append(names, file.Name)

		if file.Name != packager.ManifestFilename {
			continue
		}

		rc, openErr := file.Open()
		require.NoError(t, openErr)
		require.NoError(t, yaml.NewDecoder(rc).Decode(&manifest))
		require.NoError(t, rc.Close())
	}

	require.ElementsMatch(t, []string{
		"00_Display/ui.tar",
		"01_ECU_left/left.hex",
		"01_ECU_left/left.syde_psi",
		"02_ECU_right/right.hex",
		packager.ManifestFilename,
	}, names)

	require.Equal(t, "field service", manifest.View)
	require.Equal(t, []string{"ESX3CM", "ESX3CM_B"}, manifest.Nodes[1].AcceptedNames)

	metricsPath := filepath.Join(dir, "metrics.prom")
	require.NoError(t, prometheus.WriteToTextfile(metricsPath, registry))

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	require.Contains(t, string(metrics), "update_packager_validation_compatibility_warnings 1")
}

// writeFiles creates files relative to the working directory.
// chdir changes the working directory for the rest of the test and restores
// it on cleanup, like testing.T.Chdir on newer toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()

	previous, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(previous)) })
}

func writeFiles(t *testing.T, files map[string]string) {
	t.Helper()

	for name, contents := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, os.WriteFile(name, []byte(contents), 0o600))
	}
}

// hexImage renders text as Intel HEX data records followed by an EOF record.
func hexImage(text string) string {
	var builder strings.Builder

	data := []byte(text)

	for offset := 0; offset < len(data); offset += 16 {
		end := min(offset+16, len(data))
		record := []byte{byte(end - offset), byte(offset >> 8), byte(offset), 0}
		record = append(record, data[offset:end]...)

		var sum byte
		for _, b := range record {
			sum += b
		}

		record = append(record, -sum)
		fmt.Fprintf(&builder, ":%X\n", record)
	}

	builder.WriteString(":00000001FF\n")

	return builder.String()
}
