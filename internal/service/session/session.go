package session

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oshokin/update-packager/internal/config"
	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/logger"
	"github.com/oshokin/update-packager/internal/metrics"
	"github.com/oshokin/update-packager/internal/repository/view"
	"github.com/oshokin/update-packager/internal/service/codec"
	"github.com/oshokin/update-packager/internal/service/collector"
	"github.com/oshokin/update-packager/internal/service/packager"
	"github.com/oshokin/update-packager/internal/service/resolver"
	"github.com/oshokin/update-packager/internal/service/validator"
)

// Options contains inputs shared by every command.
type Options struct {
	// ConfigPath is the settings file; a missing file yields the defaults.
	ConfigPath string
	// ProjectPath is the project description file.
	ProjectPath string
	// AssignmentsPath is an optional deployment configuration applied after collection.
	AssignmentsPath string
	// LogLevel overrides the level from the settings when set.
	LogLevel string
	// Registerer receives the metrics. Nil disables them.
	Registerer prometheus.Registerer
	// AssemblerOptions are appended to the options derived from the settings.
	AssemblerOptions []packager.Option
}

// Session is the loaded state of one command run.
type Session struct {
	Config  *config.Config
	Project *update.Project
	Slots   []update.NodeSlot
	Files   *collector.Collector
	Metrics *metrics.Recorder

	assemblerOptions []packager.Option
}

// Open loads settings and project, resolves the view and collects the default files.
func Open(ctx context.Context, opts *Options) (*Session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if err = applyLogLevel(cfg, opts.LogLevel); err != nil {
		return nil, err
	}

	project, err := view.NewFileRepository(opts.ProjectPath).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", update.ErrConfigurationMissing, err)
	}

	slots, err := resolver.Resolve(ctx, project, cfg.Policy())
	if err != nil {
		return nil, err
	}

	s := &Session{
		Config:           cfg,
		Project:          project,
		Slots:            slots,
		Files:            collector.New(ctx, project, slots),
		assemblerOptions: opts.AssemblerOptions,
	}

	if opts.Registerer != nil {
		if s.Metrics, err = metrics.New(opts.Registerer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	if opts.AssignmentsPath != "" {
		if _, err = codec.ImportFile(ctx, opts.AssignmentsPath, s.Files); err != nil {
			return nil, err
		}
	}

	logger.InfoKV(ctx, "Project loaded", "project", project.Name, "view", project.View.Name, "nodes", len(slots))

	return s, nil
}

// Validate checks the collected files, probing application images when enabled.
func (s *Session) Validate(ctx context.Context) *validator.Report {
	var checker validator.CompatibilityChecker
	if s.Config.CompatibilityCheck {
		checker = validator.HexDeviceChecker{}
	}

	report := validator.Validate(ctx, s.Files.Nodes(), checker)

	s.Metrics.ObserveValidation(report.ValidFiles,
		len(report.MissingApplications), len(report.MissingParamSets), len(report.MissingOther),
		len(report.CompatibilityWarnings))

	return report
}

// ExportConfig writes the live file model to path.
func (s *Session) ExportConfig(ctx context.Context, path string) error {
	return codec.ExportFile(ctx, path, s.Files)
}

// ImportConfig replaces the file model of the nodes found in the document at path.
func (s *Session) ImportConfig(ctx context.Context, path string) (*codec.ImportResult, error) {
	return codec.ImportFile(ctx, path, s.Files)
}

// CreatePackage validates the files and writes the package to destination.
func (s *Session) CreatePackage(ctx context.Context, destination string) (*packager.Result, error) {
	report := s.Validate(ctx)

	opts := []packager.Option{
		packager.WithExecutorProcess(s.Config.ExecutorProcess),
		packager.WithMetrics(s.Metrics),
	}

	assembler := packager.New(append(opts, s.assemblerOptions...)...)

	return assembler.Assemble(ctx, &packager.Request{
		Project:     s.Project,
		Nodes:       s.Files.Nodes(),
		Report:      report,
		Destination: destination,
		Format:      s.Config.PackageFormat,
	})
}

// applyLogLevel sets the global level from the override or the settings.
func applyLogLevel(cfg *config.Config, override string) error {
	name := cfg.LogLevel
	if override != "" {
		name = override
	}

	level, ok := logger.ParseLogLevel(name)
	if !ok {
		return fmt.Errorf("%w: unknown log level %q", update.ErrInvalidSettings, name)
	}

	logger.SetLevel(level)

	return nil
}
