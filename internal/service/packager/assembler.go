package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/update-packager/internal/config"
	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/logger"
	"github.com/oshokin/update-packager/internal/metrics"
	"github.com/oshokin/update-packager/internal/service/collector"
	"github.com/oshokin/update-packager/internal/service/common"
	"github.com/oshokin/update-packager/internal/service/validator"
	"github.com/oshokin/update-packager/internal/version"
)

// Status is the outcome of a successful assembly.
type Status uint8

const (
	// StatusSuccess means the package was written without notices.
	StatusSuccess Status = iota
	// StatusSuccessWithWarnings means the package was written and some images may not suit their nodes.
	StatusSuccessWithWarnings
)

// String returns the status name.
func (s Status) String() string {
	if s == StatusSuccessWithWarnings {
		return "success_with_warnings"
	}

	return "success"
}

var (
	// ErrValidationRequired is returned when no validation report is supplied.
	ErrValidationRequired = errors.New("validation report required")
	// ErrStaleReport is returned when the report does not describe the current file model.
	ErrStaleReport = errors.New("validation report is stale")

	errExecutorRunning         = errors.New("transport executor is running")
	errDestinationHoldsSources = errors.New("destination holds package sources")
	errDestinationIsDirectory  = errors.New("archive destination is a directory")
)

// Request is the input of one assembly.
type Request struct {
	// Project supplies the project and view names. May be nil.
	Project *update.Project
	// Nodes are the collected file sets in deployment order.
	Nodes []*collector.NodeFiles
	// Report is the validation report of Nodes.
	Report *validator.Report
	// Destination is the artifact path.
	Destination string
	// Format is config.FormatArchive or config.FormatDirectory.
	Format string
}

// Result describes the written package.
type Result struct {
	Status   Status
	Warnings []string
	Manifest *Manifest
	Path     string
}

// Assembler writes update packages.
type Assembler struct {
	executorProcess string
	listProcesses   common.ProcessLister
	remove          func(path string) error
	detectActor     func() (*update.Actor, error)
	now             func() time.Time
	newID           func() string
	metrics         *metrics.Recorder
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithExecutorProcess refuses to write while the named process runs.
func WithExecutorProcess(name string) Option {
	return func(a *Assembler) {
		a.executorProcess = name
	}
}

// WithProcessLister replaces the system process list.
func WithProcessLister(list common.ProcessLister) Option {
	return func(a *Assembler) {
		a.listProcesses = list
	}
}

// WithRemover replaces the function that deletes a stale artifact.
func WithRemover(remove func(path string) error) Option {
	return func(a *Assembler) {
		a.remove = remove
	}
}

// WithActorDetector replaces the detection of the creating user.
func WithActorDetector(detect func() (*update.Actor, error)) Option {
	return func(a *Assembler) {
		a.detectActor = detect
	}
}

// WithClock replaces the creation time source.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		a.now = now
	}
}

// WithMetrics records assembly outcomes.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(a *Assembler) {
		a.metrics = recorder
	}
}

// New creates an Assembler.
func New(opts ...Option) *Assembler {
	a := &Assembler{
		remove:      os.RemoveAll,
		detectActor: common.DetectActor,
		now:         time.Now,
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Assemble writes the package described by req. Nothing is written unless
// every precondition holds.
func (a *Assembler) Assemble(ctx context.Context, req *Request) (*Result, error) {
	ctx = logger.WithKV(logger.WithName(ctx, "assembler"), "destination", req.Destination)
	started := a.now()

	result, err := a.assemble(ctx, req)
	if err != nil {
		a.metrics.PackageFailed(failureReason(err))

		return nil, err
	}

	a.metrics.PackageCreated(req.Format, result.Manifest.FileCount(), a.now().Sub(started).Seconds())

	logger.InfoKV(ctx, "Update package created",
		"nodes", len(result.Manifest.Nodes),
		"files", result.Manifest.FileCount(),
		"status", result.Status)

	return result, nil
}

func (a *Assembler) assemble(ctx context.Context, req *Request) (*Result, error) {
	if req.Report == nil {
		return nil, ErrValidationRequired
	}

	if req.Report.HasMissing() {
		return nil, fmt.Errorf("%w:\n%s", update.ErrMissingFile, req.Report.String())
	}

	nodes := effectiveNodes(req.Nodes)

	retained := 0
	for _, nf := range req.Nodes {
		retained += nf.RetainedCount()
	}

	if retained != req.Report.ValidFiles {
		return nil, fmt.Errorf("%w: report has %d files, model has %d", ErrStaleReport, req.Report.ValidFiles, retained)
	}

	if len(nodes) == 0 {
		return nil, update.ErrNoEligibleWork
	}

	if req.Destination == "" {
		return nil, fmt.Errorf("%w: destination is empty", update.ErrIO)
	}

	manifest, err := a.buildManifest(ctx, req.Project, nodes)
	if err != nil {
		return nil, err
	}

	if err = a.ensureExecutorStopped(ctx); err != nil {
		return nil, err
	}

	destination := filepath.Clean(req.Destination)

	if err = checkDestination(destination, req.Format, manifest); err != nil {
		return nil, err
	}

	if err = a.remove(destination); err != nil {
		return nil, fmt.Errorf("%w: remove previous package %s: %w", update.ErrIO, destination, err)
	}

	switch req.Format {
	case config.FormatDirectory:
		err = writeDirectory(ctx, destination, manifest)
	default:
		err = writeArchive(ctx, destination, manifest)
	}

	if err != nil {
		return nil, err
	}

	result := &Result{
		Status:   StatusSuccess,
		Manifest: manifest,
		Path:     destination,
	}

	for _, warning := range req.Report.CompatibilityWarnings {
		result.Warnings = append(result.Warnings, "may not suit its device: "+warning)
	}

	if len(result.Warnings) > 0 {
		result.Status = StatusSuccessWithWarnings
	}

	return result, nil
}

// buildManifest describes the effective nodes with dense positions.
func (a *Assembler) buildManifest(ctx context.Context, project *update.Project, nodes []*collector.NodeFiles) (*Manifest, error) {
	manifest := &Manifest{
		PackageID:     a.newID(),
		FormatVersion: ManifestFormatVersion,
		Generator:     version.Generator(),
		CreatedAt:     a.now().UTC().Truncate(time.Second),
		Nodes:         make([]ManifestNode, 0, len(nodes)),
	}

	if project != nil {
		manifest.Project = project.Name
		if project.View != nil {
			manifest.View = project.View.Name
		}
	}

	actor, err := a.detectActor()
	if err != nil {
		logger.WarnKV(ctx, "Could not detect the creating user", "error", err)
	} else {
		manifest.CreatedBy = actor
	}

	for position, nf := range nodes {
		node, nodeErr := manifestNode(ctx, position, nf)
		if nodeErr != nil {
			return nil, nodeErr
		}

		manifest.Nodes = append(manifest.Nodes, node)
	}

	return manifest, nil
}

// checkDestination refuses to replace a destination that holds package
// sources, or a directory when an archive is written.
func checkDestination(destination, format string, manifest *Manifest) error {
	root, err := filepath.Abs(destination)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %w", update.ErrIO, destination, err)
	}

	for _, node := range manifest.Nodes {
		for _, file := range node.Files {
			source, absErr := filepath.Abs(file.source)
			if absErr != nil {
				return fmt.Errorf("%w: resolve %s: %w", update.ErrIO, file.source, absErr)
			}

			if isWithin(root, source) {
				return fmt.Errorf("%w: %w: %s contains %s", update.ErrIO, errDestinationHoldsSources, destination, file.source)
			}
		}
	}

	if format == config.FormatDirectory {
		return nil
	}

	info, err := os.Lstat(destination)
	if err == nil && info.IsDir() {
		return fmt.Errorf("%w: %w: %s", update.ErrIO, errDestinationIsDirectory, destination)
	}

	return nil
}

// isWithin reports whether target is root or lies below it.
func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ensureExecutorStopped fails while the transport executor is running.
func (a *Assembler) ensureExecutorStopped(ctx context.Context) error {
	if a.executorProcess == "" {
		return nil
	}

	running, err := common.IsProcessRunning(a.listProcesses, a.executorProcess)
	if err != nil {
		logger.WarnKV(ctx, "Process list unavailable, skipping executor check", "error", err)

		return nil
	}

	if running {
		return fmt.Errorf("%w: %w: %s", update.ErrIO, errExecutorRunning, a.executorProcess)
	}

	return nil
}

// failureReason maps an assembly error to a metric label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrValidationRequired):
		return "validation_required"
	case errors.Is(err, ErrStaleReport):
		return "stale_report"
	case errors.Is(err, update.ErrNoEligibleWork):
		return "no_eligible_work"
	case errors.Is(err, update.ErrMissingFile):
		return "missing_file"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, update.ErrIO):
		return "io"
	default:
		return "other"
	}
}
