package view

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/update-packager/internal/domain/update"
)

// Repository defines how the packager obtains the project context.
type Repository interface {
	Load(ctx context.Context) (*update.Project, error)
}

// FileRepository reads the project description from a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the project file.
	path string
}

var (
	// ErrNotFound is returned when the project file does not exist.
	ErrNotFound = errors.New("project not found")
	// errDuplicateDevice is returned when a device type is declared twice.
	errDuplicateDevice = errors.New("duplicate device type")
	// errDuplicateNode is returned when a node id is declared twice.
	errDuplicateNode = errors.New("duplicate node id")
	// errNodeIDRequired is returned when a node has no id.
	errNodeIDRequired = errors.New("node id must be provided")
)

// projectFile is the on-disk layout of a project.
type projectFile struct {
	Name    string       `yaml:"name"`
	Devices []deviceFile `yaml:"devices"`
	Nodes   []nodeFile   `yaml:"nodes"`
	View    *viewFile    `yaml:"view"`
}

type deviceFile struct {
	Type              string   `yaml:"type"`
	Programmable      bool     `yaml:"programmable"`
	FileBased         bool     `yaml:"file_based"`
	LegacyFlashloader bool     `yaml:"legacy_flashloader"`
	Aliases           []string `yaml:"aliases"`
}

type nodeFile struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Device       string            `yaml:"device"`
	Bus          string            `yaml:"bus"`
	Squad        string            `yaml:"squad"`
	Applications []applicationFile `yaml:"applications"`
}

type applicationFile struct {
	Name         string `yaml:"name"`
	Programmable bool   `yaml:"programmable"`
	Output       string `yaml:"output"`
}

type viewFile struct {
	Name      string   `yaml:"name"`
	Positions []uint32 `yaml:"positions"`
	Active    []bool   `yaml:"active"`
}

// NewFileRepository creates a repository reading YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the project from disk. Relative paths inside the project resolve
// against the directory holding the project file.
func (r *FileRepository) Load(_ context.Context) (*update.Project, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read project file: %w", err)
	}

	var file projectFile
	if err = yaml.Unmarshal(contents, &file); err != nil {
		return nil, fmt.Errorf("decode project file: %w", err)
	}

	baseDir, err := filepath.Abs(filepath.Dir(r.path))
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}

	return toProject(&file, baseDir)
}

// toProject converts the file layout into the domain project.
func toProject(file *projectFile, baseDir string) (*update.Project, error) {
	project := &update.Project{
		Name:    file.Name,
		BaseDir: baseDir,
		Devices: make(map[string]update.Device, len(file.Devices)),
		Nodes:   make([]update.Node, 0, len(file.Nodes)),
	}

	for _, device := range file.Devices {
		if _, exists := project.Devices[device.Type]; exists {
			return nil, fmt.Errorf("%s: %w", device.Type, errDuplicateDevice)
		}

		project.Devices[device.Type] = update.Device{
			Type: device.Type,
			Capabilities: update.Capabilities{
				Programmable:      device.Programmable,
				FileBased:         device.FileBased,
				LegacyFlashloader: device.LegacyFlashloader,
				Aliases:           device.Aliases,
			},
		}
	}

	seen := make(map[string]struct{}, len(file.Nodes))

	for _, node := range file.Nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("node %q: %w", node.Name, errNodeIDRequired)
		}

		if _, exists := seen[node.ID]; exists {
			return nil, fmt.Errorf("%s: %w", node.ID, errDuplicateNode)
		}

		seen[node.ID] = struct{}{}

		name := node.Name
		if name == "" {
			name = node.ID
		}

		applications := make([]update.ApplicationUnit, 0, len(node.Applications))
		for _, app := range node.Applications {
			applications = append(applications, update.ApplicationUnit{
				Name:         app.Name,
				Programmable: app.Programmable,
				OutputPath:   app.Output,
			})
		}

		project.Nodes = append(project.Nodes, update.Node{
			ID:           node.ID,
			Name:         name,
			DeviceType:   node.Device,
			Bus:          node.Bus,
			Squad:        node.Squad,
			Applications: applications,
		})
	}

	if file.View != nil {
		project.View = &update.View{
			Name:      file.View.Name,
			Positions: file.View.Positions,
			Active:    file.View.Active,
		}
	}

	return project, nil
}
