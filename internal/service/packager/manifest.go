package packager

import (
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/service/collector"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// ManifestFilename is the name of the manifest at the package root.
	ManifestFilename = "update-manifest.yaml"

	// ManifestFormatVersion is incremented on incompatible manifest changes.
	ManifestFormatVersion = 1

	// DefaultChecksumFunction is used to calculate file and archive hashes.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512
)

var (
	errHashUnavailable = errors.New("hash function unavailable")
	errNameCollision   = errors.New("two files share a name in one node folder")

	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// Manifest describes the package for the transport executor.
type Manifest struct {
	PackageID     string         `yaml:"package_id"`
	FormatVersion int            `yaml:"format_version"`
	Generator     string         `yaml:"generator"`
	CreatedAt     time.Time      `yaml:"created_at"`
	CreatedBy     *update.Actor  `yaml:"created_by,omitempty"`
	Project       string         `yaml:"project"`
	View          string         `yaml:"view"`
	Nodes         []ManifestNode `yaml:"nodes"`
}

// ManifestNode is one node in deployment order.
type ManifestNode struct {
	Position      int            `yaml:"position"`
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	DeviceType    string         `yaml:"device_type"`
	AcceptedNames []string       `yaml:"accepted_names"`
	Bus           string         `yaml:"bus"`
	Folder        string         `yaml:"folder"`
	Files         []ManifestFile `yaml:"files"`
}

// ManifestFile is one file of a node.
type ManifestFile struct {
	Kind     string `yaml:"kind"`
	Name     string `yaml:"name"`
	Size     int64  `yaml:"size"`
	Checksum string `yaml:"checksum"`

	// source is the resolved path the file is copied from.
	source string
}

// FileCount returns the number of files over all nodes.
func (m *Manifest) FileCount() int {
	count := 0
	for _, node := range m.Nodes {
		count += len(node.Files)
	}

	return count
}

// effectiveNodes keeps the nodes that retain at least one non-skipped file.
func effectiveNodes(nodes []*collector.NodeFiles) []*collector.NodeFiles {
	result := make([]*collector.NodeFiles, 0, len(nodes))

	for _, nf := range nodes {
		if nf.RetainedCount() > 0 {
			result = append(result, nf)
		}
	}

	return result
}

// manifestNode describes one effective node at its dense position.
func manifestNode(ctx context.Context, position int, nf *collector.NodeFiles) (ManifestNode, error) {
	node := ManifestNode{
		Position:      position,
		ID:            nf.Slot.NodeID,
		Name:          nf.Slot.NodeName,
		DeviceType:    nf.Slot.Device.Type,
		AcceptedNames: nf.Slot.Device.AcceptedNames(),
		Bus:           nf.Slot.Bus,
		Folder:        fmt.Sprintf("%02d_%s", position, safeName(nf.Slot.NodeName)),
	}

	names := make(map[string]string, nf.RetainedCount())

	for _, kind := range update.Kinds {
		for _, entry := range nf.Retained(kind) {
			if err := ctx.Err(); err != nil {
				return ManifestNode{}, err
			}

			name := safeName(filepath.Base(entry.Resolved))
			if previous, exists := names[name]; exists {
				return ManifestNode{}, fmt.Errorf("%s: %s and %s: %w", node.Name, previous, entry.Resolved, errNameCollision)
			}

			names[name] = entry.Resolved

			file, err := describeFile(kind, name, entry.Resolved)
			if err != nil {
				return ManifestNode{}, err
			}

			node.Files = append(node.Files, file)
		}
	}

	return node, nil
}

// describeFile computes size and checksum of one source file.
func describeFile(kind update.FileKind, name, source string) (ManifestFile, error) {
	info, err := os.Stat(source)
	if err != nil {
		return ManifestFile{}, fmt.Errorf("%w: %s: %w", update.ErrMissingFile, source, err)
	}

	checksum, err := GetFileChecksum(source)
	if err != nil {
		return ManifestFile{}, fmt.Errorf("%w: checksum %s: %w", update.ErrIO, source, err)
	}

	return ManifestFile{
		Kind:     kind.String(),
		Name:     name,
		Size:     info.Size(),
		Checksum: base64.StdEncoding.EncodeToString(checksum),
		source:   source,
	}, nil
}

// GetFileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func GetFileChecksum(path string) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := DefaultChecksumFunction.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// safeName replaces characters that are unsafe in folder and archive names.
func safeName(name string) string {
	cleaned := unsafeNameChars.ReplaceAllString(name, "_")
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "_"
	}

	return cleaned
}
