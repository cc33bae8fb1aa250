package codec

import (
	"path/filepath"
	"strings"
)

// Format selects the document encoding.
type Format int

const (
	// FormatYAML is the human-readable document format.
	FormatYAML Format = iota
	// FormatCBOR is the binary document format.
	FormatCBOR
)

const (
	// DocumentVersion is written into every document and required on import.
	DocumentVersion = 1

	// ConfigExtension is the conventional extension of YAML documents.
	ConfigExtension = ".syde_up"
	// BinaryConfigExtension is the conventional extension of CBOR documents.
	BinaryConfigExtension = ".syde_upb"
)

// Document is the serialized file-assignment state of all nodes.
type Document struct {
	Version int            `yaml:"version" cbor:"version"`
	Nodes   []NodeDocument `yaml:"nodes" cbor:"nodes"`
}

// NodeDocument holds the sections of one node.
type NodeDocument struct {
	ID       string            `yaml:"id" cbor:"id"`
	Name     string            `yaml:"name" cbor:"name"`
	Sections []SectionDocument `yaml:"sections" cbor:"sections"`
}

// SectionDocument holds the entries of one kind.
type SectionDocument struct {
	Kind  string         `yaml:"kind" cbor:"kind"`
	Files []FileDocument `yaml:"files" cbor:"files"`
}

// FileDocument is one serialized entry.
type FileDocument struct {
	Path        string `yaml:"path" cbor:"path"`
	Skip        bool   `yaml:"skip" cbor:"skip"`
	Default     bool   `yaml:"default" cbor:"default"`
	Application string `yaml:"application,omitempty" cbor:"application,omitempty"`
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case BinaryConfigExtension, ".cbor":
		return FormatCBOR
	default:
		return FormatYAML
	}
}

// String returns the format name.
func (f Format) String() string {
	if f == FormatCBOR {
		return "cbor"
	}

	return "yaml"
}
