package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/logger"
	"github.com/oshokin/update-packager/internal/service/collector"
)

// ImportResult describes what an import changed.
type ImportResult struct {
	// UpdatedNodes are the ids of nodes whose assignments were replaced.
	UpdatedNodes []string
	// IgnoredNodes are document nodes without a match in the live model.
	IgnoredNodes []string
}

// DefaultFileMode is used for written documents.
const DefaultFileMode os.FileMode = 0o644

var (
	errUnsupportedVersion = errors.New("unsupported document version")
	errUnknownKind        = errors.New("unknown section kind")
)

//nolint:gochecknoglobals // Encoding modes are immutable after creation.
var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

// Build converts the live model into a document, walking nodes, sections and entries in model order.
func Build(c *collector.Collector) *Document {
	doc := &Document{
		Version: DocumentVersion,
		Nodes:   make([]NodeDocument, 0, len(c.Nodes())),
	}

	for _, nf := range c.Nodes() {
		node := NodeDocument{
			ID:   nf.Slot.NodeID,
			Name: nf.Slot.NodeName,
		}

		for _, group := range nf.Groups() {
			section := SectionDocument{
				Kind:  group.Kind.String(),
				Files: make([]FileDocument, 0, len(group.Entries)),
			}

			for _, entry := range group.Entries {
				section.Files = append(section.Files, FileDocument{
					Path:        entry.Path,
					Skip:        entry.Skip,
					Default:     entry.Origin == update.OriginDefault,
					Application: entry.Application,
				})
			}

			node.Sections = append(node.Sections, section)
		}

		doc.Nodes = append(doc.Nodes, node)
	}

	return doc
}

// Export writes the live model to w.
func Export(ctx context.Context, w io.Writer, c *collector.Collector, format Format) error {
	data, err := Marshal(Build(c), format)
	if err != nil {
		return err
	}

	if _, err = w.Write(data); err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	logger.InfoKV(ctx, "Deployment configuration exported", "nodes", len(c.Nodes()), "format", format)

	return nil
}

// ExportFile writes the live model to path. The file is replaced only after
// the whole document has been written.
func ExportFile(ctx context.Context, path string, c *collector.Collector) error {
	var buf bytes.Buffer
	if err := Export(ctx, &buf, c, FormatFromPath(path)); err != nil {
		return err
	}

	path = filepath.Clean(path)

	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: create document: %w", update.ErrIO, err)
	}

	defer func() {
		_ = os.Remove(temporary.Name())
	}()

	if _, err = temporary.Write(buf.Bytes()); err != nil {
		_ = temporary.Close()

		return fmt.Errorf("%w: write document: %w", update.ErrIO, err)
	}

	if err = temporary.Close(); err != nil {
		return fmt.Errorf("%w: close document: %w", update.ErrIO, err)
	}

	if err = os.Chmod(temporary.Name(), DefaultFileMode); err != nil {
		return fmt.Errorf("%w: chmod document: %w", update.ErrIO, err)
	}

	if err = os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("%w: replace document: %w", update.ErrIO, err)
	}

	return nil
}

// Import reads a document from r and replaces the assignments of the matching
// nodes. Nodes are matched by id, then by name. On any error the live model
// is left unmodified.
func Import(ctx context.Context, r io.Reader, c *collector.Collector, format Format) (*ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read document: %w", update.ErrCodec, err)
	}

	doc, err := Unmarshal(data, format)
	if err != nil {
		return nil, err
	}

	assignments, result, err := plan(c, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", update.ErrCodec, err)
	}

	if err = c.ReplaceAssignments(ctx, assignments); err != nil {
		return nil, fmt.Errorf("%w: %w", update.ErrCodec, err)
	}

	for _, ignored := range result.IgnoredNodes {
		logger.WarnKV(ctx, "Document node has no match in the project, ignoring", "node", ignored)
	}

	logger.InfoKV(ctx, "Deployment configuration imported",
		"updated", len(result.UpdatedNodes), "ignored", len(result.IgnoredNodes))

	return result, nil
}

// ImportFile reads the document at path, picking the format from the extension.
func ImportFile(ctx context.Context, path string, c *collector.Collector) (*ImportResult, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open document: %w", update.ErrCodec, err)
	}

	defer func() {
		_ = file.Close()
	}()

	return Import(ctx, file, c, FormatFromPath(path))
}

// Marshal encodes a document in the given format.
func Marshal(doc *Document, format Format) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatCBOR:
		data, err = encMode.Marshal(doc)
	default:
		data, err = yaml.Marshal(doc)
	}

	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	return data, nil
}

// Unmarshal decodes and version-checks a document.
func Unmarshal(data []byte, format Format) (*Document, error) {
	var doc Document

	switch format {
	case FormatCBOR:
		if err := decMode.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", update.ErrCodec, err)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)

		if err := decoder.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %w", update.ErrCodec, err)
		}
	}

	if doc.Version != DocumentVersion {
		return nil, fmt.Errorf("%w: %w: %d", update.ErrCodec, errUnsupportedVersion, doc.Version)
	}

	return &doc, nil
}

// plan maps document nodes onto live nodes and converts their sections.
func plan(c *collector.Collector, doc *Document) ([]collector.Assignment, *ImportResult, error) {
	byName := make(map[string]string, len(c.Nodes()))
	for _, nf := range c.Nodes() {
		byName[nf.Slot.NodeName] = nf.Slot.NodeID
	}

	result := new(ImportResult)
	assignments := make([]collector.Assignment, 0, len(doc.Nodes))

	for _, node := range doc.Nodes {
		nodeID, matched := match(c, byName, node)
		if !matched {
			result.IgnoredNodes = append(result.IgnoredNodes, nodeLabel(node))
			continue
		}

		groups, err := toGroups(node.Sections)
		if err != nil {
			return nil, nil, fmt.Errorf("node %s: %w", nodeLabel(node), err)
		}

		assignments = append(assignments, collector.Assignment{NodeID: nodeID, Groups: groups})
		result.UpdatedNodes = append(result.UpdatedNodes, nodeID)
	}

	return assignments, result, nil
}

// match finds the live node for a document node.
func match(c *collector.Collector, byName map[string]string, node NodeDocument) (string, bool) {
	if node.ID != "" {
		if _, err := c.Node(node.ID); err == nil {
			return node.ID, true
		}
	}

	nodeID, ok := byName[node.Name]

	return nodeID, ok && node.Name != ""
}

// toGroups converts serialized sections into domain groups.
func toGroups(sections []SectionDocument) ([]*update.SectionGroup, error) {
	groups := make([]*update.SectionGroup, 0, len(sections))

	for _, section := range sections {
		kind, ok := update.ParseFileKind(section.Kind)
		if !ok {
			return nil, fmt.Errorf("%q: %w", section.Kind, errUnknownKind)
		}

		group := &update.SectionGroup{
			Kind:    kind,
			Entries: make([]*update.FileEntry, 0, len(section.Files)),
		}

		for _, file := range section.Files {
			origin := update.OriginCustom
			if file.Default {
				origin = update.OriginDefault
			}

			group.Entries = append(group.Entries, &update.FileEntry{
				Kind:        kind,
				Path:        file.Path,
				Origin:      origin,
				Skip:        file.Skip,
				Application: file.Application,
			})
		}

		groups = append(groups, group)
	}

	return groups, nil
}

// nodeLabel names a document node for messages.
func nodeLabel(node NodeDocument) string {
	if node.Name != "" {
		return node.Name
	}

	return node.ID
}

func mustEncMode() cbor.EncMode {
	mode, err := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("create document CBOR encoder mode: %v", err))
	}

	return mode
}

func mustDecMode() cbor.DecMode {
	mode, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("create document CBOR decoder mode: %v", err))
	}

	return mode
}
