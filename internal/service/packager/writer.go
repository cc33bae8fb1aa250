package packager

import (
	"bytes"
	"context"
	"crypto"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/logger"
)

const (
	// ArchiveExtension is the conventional extension of archive packages.
	ArchiveExtension = ".syde_sup"

	// DefaultFileMode is used for written package files.
	DefaultFileMode os.FileMode = 0o644
	// DefaultDirMode is used for written package folders.
	DefaultDirMode os.FileMode = 0o755
)

// writeDirectory stages the tree next to destination and renames it into place.
func writeDirectory(ctx context.Context, destination string, manifest *Manifest) error {
	parent := filepath.Dir(destination)
	if err := os.MkdirAll(parent, DefaultDirMode); err != nil {
		return fmt.Errorf("%w: create %s: %w", update.ErrIO, parent, err)
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(destination)+".*")
	if err != nil {
		return fmt.Errorf("%w: create staging folder: %w", update.ErrIO, err)
	}

	defer func() {
		_ = os.RemoveAll(staging)
	}()

	for _, node := range manifest.Nodes {
		folder := filepath.Join(staging, node.Folder)
		if err = os.Mkdir(folder, DefaultDirMode); err != nil {
			return fmt.Errorf("%w: create %s: %w", update.ErrIO, node.Folder, err)
		}

		for _, file := range node.Files {
			if err = ctx.Err(); err != nil {
				return err
			}

			if err = copyFile(file.source, filepath.Join(folder, file.Name)); err != nil {
				return err
			}
		}

		logger.DebugKV(ctx, "Node folder written", "folder", node.Folder, "files", len(node.Files))
	}

	contents, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %w", update.ErrIO, err)
	}

	if err = os.WriteFile(filepath.Join(staging, ManifestFilename), contents, DefaultFileMode); err != nil {
		return fmt.Errorf("%w: write manifest: %w", update.ErrIO, err)
	}

	if err = os.Chmod(staging, DefaultDirMode); err != nil {
		return fmt.Errorf("%w: chmod staging folder: %w", update.ErrIO, err)
	}

	if err = os.Rename(staging, destination); err != nil {
		return fmt.Errorf("%w: move package into place: %w", update.ErrIO, err)
	}

	return nil
}

// copyFile copies one source file into the package.
func copyFile(source, target string) error {
	in, err := os.Open(filepath.Clean(source))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", update.ErrMissingFile, source, err)
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, DefaultFileMode)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", update.ErrIO, target, err)
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("%w: copy %s: %w", update.ErrIO, source, err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", update.ErrIO, target, err)
	}

	return nil
}

// writeArchive builds the ZIP archive in memory and commits it with checksum verification.
func writeArchive(ctx context.Context, destination string, manifest *Manifest) error {
	data, err := buildArchive(ctx, manifest)
	if err != nil {
		return err
	}

	hasher := DefaultChecksumFunction.New()
	_, _ = hasher.Write(data)

	return commitArchive(destination, data, hasher.Sum(nil))
}

// buildArchive writes node folders and the manifest into a ZIP archive.
func buildArchive(ctx context.Context, manifest *Manifest) ([]byte, error) {
	var buf bytes.Buffer

	archive := zip.NewWriter(&buf)

	for _, node := range manifest.Nodes {
		for _, file := range node.Files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			if err := addArchiveFile(archive, path.Join(node.Folder, file.Name), file.source, manifest); err != nil {
				return nil, err
			}
		}
	}

	contents, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: encode manifest: %w", update.ErrIO, err)
	}

	w, err := archive.CreateHeader(&zip.FileHeader{
		Name:     ManifestFilename,
		Method:   zip.Deflate,
		Modified: manifest.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: add manifest: %w", update.ErrIO, err)
	}

	if _, err = w.Write(contents); err != nil {
		return nil, fmt.Errorf("%w: write manifest: %w", update.ErrIO, err)
	}

	if err = archive.Close(); err != nil {
		return nil, fmt.Errorf("%w: finish archive: %w", update.ErrIO, err)
	}

	return buf.Bytes(), nil
}

// addArchiveFile copies one source file into the archive.
func addArchiveFile(archive *zip.Writer, name, source string, manifest *Manifest) error {
	in, err := os.Open(filepath.Clean(source))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", update.ErrMissingFile, source, err)
	}

	defer func() {
		_ = in.Close()
	}()

	w, err := archive.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: manifest.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("%w: add %s: %w", update.ErrIO, name, err)
	}

	if _, err = io.Copy(w, in); err != nil {
		return fmt.Errorf("%w: copy %s: %w", update.ErrIO, source, err)
	}

	return nil
}

// commitArchive replaces destination with data. The target has to exist for
// the update to apply, so an empty placeholder is created first and removed
// again if the commit fails.
func commitArchive(destination string, data, checksum []byte) error {
	if err := os.MkdirAll(filepath.Dir(destination), DefaultDirMode); err != nil {
		return fmt.Errorf("%w: create %s: %w", update.ErrIO, filepath.Dir(destination), err)
	}

	placeholder, err := os.OpenFile(destination, os.O_CREATE|os.O_EXCL|os.O_WRONLY, DefaultFileMode)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", update.ErrIO, destination, err)
	}

	if err = placeholder.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", update.ErrIO, destination, err)
	}

	err = goupdate.Apply(bytes.NewReader(data), goupdate.Options{
		TargetPath: destination,
		TargetMode: DefaultFileMode,
		Checksum:   checksum,
		Hash:       crypto.SHA512,
	})
	if err != nil {
		_ = os.Remove(destination)

		return fmt.Errorf("%w: commit archive: %w", update.ErrIO, err)
	}

	return nil
}
