package update

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileKind identifies the section a file entry belongs to.
type FileKind int

const (
	// KindUnknown is the zero value and never assigned to an entry.
	KindUnknown FileKind = iota
	// KindApplicationImage is a firmware or application image built for one data block.
	KindApplicationImage
	// KindParamSetImage is an NVM parameter-set image.
	KindParamSetImage
	// KindGenericFile is an arbitrary named file for file-based nodes.
	KindGenericFile
	// KindCertificateFile is a security certificate.
	KindCertificateFile
)

const (
	// ParamSetExtension marks parameter-set images.
	ParamSetExtension = ".syde_psi"
	// CertificateExtension marks certificate files.
	CertificateExtension = ".pem"
)

// Kinds lists every assignable kind in section order.
var Kinds = []FileKind{ //nolint:gochecknoglobals // Read-only section order.
	KindApplicationImage,
	KindParamSetImage,
	KindCertificateFile,
	KindGenericFile,
}

// String returns the stable name used in documents and logs.
func (k FileKind) String() string {
	switch k {
	case KindApplicationImage:
		return "application_image"
	case KindParamSetImage:
		return "param_set_image"
	case KindGenericFile:
		return "generic_file"
	case KindCertificateFile:
		return "certificate_file"
	default:
		return "unknown"
	}
}

// ParseFileKind converts a stable name back into a FileKind.
func ParseFileKind(s string) (FileKind, bool) {
	for _, kind := range Kinds {
		if kind.String() == s {
			return kind, true
		}
	}

	return KindUnknown, false
}

// Origin tells whether an entry path was computed by the build tool or chosen by the user.
type Origin int

const (
	// OriginCustom is a user-supplied path.
	OriginCustom Origin = iota
	// OriginDefault is the path computed by the build tool.
	OriginDefault
)

// Classify decides the kind of a newly added file from its extension and the
// target capabilities. It never looks at the file contents.
func Classify(path string, caps Capabilities) (FileKind, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ParamSetExtension:
		if !caps.AcceptsStructuredFiles() {
			return KindUnknown, fmt.Errorf("%s: parameter sets: %w", path, ErrUnsupportedFile)
		}

		return KindParamSetImage, nil
	case CertificateExtension:
		if !caps.AcceptsStructuredFiles() {
			return KindUnknown, fmt.Errorf("%s: certificates: %w", path, ErrUnsupportedFile)
		}

		return KindCertificateFile, nil
	}

	if caps.FileBased {
		return KindGenericFile, nil
	}

	return KindUnknown, fmt.Errorf("%s: %w", path, ErrUnsupportedFile)
}

// Accepts reports whether an entry of the given kind may exist for a node with these capabilities.
func Accepts(kind FileKind, caps Capabilities) bool {
	switch kind {
	case KindApplicationImage:
		return true
	case KindParamSetImage, KindCertificateFile:
		return caps.AcceptsStructuredFiles()
	case KindGenericFile:
		return caps.FileBased
	default:
		return false
	}
}
