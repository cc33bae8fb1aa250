package update

import "errors"

var (
	// ErrConfigurationMissing is returned when no view data is available to resolve nodes from.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrInvalidSettings is returned when the packager settings cannot be read or are not valid.
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrNoEligibleWork is returned when no node or no file is left to deploy.
	ErrNoEligibleWork = errors.New("no eligible work")
	// ErrMissingFile is returned when a non-skipped entry does not resolve on disk.
	ErrMissingFile = errors.New("missing file")
	// ErrIO is returned when a stale artifact cannot be removed or a new one cannot be written.
	ErrIO = errors.New("artifact i/o failure")
	// ErrCodec is returned when a deployment-configuration document cannot be used.
	ErrCodec = errors.New("malformed deployment configuration")

	// ErrUnknownNode is returned when an edit references a node that is not in the model.
	ErrUnknownNode = errors.New("unknown node")
	// ErrUnknownEntry is returned when an edit references an entry that does not exist.
	ErrUnknownEntry = errors.New("unknown file entry")
	// ErrUnsupportedFile is returned when a file cannot be deployed to the target node.
	ErrUnsupportedFile = errors.New("file type not supported by node")
	// ErrRevertNotAllowed is returned when reverting an entry that has no tool-computed default.
	ErrRevertNotAllowed = errors.New("entry has no default path")
	// ErrDuplicateEntry is returned when the same file is added twice to one section.
	ErrDuplicateEntry = errors.New("file already assigned")
	// ErrKindMismatch is returned when a new path would change the kind of an existing entry.
	ErrKindMismatch = errors.New("path does not match entry kind")
	// ErrEmptyPath is returned when an edit supplies an empty path.
	ErrEmptyPath = errors.New("empty path")
)
