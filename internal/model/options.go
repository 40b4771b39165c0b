package model

import "time"

// Overwrite policies for store operations when the target key already exists.
const (
	OverwriteAlways = "true"
	OverwriteNever  = "false"
	OverwriteRename = "rename"
)

// KeyAuto asks the backend to derive the target key from the source.
const KeyAuto = "auto"

// Options is the recognized option set honored by every backend. Individual
// backends may read additional entries from their BackendConfig params, but
// nothing outside this set travels with a request.
type Options struct {
	// Hashes lists the content digest algorithms to compute and report,
	// e.g. "md5", "sha1", "sha256". Order is preserved in FileInfo.Hashes.
	Hashes []string `json:"hashes,omitempty"`

	// Key is the target name for store operations, or KeyAuto to derive
	// one from the source.
	Key string `json:"key,omitempty"`

	// Overwrite is the conflict policy when Key already exists. Empty
	// means OverwriteNever.
	Overwrite string `json:"overwrite,omitempty"`

	// Scope confines the operation to a namespace (subdirectory or key
	// prefix) within the backend.
	Scope string `json:"scope,omitempty"`

	// Timeout is the per-request deadline. Zero means the process-wide
	// default; negative disables the deadline.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Normalize fills unset options with process defaults. It returns a copy;
// the receiver is never mutated so requests stay immutable.
func (o Options) Normalize(defaultTimeout time.Duration) Options {
	if o.Timeout == 0 {
		o.Timeout = defaultTimeout
	}
	if o.Overwrite == "" {
		o.Overwrite = OverwriteNever
	}
	return o
}
