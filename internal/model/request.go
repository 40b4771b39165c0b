package model

// Operation tags recognized by the dispatch facade. The tag selects which
// capability method a worker invokes; backends never see requests for
// operations outside this set.
const (
	OpStore          = "store"
	OpStoreData      = "store-data"
	OpDelete         = "delete"
	OpDeleteAll      = "delete-all"
	OpDeleteScope    = "delete-scope"
	OpGetInfo        = "get-info"
	OpGetURL         = "get-url"
	OpListFiles      = "list-files"
	OpTestConnection = "test-connection"
)

// Backend kind constants. The kind selects which capability constructor
// builds the implementation for a configured backend.
const (
	KindFS   = "fs"
	KindSFTP = "sftp"
	KindS3   = "s3"
)

// BackendConfig identifies one configured storage backend. Tag is the
// routing key: it selects both the worker pool and the capability
// implementation. Params carry connection parameters and are opaque to the
// core; only the capability for Kind interprets them.
type BackendConfig struct {
	Tag    string            `json:"tag" yaml:"tag"`
	Kind   string            `json:"kind" yaml:"kind"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Source describes the data a store operation writes. Exactly one of Path
// or Data is set: Path names a local file to stream, Data carries the bytes
// inline (store-data). Name is the original file name, used when the key is
// derived automatically.
type Source struct {
	Path string `json:"path,omitempty"`
	Name string `json:"name,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// Args holds the operation-specific arguments of a request.
type Args struct {
	Key    string `json:"key,omitempty"`
	Source Source `json:"source,omitempty"`
}

// Request is the immutable payload of a job. It is set once when the job is
// created and only ever read afterwards, so it is safe to hand to workers
// without copying.
type Request struct {
	Op      string        `json:"op"`
	Config  BackendConfig `json:"config"`
	Args    Args          `json:"args"`
	Options Options       `json:"options"`
}
