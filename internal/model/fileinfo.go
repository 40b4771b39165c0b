package model

import "time"

// HashUnavailable marks a requested digest the backend could not compute,
// for example an algorithm it does not recognize. It keeps FileInfo.Hashes
// positionally aligned with Options.Hashes.
const HashUnavailable = "unavailable"

// Hash pairs a digest algorithm with its hex-encoded value.
type Hash struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// FileInfo describes one stored file. Backend echoes the configuration tag
// the file lives under. URL is empty when the backend cannot produce one.
type FileInfo struct {
	Key      string    `json:"key"`
	Backend  string    `json:"backend"`
	Size     int64     `json:"size"`
	Hashes   []Hash    `json:"hashes,omitempty"`
	Modified time.Time `json:"modified"`
	URL      string    `json:"url,omitempty"`
}
