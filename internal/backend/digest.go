package backend

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"

	"github.com/depotfs/depot/internal/model"
)

// Digester computes the content digests a request asked for in one pass
// over the data. Algorithms it does not recognize stay in the output as
// unavailable markers, positionally aligned with the request.
type Digester struct {
	algos  []string
	hashes []hash.Hash
}

// NewDigester creates a digester for the given algorithm names. Recognized
// names are md5, sha1 and sha256.
func NewDigester(algos []string) *Digester {
	d := &Digester{algos: algos, hashes: make([]hash.Hash, len(algos))}
	for i, a := range algos {
		switch a {
		case "md5":
			d.hashes[i] = md5.New()
		case "sha1":
			d.hashes[i] = sha1.New()
		case "sha256":
			d.hashes[i] = sha256.New()
		}
	}
	return d
}

// Writer returns a writer feeding every recognized hash, or io.Discard when
// nothing was requested, so callers can tee unconditionally.
func (d *Digester) Writer() io.Writer {
	ws := make([]io.Writer, 0, len(d.hashes))
	for _, h := range d.hashes {
		if h != nil {
			ws = append(ws, h)
		}
	}
	if len(ws) == 0 {
		return io.Discard
	}
	return io.MultiWriter(ws...)
}

// Sums returns the digest values in request order.
func (d *Digester) Sums() []model.Hash {
	if len(d.algos) == 0 {
		return nil
	}
	out := make([]model.Hash, len(d.algos))
	for i, a := range d.algos {
		out[i] = model.Hash{Algorithm: a, Value: model.HashUnavailable}
		if d.hashes[i] != nil {
			out[i].Value = hex.EncodeToString(d.hashes[i].Sum(nil))
		}
	}
	return out
}

// DigestReader computes digests for data read through r using the
// configured chunk size.
func DigestReader(r io.Reader, algos []string, chunkSize int) ([]model.Hash, int64, error) {
	d := NewDigester(algos)
	if chunkSize < 1 {
		chunkSize = DefaultSettings().ChunkSize
	}
	n, err := io.CopyBuffer(d.Writer(), r, make([]byte, chunkSize))
	if err != nil {
		return nil, n, err
	}
	return d.Sums(), n, nil
}
