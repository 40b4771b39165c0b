package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/depotfs/depot/internal/model"
)

// OpenSource returns a reader over a store request's data along with its
// size when known (-1 for unknown, which streaming uploads accept).
func OpenSource(src model.Source) (io.ReadCloser, int64, error) {
	if src.Path != "" {
		f, err := os.Open(src.Path)
		if err != nil {
			return nil, 0, fmt.Errorf("open source %q: %w", src.Path, err)
		}
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("stat source %q: %w", src.Path, err)
		}
		return f, st.Size(), nil
	}
	return io.NopCloser(bytes.NewReader(src.Data)), int64(len(src.Data)), nil
}

// ContextReader wraps a reader so long copies abort once the request
// context is done; plain file and SFTP IO carry no context of their own.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
