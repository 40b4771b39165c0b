// Package sftp implements the storage capability over SFTP. Each operation
// dials its own session and closes it on return, so a dropped connection
// never poisons later requests. Writes go to a temp name and are renamed
// into place, mirroring the filesystem backend.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/depotfs/depot/internal/backend"
	"github.com/depotfs/depot/internal/model"
)

const dialTimeout = 15 * time.Second

// Backend stores files on a remote host over SFTP.
type Backend struct {
	tag      string
	addr     string
	host     string
	user     string
	root     string
	sshCfg   *ssh.ClientConfig
	settings backend.Settings
}

var _ backend.Capability = (*Backend)(nil)

// New creates an SFTP backend from connection params: host (required),
// port (default 22), user (required), password or private_key (one
// required), root (default "."), host_key (optional public key line;
// verification is skipped when absent).
func New(tag string, params map[string]string, settings backend.Settings) (*Backend, error) {
	host := params["host"]
	user := params["user"]
	if host == "" || user == "" {
		return nil, fmt.Errorf("sftp backend %q: host and user params are required", tag)
	}
	port := params["port"]
	if port == "" {
		port = "22"
	}

	var auth []ssh.AuthMethod
	if pw := params["password"]; pw != "" {
		auth = append(auth, ssh.Password(pw))
	}
	if keyFile := params["private_key"]; keyFile != "" {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key %q: %w", keyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse private key %q: %w", keyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("sftp backend %q: password or private_key param is required", tag)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via host_key param
	if line := params["host_key"]; line != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("parse host_key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(key)
	}

	root := params["root"]
	if root == "" {
		root = "."
	}

	return &Backend{
		tag:  tag,
		addr: net.JoinHostPort(host, port),
		host: host,
		user: user,
		root: root,
		sshCfg: &ssh.ClientConfig{
			User:            user,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         dialTimeout,
		},
		settings: settings,
	}, nil
}

// connect dials one SSH+SFTP session. The returned closer tears down both.
func (b *Backend) connect(ctx context.Context) (*sftp.Client, func(), error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", b.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", b.addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, b.addr, b.sshCfg)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake %s: %w", b.addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("open sftp session: %w", err)
	}
	return client, func() {
		client.Close()
		sshClient.Close()
	}, nil
}

func (b *Backend) remotePath(key string) string {
	return path.Join(b.root, key)
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || errors.Is(err, iofs.ErrNotExist)
}

// Store uploads the source under the resolved key.
func (b *Backend) Store(ctx context.Context, src model.Source, opts model.Options) (*model.FileInfo, error) {
	client, closeFn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	key := opts.Key
	if key == "" || key == model.KeyAuto {
		key = backend.DeriveKey(src)
	}
	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return nil, err
	}
	exists := func(_ context.Context, k string) (bool, error) {
		_, err := client.Stat(b.remotePath(k))
		if isNotExist(err) {
			return false, nil
		}
		return err == nil, err
	}
	target, err := backend.ResolveKey(ctx, scoped, opts, b.settings.MaxRenameAttempts, exists)
	if err != nil {
		return nil, err
	}

	r, _, err := backend.OpenSource(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	dest := b.remotePath(target)
	if dir := path.Dir(dest); dir != "." {
		if err := client.MkdirAll(dir); err != nil {
			return nil, fmt.Errorf("mkdir %q: %w", dir, err)
		}
	}

	tmp := dest + ".tmp"
	f, err := client.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", tmp, err)
	}

	d := backend.NewDigester(opts.Hashes)
	buf := make([]byte, b.settings.ChunkSize)
	n, werr := io.CopyBuffer(io.MultiWriter(f, d.Writer()), backend.ContextReader(ctx, r), buf)
	cerr := f.Close()
	if werr != nil {
		client.Remove(tmp)
		return nil, fmt.Errorf("stream write: %w", werr)
	}
	if cerr != nil {
		client.Remove(tmp)
		return nil, fmt.Errorf("flush: %w", cerr)
	}
	if err := client.PosixRename(tmp, dest); err != nil {
		// Some servers lack the posix-rename extension.
		client.Remove(dest)
		if err := client.Rename(tmp, dest); err != nil {
			client.Remove(tmp)
			return nil, fmt.Errorf("rename to %q: %w", dest, err)
		}
	}

	st, err := client.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", dest, err)
	}
	return &model.FileInfo{
		Key:      target,
		Backend:  b.tag,
		Size:     n,
		Hashes:   d.Sums(),
		Modified: st.ModTime(),
		URL:      b.sftpURL(target),
	}, nil
}

// GetInfo stats the key, computing requested digests by reading the file.
func (b *Backend) GetInfo(ctx context.Context, key string, opts model.Options) (*model.FileInfo, error) {
	client, closeFn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return nil, err
	}
	remote := b.remotePath(scoped)
	st, err := client.Stat(remote)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", scoped, err)
	}

	var hashes []model.Hash
	if len(opts.Hashes) > 0 {
		f, err := client.Open(remote)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", scoped, err)
		}
		defer f.Close()
		hashes, _, err = backend.DigestReader(backend.ContextReader(ctx, f), opts.Hashes, b.settings.ChunkSize)
		if err != nil {
			return nil, fmt.Errorf("hash %q: %w", scoped, err)
		}
	}

	return &model.FileInfo{
		Key:      scoped,
		Backend:  b.tag,
		Size:     st.Size(),
		Hashes:   hashes,
		Modified: st.ModTime(),
		URL:      b.sftpURL(scoped),
	}, nil
}

// GetURL returns an sftp:// URL for the key.
func (b *Backend) GetURL(ctx context.Context, key string, opts model.Options) (string, error) {
	client, closeFn, err := b.connect(ctx)
	if err != nil {
		return "", err
	}
	defer closeFn()

	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return "", err
	}
	if _, err := client.Stat(b.remotePath(scoped)); err != nil {
		return "", fmt.Errorf("stat %q: %w", scoped, err)
	}
	return b.sftpURL(scoped), nil
}

// ListFiles walks the scope directory and returns identifiers relative to
// the root.
func (b *Backend) ListFiles(ctx context.Context, opts model.Options) ([]string, error) {
	client, closeFn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	scopeDir := b.remotePath(opts.Scope)
	if _, err := client.Stat(scopeDir); isNotExist(err) {
		return nil, nil
	}

	var keys []string
	walker := client.Walk(scopeDir)
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := walker.Err(); err != nil {
			return nil, fmt.Errorf("walk %q: %w", opts.Scope, err)
		}
		if walker.Stat().IsDir() || strings.HasSuffix(walker.Path(), ".tmp") {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), b.root), "/")
		keys = append(keys, rel)
	}
	return keys, nil
}

// Delete removes the key. Missing keys are not an error.
func (b *Backend) Delete(ctx context.Context, key string, opts model.Options) error {
	client, closeFn, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	scoped, err := backend.ScopedKey(opts.Scope, key)
	if err != nil {
		return err
	}
	if err := client.Remove(b.remotePath(scoped)); err != nil && !isNotExist(err) {
		return fmt.Errorf("remove %q: %w", scoped, err)
	}
	return nil
}

// DeleteScope removes the scope directory recursively.
func (b *Backend) DeleteScope(ctx context.Context, opts model.Options) error {
	if opts.Scope == "" {
		return fmt.Errorf("delete scope: empty scope")
	}
	client, closeFn, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return removeTree(client, b.remotePath(opts.Scope))
}

// DeleteAll removes everything under the root, keeping the root itself.
func (b *Backend) DeleteAll(ctx context.Context, _ model.Options) error {
	client, closeFn, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	entries, err := client.ReadDir(b.root)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return fmt.Errorf("read root: %w", err)
	}
	for _, e := range entries {
		if err := removeTree(client, path.Join(b.root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// TestConnection dials a session and checks the root directory exists.
func (b *Backend) TestConnection(ctx context.Context) error {
	client, closeFn, err := b.connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := client.MkdirAll(b.root); err != nil {
		return fmt.Errorf("root %q not usable: %w", b.root, err)
	}
	return nil
}

// removeTree deletes p recursively. Missing paths are not an error.
func removeTree(client *sftp.Client, p string) error {
	st, err := client.Stat(p)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %q: %w", p, err)
	}
	if !st.IsDir() {
		if err := client.Remove(p); err != nil && !isNotExist(err) {
			return fmt.Errorf("remove %q: %w", p, err)
		}
		return nil
	}
	entries, err := client.ReadDir(p)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", p, err)
	}
	for _, e := range entries {
		if err := removeTree(client, path.Join(p, e.Name())); err != nil {
			return err
		}
	}
	if err := client.RemoveDirectory(p); err != nil && !isNotExist(err) {
		return fmt.Errorf("remove dir %q: %w", p, err)
	}
	return nil
}

func (b *Backend) sftpURL(key string) string {
	u := url.URL{
		Scheme: "sftp",
		User:   url.User(b.user),
		Host:   b.host,
		Path:   "/" + strings.TrimPrefix(path.Join(b.root, key), "/"),
	}
	return u.String()
}
