package updater

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rennerdo30/ys-launcher/internal/hosting"
)

type fakeVersions struct {
	token string
	err   error
}

func (f fakeVersions) RemoteVersion(ctx context.Context) (string, error) {
	return f.token, f.err
}

type fakeResolver struct {
	url   string
	err   error
	calls int
}

func (f *fakeResolver) ResolveServiceURL(ctx context.Context, indirectionURL, token string) (string, error) {
	f.calls++
	return f.url, f.err
}

// fakeHost serves archive for any link.
type fakeHost struct {
	mu       sync.Mutex
	archive  []byte
	size     int64
	loginErr error
	nodeErr  error
	dlErr    error
	// dropSession ends the session during Download.
	dropSession bool

	loggedIn bool
	logins   int
	logouts  int
}

func (h *fakeHost) LoginAnonymous(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logins++
	if h.loginErr != nil {
		return h.loginErr
	}
	h.loggedIn = true
	return nil
}

func (h *fakeHost) IsLoggedIn() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loggedIn
}

func (h *fakeHost) Logout(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.loggedIn {
		return hosting.ErrNotLoggedIn
	}
	h.loggedIn = false
	h.logouts++
	return nil
}

func (h *fakeHost) NodeFromLink(ctx context.Context, link string) (hosting.Node, error) {
	if h.nodeErr != nil {
		return hosting.Node{}, h.nodeErr
	}
	size := h.size
	if size == 0 {
		size = int64(len(h.archive))
	}
	return hosting.Node{Name: filepath.Base(link), Size: size}, nil
}

func (h *fakeHost) Download(ctx context.Context, link, dest string, progress hosting.PercentFunc) error {
	if h.dropSession {
		h.mu.Lock()
		h.loggedIn = false
		h.mu.Unlock()
	}
	if h.dlErr != nil {
		return h.dlErr
	}
	if progress != nil {
		progress(50)
	}
	if err := os.WriteFile(dest, h.archive, 0644); err != nil {
		return err
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

var errBoom = errors.New("boom")

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		if content != "" {
			_, err = f.Write([]byte(content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, path)
	require.Equal(t, want, string(data), path)
}

func testPaths(base string) Paths {
	return Paths{
		Root:           filepath.Join(base, "Game"),
		StagingDir:     filepath.Join(base, "Temp"),
		VersionFile:    filepath.Join(base, "Game", "GameVersion.txt"),
		ArchiveFile:    filepath.Join(base, "Game.zip"),
		StateFile:      filepath.Join(base, "update-state.json"),
		LockFile:       filepath.Join(base, "update.lock"),
		PreservedDirs:  []string{"Data/CustomMode"},
		PreservedFiles: []string{"Data/Custom.json", "Data/Misc.json"},
	}
}

type testEnv struct {
	base     string
	paths    Paths
	host     *fakeHost
	resolver *fakeResolver
	updater  *Updater
}

func newTestEnv(t *testing.T, remote string, archive map[string]string) *testEnv {
	t.Helper()
	base := t.TempDir()
	env := &testEnv{
		base:     base,
		paths:    testPaths(base),
		host:     &fakeHost{archive: buildZip(t, archive)},
		resolver: &fakeResolver{url: "https://files.example.com/Game.zip"},
	}

	u, err := New(Options{
		Paths:               env.paths,
		ServiceDirectoryURL: "www.example.com/urls.txt",
		ServiceToken:        "files.example.com",
		Versions:            fakeVersions{token: remote},
		Resolver:            env.resolver,
		Host:                env.host,
	})
	require.NoError(t, err)
	env.updater = u
	return env
}

func (e *testEnv) root(rel string) string {
	return filepath.Join(e.paths.Root, filepath.FromSlash(rel))
}

func (e *testEnv) staging(rel string) string {
	return filepath.Join(e.paths.StagingDir, filepath.FromSlash(rel))
}
