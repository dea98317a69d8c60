package services

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newArchiveServer(t *testing.T, archives map[string][]byte, wantAuth string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantAuth != "" && r.Header.Get("Authorization") != wantAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGitArchiveFetcher_FetchAndLocate(t *testing.T) {
	archive := zipOf(t, map[string]string{
		"wf-repo-1.0/wf/workflow/main.yaml": validYAML,
		"wf-repo-1.0/README.md":             "readme",
	})
	server := newArchiveServer(t, map[string][]byte{"/acct/wf-repo/archive/1.0.zip": archive}, "Bearer s3cret")

	fetcher := NewGitArchiveFetcher(GitArchiveConfig{Server: server.URL, Token: "s3cret", Timeout: time.Second, ScratchDir: t.TempDir()})
	dir, cleanup, err := fetcher.Fetch(context.Background(), "acct", "wf-repo", "1.0")
	require.NoError(t, err)

	definition, err := LocateDefinition(dir, "wf-repo", "1.0", "wf", "wf")
	require.NoError(t, err)
	assert.Equal(t, validYAML, definition)

	cleanup()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestGitArchiveFetcher_Errors(t *testing.T) {
	slip := zipOf(t, map[string]string{"../../escape.yaml": "x"})
	server := newArchiveServer(t, map[string][]byte{"/acct/slip/archive/1.0.zip": slip, "/acct/junk/archive/1.0.zip": []byte("not a zip")}, "")
	fetcher := NewGitArchiveFetcher(GitArchiveConfig{Server: server.URL, Timeout: time.Second, ScratchDir: t.TempDir()})
	ctx := context.Background()

	_, _, err := fetcher.Fetch(ctx, "acct", "missing", "1.0")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)

	_, _, err = fetcher.Fetch(ctx, "acct", "slip", "1.0")
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, _, err = fetcher.Fetch(ctx, "acct", "junk", "1.0")
	assert.ErrorIs(t, err, ErrInvalidEntry)

	small := NewGitArchiveFetcher(GitArchiveConfig{Server: server.URL, ScratchDir: t.TempDir(), MaxSize: 4})
	_, _, err = small.Fetch(ctx, "acct", "junk", "1.0")
	assert.ErrorIs(t, err, ErrInvalidEntry)

	server.Close()
	_, _, err = fetcher.Fetch(ctx, "acct", "slip", "1.0")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestGitArchiveFetcher_CorruptArchives(t *testing.T) {
	const payload = "workflow-definition-payload"

	var stored bytes.Buffer
	zw := zip.NewWriter(&stored)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "repo-1.0/workflow/main.yaml", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	badCRC := bytes.Clone(stored.Bytes())
	at := bytes.Index(badCRC, []byte(payload))
	require.GreaterOrEqual(t, at, 0)
	badCRC[at] ^= 0xff

	full := zipOf(t, map[string]string{"repo-1.0/workflow/main.yaml": validYAML})
	truncated := full[:len(full)/2]

	server := newArchiveServer(t, map[string][]byte{
		"/acct/crc/archive/1.0.zip":       badCRC,
		"/acct/truncated/archive/1.0.zip": truncated,
	}, "")
	fetcher := NewGitArchiveFetcher(GitArchiveConfig{Server: server.URL, Timeout: time.Second, ScratchDir: t.TempDir()})

	for _, repo := range []string{"crc", "truncated"} {
		t.Run(repo, func(t *testing.T) {
			_, _, err := fetcher.Fetch(context.Background(), "acct", repo, "1.0")
			assert.ErrorIs(t, err, ErrInvalidEntry)
			assert.NotErrorIs(t, err, ErrDefinitionNotFound)
		})
	}
}

func TestLocateDefinition(t *testing.T) {
	root := t.TempDir()
	write := func(rel, body string) {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	write("legacy-2.0/workflow/wf.jt.yaml", "legacy")
	definition, err := LocateDefinition(root, "legacy", "2.0", "", "wf")
	require.NoError(t, err)
	assert.Equal(t, "legacy", definition)

	write("both-1.0/p/workflow/main.yaml", "main")
	write("both-1.0/p/workflow/wf.jt.yaml", "old")
	definition, err = LocateDefinition(root, "both", "1.0", "p", "wf")
	require.NoError(t, err)
	assert.Equal(t, "main", definition)

	write("vrepo-3.1/workflow/main.yaml", "stripped")
	definition, err = LocateDefinition(root, "vrepo", "v3.1", "", "wf")
	require.NoError(t, err)
	assert.Equal(t, "stripped", definition)

	_, err = LocateDefinition(root, "none", "1.0", "", "wf")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}
