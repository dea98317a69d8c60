package services

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultMaxArchiveSize caps downloaded and extracted archive bytes.
const DefaultMaxArchiveSize = 64 << 20

// GitArchiveConfig configures a GitArchiveFetcher.
type GitArchiveConfig struct {
	Server     string
	Token      string
	Timeout    time.Duration
	ScratchDir string
	MaxSize    int64
}

// GitArchiveFetcher downloads <server>/<account>/<repo>/archive/<tag>.zip and
// extracts it into a scratch directory.
type GitArchiveFetcher struct {
	server     string
	scratchDir string
	maxSize    int64
	client     *http.Client
}

// NewGitArchiveFetcher creates a new GitArchiveFetcher. A non-empty token is
// sent as a bearer token on every request.
func NewGitArchiveFetcher(cfg GitArchiveConfig) *GitArchiveFetcher {
	client := &http.Client{}
	if cfg.Token != "" {
		client = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}
	client.Timeout = cfg.Timeout

	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxArchiveSize
	}
	return &GitArchiveFetcher{
		server:     strings.TrimRight(cfg.Server, "/"),
		scratchDir: cfg.ScratchDir,
		maxSize:    maxSize,
		client:     client,
	}
}

// Fetch downloads and extracts the archive of tag.
func (f *GitArchiveFetcher) Fetch(ctx context.Context, account, repo, tag string) (string, func(), error) {
	archiveURL := fmt.Sprintf("%s/%s/%s/archive/%s.zip", f.server, url.PathEscape(account), url.PathEscape(repo), url.PathEscape(tag))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("%w: %s returned status %d", ErrDefinitionNotFound, archiveURL, resp.StatusCode)
	}

	dir, err := os.MkdirTemp(f.scratchDir, "wrs-archive-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	zipPath := filepath.Join(dir, "archive.zip")
	if err := f.download(resp.Body, zipPath); err != nil {
		cleanup()
		return "", nil, err
	}

	root := filepath.Join(dir, "src")
	if err := f.extract(zipPath, root); err != nil {
		cleanup()
		return "", nil, err
	}
	return root, cleanup, nil
}

func (f *GitArchiveFetcher) download(body io.Reader, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(body, f.maxSize+1))
	if err != nil {
		return fmt.Errorf("%w: download: %v", ErrSourceUnavailable, err)
	}
	if n > f.maxSize {
		return fmt.Errorf("%w: archive exceeds %d bytes", ErrInvalidEntry, f.maxSize)
	}
	return nil
}

func (f *GitArchiveFetcher) extract(zipPath, root string) error {
	zr, err := zip.OpenReader(zipPath)
	if errors.Is(err, zip.ErrInsecurePath) {
		zr.Close()
		return fmt.Errorf("%w: archive contains unsafe paths", ErrInvalidEntry)
	}
	if err != nil {
		return fmt.Errorf("%w: unreadable archive: %v", ErrInvalidEntry, err)
	}
	defer zr.Close()

	var total int64
	for _, file := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(file.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("%w: archive entry %q escapes the archive root", ErrInvalidEntry, file.Name)
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if !file.Mode().IsRegular() {
			continue
		}
		total += int64(file.UncompressedSize64)
		if total > f.maxSize {
			return fmt.Errorf("%w: extracted archive exceeds %d bytes", ErrInvalidEntry, f.maxSize)
		}
		if err := extractFile(file, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("%w: unreadable archive entry %q: %v", ErrInvalidEntry, file.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()

	// the zip reader rejects entries longer than declared and checks the
	// CRC once it reaches EOF
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: corrupt archive entry %q: %v", ErrInvalidEntry, file.Name, err)
	}
	return nil
}

// definitionCandidates lists where a workflow definition may live inside an
// extracted archive, current naming convention first.
func definitionCandidates(repo, tag, gitPath, name string) []string {
	tops := []string{repo + "-" + tag}
	// GitHub drops a leading v from tags in archive directory names
	if trimmed := strings.TrimPrefix(tag, "v"); trimmed != tag && trimmed != "" {
		tops = append(tops, repo+"-"+trimmed)
	}
	var out []string
	for _, top := range tops {
		base := path.Join(top, gitPath, "workflow")
		out = append(out, path.Join(base, "main.yaml"), path.Join(base, name+".jt.yaml"))
	}
	return out
}

// LocateDefinition reads the workflow definition from an extracted archive.
func LocateDefinition(root, repo, tag, gitPath, name string) (string, error) {
	fsys := os.DirFS(root)
	for _, candidate := range definitionCandidates(repo, tag, gitPath, name) {
		if !fs.ValidPath(candidate) {
			continue
		}
		data, err := fs.ReadFile(fsys, candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", candidate, err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("%w: no workflow/main.yaml or workflow/%s.jt.yaml under %q at tag %s", ErrDefinitionNotFound, name, gitPath, tag)
}
