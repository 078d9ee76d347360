// Package source materializes scenario source archives into
// workspaces. Archives come from a local path or an http(s) URL;
// downloads are cached in the archive directory and verified against
// the declared digest before extraction.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/squareslab/bugzood/internal/daemon/command"
	"github.com/squareslab/bugzood/internal/daemon/types"
	"github.com/squareslab/bugzood/internal/daemon/workspace"
)

// Fetcher resolves and extracts scenario source archives.
type Fetcher struct {
	archiveDir string
	client     *http.Client
	runner     *command.Runner
	logger     *slog.Logger
}

// Config configures a Fetcher.
type Config struct {
	// ArchiveDir is where downloaded archives are cached.
	ArchiveDir string

	// Runner executes the extraction subprocess.
	Runner *command.Runner

	// Client is the HTTP client for downloads. Nil uses a client with
	// a generous download timeout.
	Client *http.Client

	// Logger for logging fetch progress.
	Logger *slog.Logger
}

// NewFetcher creates a source fetcher.
func NewFetcher(config Config) *Fetcher {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	return &Fetcher{
		archiveDir: config.ArchiveDir,
		client:     client,
		runner:     config.Runner,
		logger:     logger,
	}
}

// Provision resolves the archive and extracts it into the workspace
// source directory.
func (f *Fetcher) Provision(ctx context.Context, spec types.SourceSpec, ws *workspace.Workspace) error {
	archivePath, err := f.resolve(ctx, spec)
	if err != nil {
		return err
	}
	if spec.SHA256 != "" {
		if err := verifyDigest(archivePath, spec.SHA256); err != nil {
			return err
		}
	}
	return f.extract(ctx, archivePath, spec.StripComponents, ws.SourceDir)
}

// resolve returns a local path for the archive, downloading it first
// when the spec names a URL.
func (f *Fetcher) resolve(ctx context.Context, spec types.SourceSpec) (string, error) {
	if spec.Archive == "" {
		return "", fmt.Errorf("source archive is empty")
	}

	u, err := url.Parse(spec.Archive)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return f.download(ctx, spec)
	}

	if _, err := os.Stat(spec.Archive); err != nil {
		return "", fmt.Errorf("source archive not found: %w", err)
	}
	return spec.Archive, nil
}

// download fetches the archive into the cache directory. A cached copy
// matching the declared digest is reused without refetching.
func (f *Fetcher) download(ctx context.Context, spec types.SourceSpec) (string, error) {
	if err := os.MkdirAll(f.archiveDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	dest := filepath.Join(f.archiveDir, cacheName(spec))
	if _, err := os.Stat(dest); err == nil {
		if spec.SHA256 == "" || verifyDigest(dest, spec.SHA256) == nil {
			f.logger.Debug("archive cache hit", "archive", dest)
			return dest, nil
		}
		// Cached copy is corrupt; refetch.
		os.Remove(dest)
	}

	f.logger.Info("downloading source archive",
		"url", spec.Archive,
		"dest", dest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.Archive, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download archive: unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(f.archiveDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive: %w", err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to move archive into cache: %w", err)
	}
	return dest, nil
}

// extract unpacks the archive with the system tar. Compression is
// detected by tar from the file contents.
func (f *Fetcher) extract(ctx context.Context, archivePath string, strip int, destDir string) error {
	args := []string{"-xf", archivePath, "-C", destDir}
	if strip > 0 {
		args = append(args, fmt.Sprintf("--strip-components=%d", strip))
	}

	res, err := f.runner.Run(ctx, command.Request{
		Command: "tar",
		Args:    args,
	})
	if err != nil {
		return fmt.Errorf("failed to run tar: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("tar extraction failed (exit %d): %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	f.logger.Debug("source extracted",
		"archive", archivePath,
		"dest", destDir)
	return nil
}

// cacheName derives a stable cache filename for a remote archive. The
// digest (or URL hash) disambiguates archives with the same basename.
func cacheName(spec types.SourceSpec) string {
	key := spec.SHA256
	if key == "" {
		sum := sha256.Sum256([]byte(spec.Archive))
		key = hex.EncodeToString(sum[:])
	}
	base := path.Base(spec.Archive)
	if base == "" || base == "." || base == "/" {
		base = "source"
	}
	return key[:16] + "-" + base
}

// verifyDigest checks the file against the expected SHA-256 hex digest.
func verifyDigest(filePath, expected string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open archive for verification: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return fmt.Errorf("failed to hash archive: %w", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("archive digest mismatch for %s: expected %s, got %s", filePath, expected, actual)
	}
	return nil
}
