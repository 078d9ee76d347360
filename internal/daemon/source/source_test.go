package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/squareslab/bugzood/internal/daemon/command"
	"github.com/squareslab/bugzood/internal/daemon/types"
	"github.com/squareslab/bugzood/internal/daemon/workspace"
)

func requireTar(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}
}

// makeArchive tars up a directory containing a single hello.c file and
// returns the archive path.
func makeArchive(t *testing.T, topDir string) string {
	t.Helper()
	work := t.TempDir()
	src := filepath.Join(work, topDir)
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "hello.c"), []byte("int main(){return 0;}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(work, "src.tar.gz")
	cmd := exec.Command("tar", "-czf", archive, "-C", work, topDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("tar create failed: %v: %s", err, out)
	}
	return archive
}

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.NewManager(t.TempDir(), nil).Acquire("scn")
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func digestOf(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestProvisionLocalArchive(t *testing.T) {
	requireTar(t)
	archive := makeArchive(t, "proj-1.0")
	ws := newTestWorkspace(t)

	f := NewFetcher(Config{
		ArchiveDir: t.TempDir(),
		Runner:     command.NewRunner(command.Config{}),
	})

	spec := types.SourceSpec{Archive: archive, StripComponents: 1}
	if err := f.Provision(context.Background(), spec, ws); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	// strip-components=1 drops the proj-1.0/ prefix.
	if _, err := os.Stat(filepath.Join(ws.SourceDir, "hello.c")); err != nil {
		t.Errorf("expected extracted file at source root: %v", err)
	}
}

func TestProvisionVerifiesDigest(t *testing.T) {
	requireTar(t)
	archive := makeArchive(t, "proj")
	ws := newTestWorkspace(t)

	f := NewFetcher(Config{
		ArchiveDir: t.TempDir(),
		Runner:     command.NewRunner(command.Config{}),
	})

	good := types.SourceSpec{Archive: archive, SHA256: digestOf(t, archive)}
	if err := f.Provision(context.Background(), good, ws); err != nil {
		t.Fatalf("Provision with matching digest failed: %v", err)
	}

	bad := types.SourceSpec{Archive: archive, SHA256: "deadbeef"}
	if err := f.Provision(context.Background(), bad, newTestWorkspace(t)); err == nil {
		t.Error("expected digest mismatch error")
	}
}

func TestProvisionMissingArchive(t *testing.T) {
	f := NewFetcher(Config{
		ArchiveDir: t.TempDir(),
		Runner:     command.NewRunner(command.Config{}),
	})

	err := f.Provision(context.Background(), types.SourceSpec{Archive: "/does/not/exist.tar"}, newTestWorkspace(t))
	if err == nil {
		t.Fatal("expected error for missing archive")
	}
}

func TestProvisionDownloadsAndCaches(t *testing.T) {
	requireTar(t)
	archive := makeArchive(t, "proj")
	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatal(err)
	}

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(data)
	}))
	defer srv.Close()

	f := NewFetcher(Config{
		ArchiveDir: t.TempDir(),
		Runner:     command.NewRunner(command.Config{}),
	})

	spec := types.SourceSpec{
		Archive: srv.URL + "/proj.tar.gz",
		SHA256:  digestOf(t, archive),
	}

	if err := f.Provision(context.Background(), spec, newTestWorkspace(t)); err != nil {
		t.Fatalf("first Provision failed: %v", err)
	}
	if err := f.Provision(context.Background(), spec, newTestWorkspace(t)); err != nil {
		t.Fatalf("second Provision failed: %v", err)
	}
	if hits != 1 {
		t.Errorf("expected one download, server saw %d", hits)
	}
}

func TestProvisionDownloadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(Config{
		ArchiveDir: t.TempDir(),
		Runner:     command.NewRunner(command.Config{}),
	})

	err := f.Provision(context.Background(), types.SourceSpec{Archive: srv.URL + "/gone.tar"}, newTestWorkspace(t))
	if err == nil {
		t.Fatal("expected error for 404 download")
	}
}
