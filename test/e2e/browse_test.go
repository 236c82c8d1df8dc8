package e2e

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	expect "github.com/Netflix/go-expect"
	"github.com/creack/pty"
)

// buildMoodmap builds the moodmap binary for testing.
func buildMoodmap(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "moodmap")

	rootDir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	// We are in test/e2e.
	rootDir = filepath.Join(rootDir, "..", "..")

	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/moodmap")
	cmd.Dir = rootDir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build failed: %v\n%s", err, out)
	}
	return binPath
}

func TestE2E_Browse(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary and drives it through a pty")
	}
	binPath := buildMoodmap(t)

	// A clean home directory so the binary uses a fresh ~/.moodmap.
	homeDir := t.TempDir()
	if err := seedFixtureDB(homeDir); err != nil {
		t.Fatalf("failed to seed fixture db: %v", err)
	}

	cmd := exec.Command(binPath, "browse")
	cmd.Dir = homeDir
	cmd.Env = append(os.Environ(), "HOME="+homeDir, "MOODMAP_DB=")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		t.Fatalf("failed to start pty: %v", err)
	}
	defer func() {
		_ = ptmx.Close()
		_ = cmd.Process.Kill()
	}()

	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: 120, Rows: 40}); err != nil {
		t.Fatalf("failed to set pty size: %v", err)
	}

	// The console only reads the screen; keys go straight to the pty.
	var outputBuf bytes.Buffer
	console, err := expect.NewConsole(
		expect.WithStdin(ptmx),
		expect.WithStdout(&outputBuf),
		expect.WithDefaultTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("failed to create console: %v", err)
	}
	defer console.Close()

	// Lowest score first.
	t.Log("Waiting for the mood map...")
	if _, err := console.ExpectString("1/2"); err != nil {
		if logs, err := os.ReadFile(filepath.Join(homeDir, ".moodmap", "moodmap-"+time.Now().Format("2006-01-02")+".log")); err == nil {
			t.Logf("moodmap log:\n%s", logs)
		}
		t.Fatalf("startup failed: '1/2' not found: %v\nScreen:\n%s", err, outputBuf.String())
	}

	time.Sleep(300 * time.Millisecond)
	t.Log("Moving to FR...")
	if _, err := ptmx.Write([]byte("j")); err != nil {
		t.Fatalf("failed to send j: %v", err)
	}
	if _, err := console.ExpectString("Fixture analog snippet"); err != nil {
		t.Fatalf("FR analogs not shown: %v\nScreen:\n%s", err, outputBuf.String())
	}

	t.Log("Sending 'q'...")
	if _, err := ptmx.Write([]byte("q")); err != nil {
		t.Fatalf("failed to send q: %v", err)
	}

	done := make(chan error)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("process did not exit after 'q'")
	}
}
