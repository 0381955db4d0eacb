package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAddWhitelist(t *testing.T) {
	tmpDir := t.TempDir()
	scratch := t.TempDir()

	guard, err := NewGuard(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create guard: %v", err)
	}

	// Outside path rejected before whitelisting.
	outsideFile := filepath.Join(scratch, "cache.json")
	if guard.IsWithinRoot(outsideFile) {
		t.Fatal("Expected path outside sandbox to be rejected before whitelisting")
	}

	if err := guard.AddWhitelist(scratch); err != nil {
		t.Fatalf("AddWhitelist() error = %v", err)
	}

	if !guard.IsWithinRoot(outsideFile) {
		t.Error("Expected whitelisted path to be accepted")
	}
	if err := guard.ValidatePath(outsideFile); err != nil {
		t.Errorf("ValidatePath() on whitelisted path error = %v", err)
	}
}

func TestAddWhitelistEmptyAndDuplicate(t *testing.T) {
	guard, err := NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create guard: %v", err)
	}

	if err := guard.AddWhitelist(""); err == nil {
		t.Error("Expected error for empty whitelist directory")
	}

	scratch := t.TempDir()
	if err := guard.AddWhitelist(scratch); err != nil {
		t.Fatalf("AddWhitelist() error = %v", err)
	}
	if err := guard.AddWhitelist(scratch); err != nil {
		t.Fatalf("AddWhitelist() duplicate error = %v", err)
	}
	if len(guard.whitelistedDirs) != 1 {
		t.Errorf("Expected 1 whitelisted dir, got %d", len(guard.whitelistedDirs))
	}
}

func TestAddWhitelistNonExistentDir(t *testing.T) {
	guard, err := NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create guard: %v", err)
	}

	// A scratch dir that will be created later is still accepted.
	scratch := filepath.Join(t.TempDir(), "scratch", "nested")
	if err := guard.AddWhitelist(scratch); err != nil {
		t.Fatalf("AddWhitelist() error = %v", err)
	}
	if !guard.IsWithinRoot(filepath.Join(scratch, "out.json")) {
		t.Error("Expected path under a not-yet-created whitelisted dir to be accepted")
	}
}

func TestWhitelistedPathNeverIgnored(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte("scratch/\n"), 0o644); err != nil {
		t.Fatalf("Failed to write .gitignore: %v", err)
	}

	scratchDir := filepath.Join(tmpDir, "scratch")
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		t.Fatalf("Failed to create scratch dir: %v", err)
	}

	guard, err := NewGuard(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create guard: %v", err)
	}

	if !guard.ShouldIgnore("scratch/tmp.json") {
		t.Fatal("Expected scratch/ to be ignored via .gitignore")
	}

	if err := guard.AddWhitelist(scratchDir); err != nil {
		t.Fatalf("AddWhitelist() error = %v", err)
	}

	if guard.ShouldIgnore("scratch/tmp.json") {
		t.Error("Expected whitelisted path to never be ignored")
	}
}
