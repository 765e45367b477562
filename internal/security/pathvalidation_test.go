package security

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"new file in dir", filepath.Join(dir, "Tritium-3 time AUTOSAVE.txt"), false},
		{"new file in subdir", filepath.Join(dir, "plots", "spectrum.png"), false},
		{"dot-dot escape", filepath.Join(dir, "..", "escape.txt"), true},
		{"deep dot-dot escape", filepath.Join(dir, "a", "..", "..", "escape.txt"), true},
		{"absolute path outside", filepath.Join(os.TempDir(), "..", "outside.txt"), true},
		{"the dir itself", dir, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, dir)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathWithinDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathRejectsSymlinkedParent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}

	safe := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(safe, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	// The path appears to live under safe but resolves elsewhere.
	if err := ValidatePathWithinDirectory(filepath.Join(link, "file.txt"), safe); err == nil {
		t.Error("expected a symlinked parent escaping the directory to be rejected")
	}
}

func TestValidatePathMissingSafeDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "not-created")
	if err := ValidatePathWithinDirectory(filepath.Join(missing, "f.txt"), missing); err == nil {
		t.Error("expected an error when the safe directory does not exist")
	}
}
