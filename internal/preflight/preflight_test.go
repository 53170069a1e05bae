package preflight

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDeviceAccess(t *testing.T) {
	image := filepath.Join(t.TempDir(), "disc.iso")
	if err := os.WriteFile(image, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		target string
		pass   bool
		detail string
	}{
		{"image file", image, true, "image file"},
		{"usb selector", "usb:0e8d:1887", true, "usb"},
		{"missing", filepath.Join(t.TempDir(), "sr9"), false, "does not exist"},
		{"directory", t.TempDir(), false, "is a directory"},
		{"empty", "  ", false, "no device"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckDeviceAccess("Device", tt.target)
			if result.Passed != tt.pass {
				t.Fatalf("passed = %v, want %v (%s)", result.Passed, tt.pass, result.Detail)
			}
			if !strings.Contains(result.Detail, tt.detail) {
				t.Fatalf("detail %q does not mention %q", result.Detail, tt.detail)
			}
		})
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("expected one byte to fit, got: %s", result.Detail)
	}
	result := CheckFreeSpace("space", dir, math.MaxInt64)
	if result.Passed {
		t.Fatal("expected failure for impossible size")
	}
	if !strings.Contains(result.Detail, "image needs") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing dir")
	}
}

func TestRunAllAndErr(t *testing.T) {
	image := filepath.Join(t.TempDir(), "disc.iso")
	if err := os.WriteFile(image, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
	results := RunAll(Request{Target: image, OutputDir: t.TempDir(), ImageBytes: 2048})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if err := Err(results); err != nil {
		t.Fatalf("expected all checks to pass: %v", err)
	}

	results = RunAll(Request{Target: image, OutputDir: filepath.Join(t.TempDir(), "missing")})
	if len(results) != 2 {
		t.Fatalf("expected space check skipped, got %d results", len(results))
	}
	err := Err(results)
	if err == nil || !strings.Contains(err.Error(), "Output directory") {
		t.Fatalf("expected output directory failure, got %v", err)
	}
}
