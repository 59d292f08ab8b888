package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReplaceExt(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ext  string
		want string
	}{
		{"wav to flac", "microphone.wav", ".flac", "microphone.flac"},
		{"wav to opus", "mixed_stereo.wav", ".opus", "mixed_stereo.opus"},
		{"full path", "/rec/2026-01-05/system.wav", ".flac", "/rec/2026-01-05/system.flac"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReplaceExt(tt.in, tt.ext); got != tt.want {
				t.Errorf("ReplaceExt(%q, %q) = %q, want %q", tt.in, tt.ext, got, tt.want)
			}
		})
	}
}

func TestTrimPathSuffixes(t *testing.T) {
	if got := BackupPath("microphone.wav"); got != "microphone.wav.pretrim" {
		t.Errorf("BackupPath = %q", got)
	}
	if got := TrimmingPath("microphone.flac"); got != "microphone.flac.trimming" {
		t.Errorf("TrimmingPath = %q", got)
	}
}

func TestAllArtifacts(t *testing.T) {
	all := AllArtifacts(".flac")
	want := []string{
		"microphone.wav", "system.wav", "mixed_stereo.wav",
		"microphone.flac", "system.flac", "mixed_stereo.flac",
	}
	if len(all) != len(want) {
		t.Fatalf("got %d artifacts, want %d", len(all), len(want))
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("artifact %d = %q, want %q", i, all[i], want[i])
		}
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	dst := filepath.Join(dir, "dst.wav")

	if err := os.WriteFile(src, []byte("audio bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "audio bytes" {
		t.Errorf("copied content = %q", data)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	if Exists(path) {
		t.Error("Exists reported missing file as present")
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !Exists(path) {
		t.Error("Exists reported present file as missing")
	}
	if Exists(dir) {
		t.Error("Exists reported directory as regular file")
	}
}
