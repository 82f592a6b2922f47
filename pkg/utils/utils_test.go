package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, path string, content string) {
	t.Helper()
	if err := MakeDir(filepath.Dir(path)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkAudioFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.mp3"), "b")
	touch(t, filepath.Join(root, "a.WAV"), "a")
	touch(t, filepath.Join(root, "notes.txt"), "x")
	touch(t, filepath.Join(root, "sub", "c.flac"), "c")
	touch(t, filepath.Join(root, ".cache", "d.wav"), "d")
	explicit := filepath.Join(root, "notes.txt")

	files, err := WalkAudioFiles(root, filepath.Join(root, "sub"), explicit)
	if err != nil {
		t.Fatalf("WalkAudioFiles: %v", err)
	}

	var names []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f)
		names = append(names, filepath.ToSlash(rel))
	}
	want := "a.WAV,b.mp3,notes.txt,sub/c.flac"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("WalkAudioFiles = %s, want %s", got, want)
	}

	if _, err := WalkAudioFiles(filepath.Join(root, "missing")); err == nil {
		t.Error("missing root returned no error")
	}
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	touch(t, a, "same bytes")
	touch(t, b, "same bytes")

	ha, err := HashFile(a)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	hb, _ := HashFile(b)
	if ha != hb {
		t.Error("identical files hashed differently")
	}
	if len(ha) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(ha))
	}

	touch(t, b, "other bytes")
	if hb, _ := HashFile(b); hb == ha {
		t.Error("different files hashed identically")
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.tmp")
	touch(t, src, "x")
	dst := filepath.Join(dir, "dst.wav")

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("destination missing: %v", err)
	}
	if err := MoveFile(src, dst); err == nil {
		t.Error("moving a missing file returned no error")
	}
}

func TestExtractYouTubeID(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://example.com/watch?v=x", "", false},
		{"https://youtu.be/", "", false},
	}
	for _, tt := range tests {
		got, err := ExtractYouTubeID(tt.url)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ExtractYouTubeID(%q) = %q, %v", tt.url, got, err)
		}
	}
	if !IsYouTubeURL("https://youtu.be/abc") || IsYouTubeURL("https://vimeo.com/1") {
		t.Error("IsYouTubeURL misclassified a URL")
	}
}
