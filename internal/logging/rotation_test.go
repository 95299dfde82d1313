package logging

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "combined.log")

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer func() { _ = rw.Close() }()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("log file was not created: %v", err)
		}
		if rw.FilePath() != path {
			t.Errorf("FilePath() = %q", rw.FilePath())
		}
	})

	t.Run("appends to existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "combined.log")
		if err := os.WriteFile(path, []byte("initial\n"), 0644); err != nil {
			t.Fatal(err)
		}

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatal(err)
		}
		if rw.CurrentSize() != int64(len("initial\n")) {
			t.Errorf("CurrentSize() = %d", rw.CurrentSize())
		}
		if _, err := rw.Write([]byte("appended\n")); err != nil {
			t.Fatal(err)
		}
		_ = rw.Close()

		content, _ := os.ReadFile(path)
		if string(content) != "initial\nappended\n" {
			t.Errorf("content = %q", content)
		}
	})
}

func TestRotatingWriterRotation(t *testing.T) {
	tests := []struct {
		name       string
		maxBackups int
		writes     int
		wantFiles  []string
		missing    []string
	}{
		{
			name:       "keeps configured backups",
			maxBackups: 2,
			writes:     5,
			wantFiles:  []string{"combined.log", "combined.log.1", "combined.log.2"},
			missing:    []string{"combined.log.3"},
		},
		{
			name:       "no backups",
			maxBackups: 0,
			writes:     3,
			wantFiles:  []string{"combined.log"},
			missing:    []string{"combined.log.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "combined.log")
			rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: tt.maxBackups})
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = rw.Close() }()

			chunk := []byte(strings.Repeat("x", 700*1024) + "\n")
			for i := 0; i < tt.writes; i++ {
				if _, err := rw.Write(chunk); err != nil {
					t.Fatalf("write %d: %v", i, err)
				}
			}

			for _, name := range tt.wantFiles {
				if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
					t.Errorf("expected %s to exist", name)
				}
			}
			for _, name := range tt.missing {
				if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
					t.Errorf("expected %s not to exist", name)
				}
			}
			if rw.CurrentSize() != int64(len(chunk)) {
				t.Errorf("CurrentSize() = %d after rotation, want %d", rw.CurrentSize(), len(chunk))
			}
		})
	}
}

func TestRotatingWriterDisabled(t *testing.T) {
	dir := t.TempDir()
	rw, err := NewRotatingWriter(filepath.Join(dir, "combined.log"), RotationConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rw.Close() }()

	chunk := []byte(strings.Repeat("y", 1024))
	for i := 0; i < 100; i++ {
		_, _ = rw.Write(chunk)
	}
	if _, err := os.Stat(filepath.Join(dir, "combined.log.1")); err == nil {
		t.Error("rotation happened with MaxSizeMB=0")
	}
}

func TestRotatingWriterCompression(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "combined.log")
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2, Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rw.Close() }()

	first := []byte(strings.Repeat("a", 800*1024) + "\n")
	if _, err := rw.Write(first); err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Write(first); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path + ".1"); err == nil {
		t.Error("uncompressed backup left behind")
	}
	f, err := os.Open(path + ".1.gz")
	if err != nil {
		t.Fatalf("compressed backup missing: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(first) {
		t.Errorf("decompressed backup has %d bytes, want %d", len(data), len(first))
	}
}

func TestRotatingWriterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "combined.log"), DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("Write after Close succeeded")
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync after Close error = %v", err)
	}
}

func TestRotatingWriterConcurrency(t *testing.T) {
	dir := t.TempDir()
	rw, err := NewRotatingWriter(filepath.Join(dir, "combined.log"), RotationConfig{MaxSizeMB: 1, MaxBackups: 5})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = rw.Close() }()

	line := []byte(strings.Repeat("z", 1023) + "\n")
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if _, err := rw.Write(line); err != nil {
					t.Errorf("Write() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if rw.CurrentSize() > 1024*1024 {
		t.Errorf("live file exceeds limit: %d bytes", rw.CurrentSize())
	}
}
