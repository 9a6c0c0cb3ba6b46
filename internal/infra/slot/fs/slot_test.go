package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"treewalk/internal/slot/core"
)

func newTempSlot(t *testing.T) *Slot {
	t.Helper()
	s, err := New(t.TempDir(), "treewalk:trees")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSlot_ReadWriteOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTempSlot(t)
	if _, err := s.Read(ctx); !errors.Is(err, core.ErrEmpty) {
		t.Fatalf("expected ErrEmpty before first write, got %v", err)
	}
	if err := s.Write(ctx, []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(ctx, []byte(`[]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "[]" {
		t.Fatalf("expected overwrite, got %q", got)
	}
	if filepath.Base(s.Path()) != "treewalk_trees.json" {
		t.Fatalf("unexpected file name %s", s.Path())
	}
}

func TestSlot_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	s := newTempSlot(t)
	if err := s.Write(ctx, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the slot file, got %d entries", len(entries))
	}
}

func TestNew_RejectsTraversal(t *testing.T) {
	if _, err := New(t.TempDir(), "../outside"); !errors.Is(err, core.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestSlot_ReadErrorOnDirectory(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, "dir")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := os.Mkdir(s.Path(), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := s.Read(context.Background()); err == nil || errors.Is(err, core.ErrEmpty) {
		t.Fatalf("expected read error for directory, got %v", err)
	}
}
