package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func testFS(t *testing.T) *FS {
	t.Helper()
	f, err := NewFS(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestWriteReadRoundTrip(t *testing.T) {
	f := testFS(t)
	content := []byte("---\ntitle: T\n---\nbody\n")
	if err := f.Write("folder/note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := f.Read("folder/note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("read = %q, want %q", got, content)
	}
}

func TestList_SkipsExcludedFolders(t *testing.T) {
	f := testFS(t)
	_ = f.Write("keep.md", []byte("a"))
	if err := os.MkdirAll(filepath.Join(f.Root(), ".obsidian"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.Root(), ".obsidian", "skip.md"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	metas, err := f.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 1 || metas[0].Path != "keep.md" {
		t.Errorf("List = %+v, want only keep.md", metas)
	}
}

func TestList_SkipsNonMarkdown(t *testing.T) {
	f := testFS(t)
	_ = f.Write("note.md", []byte("a"))
	if err := os.WriteFile(filepath.Join(f.Root(), "image.png"), []byte{0}, 0o644); err != nil {
		t.Fatal(err)
	}
	metas, err := f.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 1 {
		t.Errorf("expected 1 note, got %d", len(metas))
	}
}

func TestSafePath_RejectsTraversal(t *testing.T) {
	f := testFS(t)
	if _, err := f.Read("../outside.md"); err == nil {
		t.Error("expected error for path traversal")
	}
	if _, err := f.Read("/etc/passwd"); err == nil {
		t.Error("expected error for absolute path")
	}
}

func TestMoveAndDelete(t *testing.T) {
	f := testFS(t)
	_ = f.Write("a.md", []byte("x"))
	if err := f.Move("a.md", "sub/b.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := f.Read("a.md"); err == nil {
		t.Error("old path should be gone")
	}
	if err := f.Delete("sub/b.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.Read("sub/b.md"); err == nil {
		t.Error("deleted file should be gone")
	}
}
