package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalker_IncludeExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "docs/b.md", "b")
	writeFile(t, root, "docs/c.go", "c")
	writeFile(t, root, "node_modules/d.txt", "d")

	w := NewWalker([]string{"**/*.txt", "**/*.md"}, []string{"**/node_modules/**"})
	files, err := w.Walk(root)
	if err != nil {
		t.Fatal(err)
	}

	var rels []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		rels = append(rels, filepath.ToSlash(rel))
	}

	want := []string{"a.txt", "docs/b.md"}
	if len(rels) != len(want) {
		t.Fatalf("expected %v, got %v", want, rels)
	}
	for i := range want {
		if rels[i] != want[i] {
			t.Errorf("file %d: expected %s, got %s", i, want[i], rels[i])
		}
	}
}

func TestWalker_MaxSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.txt", "kısa")
	writeFile(t, root, "big.txt", "bu dosya sınırı aşacak kadar uzun")

	files, err := NewWalker([]string{"**/*.txt"}, nil).WithMaxSize(10).Walk(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || filepath.Base(files[0].Path) != "small.txt" {
		t.Errorf("unexpected files %+v", files)
	}
}

func TestReadText(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.txt", "Merhaba dünya")
	writeFile(t, root, "bin.dat", string([]byte{0xff, 0xfe, 0x00}))

	text, ok, err := ReadText(filepath.Join(root, "ok.txt"))
	if err != nil || !ok || text != "Merhaba dünya" {
		t.Errorf("unexpected read %q %v %v", text, ok, err)
	}

	_, ok, err = ReadText(filepath.Join(root, "bin.dat"))
	if err != nil || ok {
		t.Errorf("expected invalid UTF-8 to be rejected, got ok=%v err=%v", ok, err)
	}
}
