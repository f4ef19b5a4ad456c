package walk

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWalkIncludeExclude(t *testing.T) {
	root := t.TempDir()
	_ = os.WriteFile(filepath.Join(root, "a.go"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "a.sql"), []byte("x"), 0o644)

	files, err := ListFiles(root, Options{
		IncludeGlobs: []string{"*.go"},
		ExcludeGlobs: []string{"*.sql"},
		ScanAll:      false,
	})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0] != "a.go" {
		t.Fatalf("files=%v", files)
	}
}

func TestWalkRespectsGitignoreAndSkippedDirs(t *testing.T) {
	root := t.TempDir()
	_ = os.WriteFile(filepath.Join(root, ".gitignore"), []byte("build/\n*.tmp\n"), 0o644)
	for _, dir := range []string{"build", "vendor", "src"} {
		_ = os.MkdirAll(filepath.Join(root, dir), 0o755)
		_ = os.WriteFile(filepath.Join(root, dir, "x.go"), []byte("x"), 0o644)
	}
	_ = os.WriteFile(filepath.Join(root, "scratch.tmp"), []byte("x"), 0o644)

	files, err := ListFiles(root, Options{})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0] != "src/x.go" {
		t.Fatalf("files=%v", files)
	}

	f, err := NewFilter(root, Options{})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	if f.ShouldInclude("build", true) || !f.ShouldInclude("src", true) {
		t.Fatalf("directory filter disagrees with ListFiles")
	}
}

func TestLanguageFor(t *testing.T) {
	cases := map[string]string{
		"a/b/init.lua":  "lua",
		"main.GO":       "go",
		"Makefile":      "make",
		"notes":         "text",
		`dir\script.py`: "python",
		"web/app.tsx":   "typescript",
	}
	for in, want := range cases {
		if got := LanguageFor(in); got != want {
			t.Fatalf("LanguageFor(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestWalkAidiagignoreAndSourceOnly(t *testing.T) {
	root := t.TempDir()
	_ = os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.gen.go\n"), 0o644)
	_ = os.WriteFile(filepath.Join(root, IgnoreFile), []byte("# fixtures\ntestdata/\n!keep.gen.go\n"), 0o644)
	_ = os.MkdirAll(filepath.Join(root, "testdata"), 0o755)
	for _, name := range []string{"main.go", "api.gen.go", "keep.gen.go", "notes.txt", "logo.png", "testdata/in.go"} {
		_ = os.WriteFile(filepath.Join(root, filepath.FromSlash(name)), []byte("x"), 0o644)
	}

	files, err := ListFiles(root, Options{SourceOnly: true})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := []string{"keep.gen.go", "main.go"}
	if len(files) != len(want) || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files=%v, want %v", files, want)
	}

	all, err := ListFiles(root, Options{ScanAll: true})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(all) != 8 {
		t.Fatalf("ScanAll files=%v", all)
	}
}
