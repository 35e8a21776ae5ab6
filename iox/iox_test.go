package iox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDiscardErr(t *testing.T) {
	called := false
	DiscardErr(func() error {
		called = true
		return errors.New("ignored")
	})
	if !called {
		t.Fatal("fn was not called")
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCopyDir(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"pom.xml":                       "<project/>",
		"src/main/java/App.java":        "class App {}",
		"src/test/java/AppTest.java":    "class AppTest {}",
		"target/jacoco.exec":            "stale",
		"target/site/jacoco/jacoco.xml": "stale",
	})
	if err := os.WriteFile(filepath.Join(src, "mvnw"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "copy")
	if err := CopyDir(src, dst, "target"); err != nil {
		t.Fatalf("CopyDir failed: %v", err)
	}

	for _, name := range []string{"pom.xml", "src/main/java/App.java", "src/test/java/AppTest.java"} {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(name)))
		if err != nil {
			t.Errorf("missing %s: %v", name, err)
			continue
		}
		want, _ := os.ReadFile(filepath.Join(src, filepath.FromSlash(name)))
		if string(got) != string(want) {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	if _, err := os.Stat(filepath.Join(dst, "target")); !os.IsNotExist(err) {
		t.Errorf("skipped dir was copied: %v", err)
	}

	info, err := os.Stat(filepath.Join(dst, "mvnw"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("mvnw lost its executable bit: %v", info.Mode())
	}
}

func TestCopyFile_MissingSource(t *testing.T) {
	err := CopyFile(filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}
