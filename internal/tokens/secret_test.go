package tokens

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStaticSecret(t *testing.T) {
	if StaticSecret("abc").Secret() != "abc" {
		t.Error("static secret should echo its value")
	}
}

func TestFileSecretReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}

	fs := NewFileSecret(path, "fallback")
	if got := fs.Secret(); got != "from-file" {
		t.Errorf("secret = %q, want trimmed file contents", got)
	}
}

func TestFileSecretKeepsFallbackOnMissingFile(t *testing.T) {
	fs := NewFileSecret(filepath.Join(t.TempDir(), "missing"), "fallback")
	if got := fs.Secret(); got != "fallback" {
		t.Errorf("secret = %q, want fallback", got)
	}
}

func TestFileSecretIgnoresEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("  \n"), 0600); err != nil {
		t.Fatal(err)
	}

	fs := NewFileSecret(path, "fallback")
	if got := fs.Secret(); got != "fallback" {
		t.Errorf("secret = %q, want fallback kept over empty file", got)
	}
}

func TestFileSecretReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("one"), 0600); err != nil {
		t.Fatal(err)
	}
	fs := NewFileSecret(path, "")

	if err := os.WriteFile(path, []byte("two"), 0600); err != nil {
		t.Fatal(err)
	}
	fs.reload()
	if got := fs.Secret(); got != "two" {
		t.Errorf("secret = %q, want reloaded value", got)
	}
}
