// Package htstest writes placeholder voices for tests.
package htstest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nadzzz/htsbridge/internal/hts"
	"github.com/nadzzz/htsbridge/internal/params"
)

// ModelKeys lists every path-valued engine key with a default location.
var ModelKeys = hts.PathKeys()

// WriteVoice creates every default model file under dir and returns dir.
// Each file holds its own key so loads can be told apart.
func WriteVoice(t testing.TB, dir string) string {
	t.Helper()
	for _, key := range ModelKeys {
		WriteFile(t, filepath.Join(dir, hts.DefaultPath(key)), key)
	}
	return dir
}

// WriteFile creates path with content, making parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Params returns an engine parameter list naming every model file under dir
// by absolute path.
func Params(dir string) params.List {
	p := make(params.List, len(ModelKeys))
	for _, key := range ModelKeys {
		p[key] = filepath.Join(dir, hts.DefaultPath(key))
	}
	return p
}
