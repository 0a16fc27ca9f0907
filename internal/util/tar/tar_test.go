package tar

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// readArchive returns the regular files of a tar stream by name.
func readArchive(t *testing.T, r io.Reader, gzipped bool) map[string]string {
	t.Helper()
	if gzipped {
		gz, err := gzip.NewReader(r)
		require.NoError(t, err)
		defer gz.Close()
		r = gz
	}
	files := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if h.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[h.Name] = string(data)
	}
	return files
}

func TestBundleFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), "hello")
	writeFile(t, filepath.Join(dir, "proj", "main.go"), "package main")
	writeFile(t, filepath.Join(dir, "proj", "sub", "data.csv"), "a,b")

	paths := []string{filepath.Join(dir, "notes.txt"), filepath.Join(dir, "proj")}
	entries, err := Collect(paths, Options{})
	require.NoError(t, err)

	files, size := TotalSize(entries)
	assert.Equal(t, 3, files)
	assert.Equal(t, int64(len("hello")+len("package main")+len("a,b")), size)

	var buf bytes.Buffer
	require.NoError(t, Write(context.Background(), &buf, entries, Options{}))

	got := readArchive(t, &buf, true)
	assert.Equal(t, map[string]string{
		"notes.txt":         "hello",
		"proj/main.go":      "package main",
		"proj/sub/data.csv": "a,b",
	}, got)
}

func TestBundleUncompressed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "aaa")

	entries, err := Collect([]string{filepath.Join(dir, "a.txt")}, Options{Compression: CompressionNone})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(context.Background(), &buf, entries, Options{Compression: CompressionNone}))
	assert.Equal(t, map[string]string{"a.txt": "aaa"}, readArchive(t, &buf, false))
}

func TestCollectFilters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "d", "keep.go"), "x")
	writeFile(t, filepath.Join(dir, "d", "skip.log"), "y")

	names := func(entries []Entry) []string {
		var out []string
		for _, e := range entries {
			if e.Info.Mode().IsRegular() {
				out = append(out, e.Name)
			}
		}
		sort.Strings(out)
		return out
	}

	entries, err := Collect([]string{filepath.Join(dir, "d")}, Options{Exclude: []string{"*.log"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"d/keep.go"}, names(entries))

	entries, err = Collect([]string{filepath.Join(dir, "d")}, Options{Include: []string{"*.log"}, Exclude: []string{"*.log"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"d/skip.log"}, names(entries), "include wins over exclude")
}

func TestCollectSkipHidden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "proj", "main.go"), "package main")
	writeFile(t, filepath.Join(dir, "proj", ".env"), "SECRET=1")
	writeFile(t, filepath.Join(dir, "proj", ".git", "HEAD"), "ref")

	var buf bytes.Buffer
	entries, err := Collect([]string{filepath.Join(dir, "proj")}, Options{SkipHidden: true})
	require.NoError(t, err)
	require.NoError(t, Write(context.Background(), &buf, entries, Options{}))
	assert.Equal(t, map[string]string{"proj/main.go": "package main"}, readArchive(t, &buf, true))

	entries, err = Collect([]string{filepath.Join(dir, "proj")}, Options{})
	require.NoError(t, err)
	files, _ := TotalSize(entries)
	assert.Equal(t, 3, files)
}

func TestIsHidden(t *testing.T) {
	for name, want := range map[string]bool{".env": true, ".git": true, "main.go": false, ".": false, "..": false} {
		assert.Equal(t, want, isHidden(name), name)
	}
}

func TestCollectRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "x", "same.txt"), "1")
	writeFile(t, filepath.Join(dir, "y", "same.txt"), "2")

	_, err := Collect([]string{filepath.Join(dir, "x", "same.txt"), filepath.Join(dir, "y", "same.txt")}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate archive entry")
}

func TestCollectMissingPath(t *testing.T) {
	_, err := Collect([]string{filepath.Join(t.TempDir(), "nope")}, Options{})
	require.Error(t, err)
}

func TestStream(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "s", "one.txt"), "one")

	entries, err := Collect([]string{filepath.Join(dir, "s")}, Options{})
	require.NoError(t, err)

	rc := Stream(context.Background(), entries, Options{})
	defer rc.Close()
	assert.Equal(t, map[string]string{"s/one.txt": "one"}, readArchive(t, rc, true))
}

func TestStreamCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "c.txt"), "c")
	entries, err := Collect([]string{filepath.Join(dir, "c.txt")}, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rc := Stream(ctx, entries, Options{})
	defer rc.Close()
	_, err = io.ReadAll(rc)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "proj.tar.gz", ArchiveName([]string{"/tmp/proj/"}, Options{}))
	assert.Equal(t, "bundle.tar.gz", ArchiveName([]string{"a", "b"}, Options{}))
	assert.Equal(t, "bundle.tar", ArchiveName([]string{"a", "b"}, Options{Compression: CompressionNone}))
	assert.Equal(t, "config.tar.gz", ArchiveName([]string{".config"}, Options{}))
}
