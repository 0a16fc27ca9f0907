// Package tar bundles local files and directories into one tar stream so
// several paths can be uploaded as a single blob.
package tar

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Compression values accepted in Options.Compression.
const (
	CompressionGzip = "gzip"
	CompressionNone = "none"
)

// Options controls what goes into a bundle.
type Options struct {
	// Include keeps only files whose base name matches one of the patterns.
	Include []string
	// Exclude drops files whose base name matches one of the patterns.
	// Ignored when Include is set.
	Exclude []string
	// Compression is "gzip" (default) or "none".
	Compression string
	// SkipHidden leaves out dot-files and dot-directories below each root.
	SkipHidden bool
}

// Entry is one file selected for a bundle.
type Entry struct {
	Path string // local path
	Name string // name inside the archive
	Info fs.FileInfo
}

// Collect walks paths and returns the entries a bundle would contain, in
// archive order. Each root keeps its base name as the top-level archive
// directory, so "a/b/c" and "x/c" both appear as "c/..." and collide.
func Collect(paths []string, opts Options) ([]Entry, error) {
	var entries []Entry
	seen := make(map[string]string) // archive name -> local path

	for _, root := range paths {
		root = filepath.Clean(root)
		info, err := os.Lstat(root)
		if err != nil {
			return nil, fmt.Errorf("source path does not exist: %w", err)
		}
		base := filepath.Base(root)

		if !info.IsDir() {
			if !shouldIncludeFile(base, opts.Include, opts.Exclude) {
				continue
			}
			if prev, ok := seen[base]; ok {
				return nil, fmt.Errorf("duplicate archive entry '%s' for '%s' and '%s'", base, prev, root)
			}
			seen[base] = root
			entries = append(entries, Entry{Path: root, Name: base, Info: info})
			continue
		}

		err = filepath.WalkDir(root, func(filePath string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, filePath)
			if err != nil {
				return fmt.Errorf("failed to get relative path: %w", err)
			}
			name := filepath.ToSlash(filepath.Join(base, rel))
			if opts.SkipHidden && filePath != root && isHidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && !shouldIncludeFile(d.Name(), opts.Include, opts.Exclude) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if prev, ok := seen[name]; ok {
				return fmt.Errorf("duplicate archive entry '%s' for '%s' and '%s'", name, prev, filePath)
			}
			seen[name] = filePath
			entries = append(entries, Entry{Path: filePath, Name: name, Info: fi})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// TotalSize sums the sizes of the regular files in entries.
func TotalSize(entries []Entry) (files int, size int64) {
	for _, e := range entries {
		if e.Info.Mode().IsRegular() {
			files++
			size += e.Info.Size()
		}
	}
	return files, size
}

// Write streams entries as a tar archive into w, gzip-compressed unless
// opts.Compression is "none". ctx is checked between entries.
func Write(ctx context.Context, w io.Writer, entries []Entry, opts Options) error {
	var tw *tar.Writer
	var gz *gzip.Writer
	if opts.Compression == CompressionNone {
		tw = tar.NewWriter(w)
	} else {
		gz = gzip.NewWriter(w)
		tw = tar.NewWriter(gz)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeEntry(tw, e); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to finish gzip: %w", err)
		}
	}
	return nil
}

func writeEntry(tw *tar.Writer, e Entry) error {
	var link string
	if e.Info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(e.Path)
		if err != nil {
			return fmt.Errorf("failed to read link %s: %w", e.Path, err)
		}
		link = target
	}

	header, err := tar.FileInfoHeader(e.Info, link)
	if err != nil {
		return fmt.Errorf("failed to create tar header: %w", err)
	}
	header.Name = e.Name
	if e.Info.IsDir() {
		header.Name += "/"
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}

	if !e.Info.Mode().IsRegular() {
		return nil
	}
	file, err := os.Open(e.Path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// tar.Writer rejects writes past header.Size; a file that grew since
	// Collect is truncated to the size we announced.
	n, err := io.Copy(tw, io.LimitReader(file, header.Size))
	if err != nil {
		return fmt.Errorf("failed to write file contents: %w", err)
	}
	if n != header.Size {
		return fmt.Errorf("file %s shrank while archiving: wrote %d of %d bytes", e.Path, n, header.Size)
	}
	return nil
}

// Stream runs Write in a goroutine and returns the read side of the pipe.
// The archive's length is unknown until it has been read to EOF. Closing
// the reader early stops the writer.
func Stream(ctx context.Context, entries []Entry, opts Options) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(Write(ctx, pw, entries, opts))
	}()
	return pr
}

// isHidden reports dot-files; "." and ".." are not hidden.
func isHidden(name string) bool {
	return name != "." && name != ".." && strings.HasPrefix(name, ".")
}

// shouldIncludeFile determines if a file should be included based on patterns:
//   - with include patterns, only matching files are kept
//   - otherwise files matching an exclude pattern are dropped
func shouldIncludeFile(fileName string, includePatterns, excludePatterns []string) bool {
	if len(includePatterns) > 0 {
		for _, pattern := range includePatterns {
			matched, err := filepath.Match(pattern, fileName)
			if err == nil && matched {
				return true
			}
		}
		return false
	}
	for _, pattern := range excludePatterns {
		matched, err := filepath.Match(pattern, fileName)
		if err == nil && matched {
			return false
		}
	}
	return true
}

// ArchiveName picks the blob name for a bundle of paths: the single root's
// base name, or "bundle" for several, plus the extension for opts.
func ArchiveName(paths []string, opts Options) string {
	name := "bundle"
	if len(paths) == 1 {
		name = filepath.Base(filepath.Clean(paths[0]))
		name = strings.TrimPrefix(name, ".")
		if name == "" || name == string(os.PathSeparator) {
			name = "bundle"
		}
	}
	if opts.Compression == CompressionNone {
		return name + ".tar"
	}
	return name + ".tar.gz"
}
