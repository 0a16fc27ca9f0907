package cli

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/fossMeDaddy/sfs-cli/internal/cloud"
	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	encryption "github.com/fossMeDaddy/sfs-cli/internal/crypto"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/progress"
	"github.com/fossMeDaddy/sfs-cli/internal/transfer"
	"github.com/fossMeDaddy/sfs-cli/internal/util/sanitize"
	strutil "github.com/fossMeDaddy/sfs-cli/internal/util/strings"
	"github.com/fossMeDaddy/sfs-cli/internal/util/tar"
)

// uploadFlags holds the flags of the upload command.
type uploadFlags struct {
	name        string
	dirPath     string
	public      bool
	force       bool
	contentType string
	cacheMaxAge time.Duration
	encrypt     bool
	recursive   bool
	parallel    int
	include     []string
	exclude     []string
	noCompress  bool
	skipHidden  bool
	yes         bool
	expiresAt   string
	ttl         time.Duration

	// deleteAt is resolved from expiresAt or ttl before any upload starts.
	deleteAt *time.Time
}

// resolveExpiry validates --expires-at and --ttl against now.
func (f *uploadFlags) resolveExpiry(now time.Time) error {
	switch {
	case f.expiresAt != "" && f.ttl != 0:
		return fmt.Errorf("--expires-at and --ttl cannot be used together")
	case f.expiresAt != "":
		at, err := time.Parse(time.RFC3339, f.expiresAt)
		if err != nil {
			return fmt.Errorf("invalid --expires-at %q: want RFC 3339, e.g. 2026-01-02T15:04:05Z", f.expiresAt)
		}
		if !at.After(now) {
			return fmt.Errorf("--expires-at %s is not in the future", f.expiresAt)
		}
		at = at.UTC()
		f.deleteAt = &at
	case f.ttl < 0:
		return fmt.Errorf("--ttl must be positive")
	case f.ttl > 0:
		at := now.Add(f.ttl).UTC().Truncate(time.Second)
		f.deleteAt = &at
	}
	return nil
}

// metadata builds the upload metadata for one blob.
func (f *uploadFlags) metadata(name, dirPath, contentType string) models.UploadBlobMetadata {
	md := models.UploadBlobMetadata{
		Name:        sanitize.Name(name),
		ContentType: contentType,
		IsPublic:    f.public,
		DirPath:     sanitize.DirPath(dirPath),
		ForceWrite:  f.force,
		DeletedAt:   f.deleteAt,
	}
	if f.cacheMaxAge > 0 {
		md.CacheMaxAgeSeconds = int(f.cacheMaxAge / time.Second)
	}
	return md
}

func (f *uploadFlags) tarOptions() tar.Options {
	opts := tar.Options{
		Include:     f.include,
		Exclude:     f.exclude,
		Compression: tar.CompressionGzip,
		SkipHidden:  f.skipHidden,
	}
	if f.noCompress {
		opts.Compression = tar.CompressionNone
	}
	return opts
}

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	flags := &uploadFlags{}

	cmd := &cobra.Command{
		Use:   "upload [path...]",
		Short: "Upload files, directories or stdin",
		Long: `Upload one or more local paths.

A single file is uploaded as-is; large files go up in parallel parts.
Several paths, or a directory, are bundled into one tar.gz blob unless
--recursive is given, in which case every file is uploaded on its own
and the directory structure is recreated under --dir.

With no path, or "-", the blob is read from stdin.

Examples:
  sfs upload report.pdf
  sfs upload --encrypt --name backup.tar.gz ./project
  sfs upload --recursive --dir /photos ./2024
  sfs upload --ttl 24h --public share.zip
  pg_dump db | sfs upload --name db.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(GetContext(), cmd, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.name, "name", "n", "", "Name to save the blob as (default: file name, or a random name for stdin)")
	cmd.Flags().StringVar(&flags.dirPath, "dir", "", "Remote directory to upload into")
	cmd.Flags().BoolVar(&flags.public, "public", false, "Mark the uploaded blob(s) public")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Overwrite an existing blob at the same path")
	cmd.Flags().StringVar(&flags.contentType, "content-type", "", "MIME type (default: guessed from the file extension)")
	cmd.Flags().DurationVar(&flags.cacheMaxAge, "cache-max-age", 0, "CDN cache max-age, e.g. 1h30m")
	cmd.Flags().BoolVar(&flags.encrypt, "encrypt", false, "Encrypt client-side (password from $PASSWORD or prompt)")
	cmd.Flags().BoolVarP(&flags.recursive, "recursive", "r", false, "Upload every file separately, recreating directories")
	cmd.Flags().IntVar(&flags.parallel, "parallel", constants.DefaultParallelFiles, "Files uploaded at once with --recursive")
	cmd.Flags().StringSliceVar(&flags.include, "include", nil, "Only include files matching these patterns")
	cmd.Flags().StringSliceVar(&flags.exclude, "exclude", nil, "Exclude files matching these patterns")
	cmd.Flags().BoolVar(&flags.noCompress, "no-compress", false, "Bundle as plain tar instead of tar.gz")
	cmd.Flags().BoolVar(&flags.skipHidden, "skip-hidden", false, "Leave out dot-files inside directories")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().StringVar(&flags.expiresAt, "expires-at", "", "Delete the blob(s) at this RFC 3339 time")
	cmd.Flags().DurationVar(&flags.ttl, "ttl", 0, "Delete the blob(s) after this long, e.g. 72h")
	cmd.MarkFlagsMutuallyExclusive("expires-at", "ttl")

	return cmd
}

func runUpload(ctx context.Context, cmd *cobra.Command, flags *uploadFlags, args []string) error {
	if err := flags.resolveExpiry(time.Now()); err != nil {
		return err
	}

	password := ""
	if flags.encrypt {
		var err error
		if password, err = uploadPassword(); err != nil {
			return err
		}
	}

	engine, _, err := newEngine(ctx, password)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		return uploadStdin(ctx, engine, flags, cmd.InOrStdin(), out)
	}

	paths, err := expandGlobPatterns(args)
	if err != nil {
		return err
	}

	if flags.recursive {
		return uploadRecursive(ctx, engine, flags, paths, cmd.InOrStdin(), out)
	}

	if len(paths) == 1 {
		info, err := os.Stat(paths[0])
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", paths[0], err)
		}
		if !info.IsDir() {
			return uploadFile(ctx, engine, flags, paths[0], info.Size(), out)
		}
	}
	return uploadBundle(ctx, engine, flags, paths, cmd.InOrStdin(), out)
}

// detectContentType guesses a MIME type from a file name.
func detectContentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return constants.UnknownMimeType
}

// untitledName generates a name for unnamed stdin uploads.
func untitledName() (string, error) {
	suffix, err := encryption.GenerateSecureRandomString(constants.RandomNameLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate name: %w", err)
	}
	return constants.UntitledPrefix + suffix, nil
}

func uploadFile(ctx context.Context, engine *transfer.Engine, flags *uploadFlags, localPath string, size int64, out io.Writer) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	name := flags.name
	if name == "" {
		name = filepath.Base(localPath)
	}
	contentType := flags.contentType
	if contentType == "" {
		contentType = detectContentType(name)
	}

	bar := progress.NewBar(size, name)
	start := time.Now()
	file, err := engine.WithProgress(bar).Upload(ctx,
		transfer.Source{Reader: f, Size: size},
		flags.metadata(name, flags.dirPath, contentType))
	bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	printUploaded(out, file, flags.dirPath, time.Since(start))
	return nil
}

func uploadStdin(ctx context.Context, engine *transfer.Engine, flags *uploadFlags, in io.Reader, out io.Writer) error {
	name := flags.name
	if name == "" {
		var err error
		if name, err = untitledName(); err != nil {
			return err
		}
	}
	contentType := flags.contentType
	if contentType == "" {
		contentType = detectContentType(name)
	}

	bar := progress.NewBar(-1, name)
	start := time.Now()
	file, err := engine.WithProgress(bar).Upload(ctx,
		transfer.Source{Reader: in, Size: -1},
		flags.metadata(name, flags.dirPath, contentType))
	bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to upload stdin: %w", err)
	}
	printUploaded(out, file, flags.dirPath, time.Since(start))
	return nil
}

// uploadBundle streams paths as one tar archive. The archive is already
// compressed, so unless a password is set it is marked as not to be decrypted.
func uploadBundle(ctx context.Context, engine *transfer.Engine, flags *uploadFlags, paths []string, in io.Reader, out io.Writer) error {
	opts := flags.tarOptions()
	entries, err := tar.Collect(paths, opts)
	if err != nil {
		return err
	}
	files, size := tar.TotalSize(entries)
	if files == 0 {
		return fmt.Errorf("no files match the given paths and patterns")
	}

	fmt.Fprintf(os.Stderr, "Bundling %s, %s\n", strutil.Count(files, "file"), cloud.FormatBytes(size))
	if !flags.yes && len(paths) > 1 {
		ok, err := confirmIfTerminal(in, fmt.Sprintf("Upload %s as one archive?", strutil.Count(files, "file")))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted upload.")
			return nil
		}
	}

	name := flags.name
	if name == "" {
		name = tar.ArchiveName(paths, opts)
	}
	contentType := constants.ArchiveMimeType
	if opts.Compression == tar.CompressionNone {
		contentType = constants.TarMimeType
	}
	md := flags.metadata(name, flags.dirPath, contentType)
	md.Encryption = models.Plaintext()

	// Stops the tar writer if the upload returns before reading to EOF.
	bundleCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rc := tar.Stream(bundleCtx, entries, opts)
	defer rc.Close()

	bar := progress.NewBar(-1, name)
	start := time.Now()
	file, err := engine.WithProgress(bar).Upload(ctx, transfer.Source{Reader: rc, Size: -1}, md)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to upload bundle: %w", err)
	}
	printUploaded(out, file, flags.dirPath, time.Since(start))
	return nil
}

// uploadRecursive uploads every file separately, at most flags.parallel at
// a time, keeping each file's directory relative to its root under --dir.
func uploadRecursive(ctx context.Context, engine *transfer.Engine, flags *uploadFlags, paths []string, in io.Reader, out io.Writer) error {
	if flags.name != "" {
		return fmt.Errorf("--name cannot be used with --recursive")
	}
	if flags.parallel < 1 || flags.parallel > constants.MaxConcurrency {
		return fmt.Errorf("--parallel must be between 1 and %d, got %d", constants.MaxConcurrency, flags.parallel)
	}

	entries, err := tar.Collect(paths, flags.tarOptions())
	if err != nil {
		return err
	}
	var regular []tar.Entry
	for _, e := range entries {
		if e.Info.Mode().IsRegular() {
			regular = append(regular, e)
		}
	}
	if len(regular) == 0 {
		return fmt.Errorf("no files match the given paths and patterns")
	}

	_, size := tar.TotalSize(regular)
	if !flags.yes {
		ok, err := confirmIfTerminal(in, fmt.Sprintf("Upload %s (%s) to %q?", strutil.Count(len(regular), "file"), cloud.FormatBytes(size), remoteDir(flags.dirPath)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted upload.")
			return nil
		}
	}

	ui := progress.NewTransferUI("Uploading", len(regular))
	var (
		mu       sync.Mutex
		failures []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flags.parallel)
	for _, e := range regular {
		e := e
		g.Go(func() error {
			bar := ui.AddFileBar(e.Path, e.Info.Size())
			dir := path.Join(flags.dirPath, path.Dir(e.Name))
			if dir == "." {
				dir = ""
			}
			storageID, err := uploadEntry(gctx, engine.WithProgress(bar), flags, e, dir)
			bar.Complete(storageID, err)
			if err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", e.Path, err))
				mu.Unlock()
			}
			// One failed file does not stop the others.
			return nil
		})
	}
	_ = g.Wait()
	ui.Wait()

	completed, failed := ui.Counts()
	fmt.Fprintf(out, "\n%s uploaded, %d failed\n", strutil.Count(completed, "file"), failed)
	if len(failures) > 0 {
		return fmt.Errorf("some files failed to upload:\n%s", strings.Join(failures, "\n"))
	}
	return ctx.Err()
}

func uploadEntry(ctx context.Context, engine *transfer.Engine, flags *uploadFlags, e tar.Entry, dir string) (string, error) {
	f, err := os.Open(e.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	name := path.Base(e.Name)
	contentType := flags.contentType
	if contentType == "" {
		contentType = detectContentType(name)
	}
	file, err := engine.Upload(ctx, transfer.Source{Reader: f, Size: e.Info.Size()}, flags.metadata(name, dir, contentType))
	if err != nil {
		return "", err
	}
	return file.StorageID, nil
}

// confirmIfTerminal asks for confirmation when stdin is interactive and
// assumes yes otherwise.
func confirmIfTerminal(in io.Reader, question string) (bool, error) {
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return true, nil
	}
	return confirm(in, os.Stderr, question)
}

func remoteDir(dir string) string {
	if dir == "" {
		return "/"
	}
	return dir
}

func printUploaded(out io.Writer, file *models.FsFile, dir string, elapsed time.Duration) {
	fmt.Fprintf(out, "Uploaded %s (%s in %s, %s)\n",
		path.Join(remoteDir(dir), file.Name),
		cloud.FormatBytes(file.FileSize),
		elapsed.Round(time.Millisecond),
		cloud.FormatSpeed(throughput(file.FileSize, elapsed)))
	fmt.Fprintf(out, "Storage ID: %s\n", file.StorageID)
	if file.DeletedAt != nil {
		fmt.Fprintf(out, "Expires: %s\n", file.DeletedAt.Format(time.RFC3339))
	}
	if file.IsEncrypted {
		fmt.Fprintln(out, "Encrypted: yes (keep your password, it cannot be recovered)")
	}
}

func throughput(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

// expandGlobPatterns expands glob patterns like *.zip, even when quoted.
// Returns a deduplicated list of paths.
func expandGlobPatterns(patterns []string) ([]string, error) {
	var expanded []string
	seen := make(map[string]bool)

	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", p, err)
		}
		if !seen[abs] {
			expanded = append(expanded, abs)
			seen[abs] = true
		}
		return nil
	}

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[]") {
			if _, err := os.Stat(pattern); err != nil {
				return nil, fmt.Errorf("path not found: %s", pattern)
			}
			if err := add(pattern); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", pattern)
		}
		for _, m := range matches {
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}
	return expanded, nil
}
