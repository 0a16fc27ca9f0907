package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fossMeDaddy/sfs-cli/internal/cloud"
	"github.com/fossMeDaddy/sfs-cli/internal/diskspace"
	"github.com/fossMeDaddy/sfs-cli/internal/models"
	"github.com/fossMeDaddy/sfs-cli/internal/pathutil"
	"github.com/fossMeDaddy/sfs-cli/internal/progress"
	"github.com/fossMeDaddy/sfs-cli/internal/transfer"
	"github.com/fossMeDaddy/sfs-cli/internal/util/paths"
	strutil "github.com/fossMeDaddy/sfs-cli/internal/util/strings"
	"github.com/fossMeDaddy/sfs-cli/internal/validation"
	"github.com/fossMeDaddy/sfs-cli/internal/xerrors"
)

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var (
		outPath string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "download <storage-id>...",
		Short: "Download one or more blobs",
		Long: `Download blobs by storage ID.

A single blob is written to --output, or to its stored name in the current
directory. With several storage IDs --output names a directory; blobs that
would land on the same file get their storage ID appended to the name.

Encrypted blobs are decrypted with the password from $PASSWORD or a
prompt. Use "-o -" to write a single blob to stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			if len(args) > 1 {
				if outPath == "-" {
					return fmt.Errorf("cannot write %d blobs to stdout", len(args))
				}
				return downloadMany(ctx, args, outPath, force, cmd.OutOrStdout())
			}
			engine, file, err := statForDownload(ctx, args[0])
			if err != nil {
				return err
			}
			if outPath == "-" {
				return engine.DownloadFile(ctx, file, cmd.OutOrStdout())
			}
			return downloadToFile(ctx, engine, file, outPath, force, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file, or directory for several blobs (default: the blob's name)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing output files")

	return cmd
}

// newCatCmd creates the 'cat' command.
func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <storage-id>",
		Short: "Print a blob to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			engine, file, err := statForDownload(ctx, args[0])
			if err != nil {
				return err
			}
			return engine.DownloadFile(ctx, file, cmd.OutOrStdout())
		},
	}
}

// newStatCmd creates the 'stat' command.
func newStatCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stat <storage-id>",
		Short: "Show a blob's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := newEngine(GetContext(), "")
			if err != nil {
				return err
			}
			file, err := engine.Stat(GetContext(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(file)
			}
			printFile(cmd.OutOrStdout(), file)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the metadata as JSON")
	return cmd
}

// statForDownload fetches a blob's metadata and, when the blob is
// encrypted, returns an engine carrying the decryption password.
func statForDownload(ctx context.Context, storageID string) (*transfer.Engine, *models.FsFile, error) {
	engine, _, err := newEngine(ctx, "")
	if err != nil {
		return nil, nil, err
	}
	files, err := statAll(ctx, engine, []string{storageID})
	if err != nil {
		return nil, nil, err
	}
	if files[0].IsEncrypted {
		password, err := downloadPassword()
		if err != nil {
			return nil, nil, err
		}
		engine = engine.WithPassword(password)
	}
	return engine, files[0], nil
}

func statAll(ctx context.Context, engine *transfer.Engine, storageIDs []string) ([]*models.FsFile, error) {
	files := make([]*models.FsFile, 0, len(storageIDs))
	for _, id := range storageIDs {
		file, err := engine.Stat(ctx, id)
		if err != nil {
			if errors.Is(err, xerrors.ErrNotFound) {
				return nil, fmt.Errorf("no blob with storage ID %s", id)
			}
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

// downloadMany downloads several blobs into dir one after another. A
// failed blob is reported and the rest are still attempted. The password
// is asked for once, on the first encrypted blob.
func downloadMany(ctx context.Context, storageIDs []string, dir string, force bool, out io.Writer) error {
	engine, _, err := newEngine(ctx, "")
	if err != nil {
		return err
	}
	files, err := statAll(ctx, engine, storageIDs)
	if err != nil {
		return err
	}

	if dir == "" {
		dir = "."
	}
	if dir, err = pathutil.ResolveAbsolutePath(dir); err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	targets := make([]paths.Target, 0, len(files))
	var total int64
	for _, f := range files {
		local := filepath.Join(dir, localName(f))
		if err := validation.ValidatePathInDirectory(local, dir); err != nil {
			return err
		}
		targets = append(targets, paths.Target{File: f, LocalPath: local})
		total += f.FileSize
	}
	if n := paths.ResolveCollisions(targets); n > 0 {
		fmt.Fprintf(os.Stderr, "%s share a name, storage IDs appended\n", strutil.Count(n, "blob"))
	}
	if err := diskspace.CheckAvailableSpace(targets[0].LocalPath, total, diskspace.DefaultSafetyMargin); err != nil {
		return err
	}

	var (
		decrypting *transfer.Engine
		failures   []string
	)
	for _, t := range targets {
		e := engine
		if t.File.IsEncrypted {
			if decrypting == nil {
				password, err := downloadPassword()
				if err != nil {
					return err
				}
				decrypting = engine.WithPassword(password)
			}
			e = decrypting
		}
		if err := downloadToFile(ctx, e, t.File, t.LocalPath, force, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			GetLogger().Error().Err(err).Str("storage_id", t.File.StorageID).Msg("Download failed")
			failures = append(failures, fmt.Sprintf("%s: %v", t.File.StorageID, err))
		}
	}

	fmt.Fprintf(out, "\n%s downloaded, %d failed\n", strutil.Count(len(targets)-len(failures), "blob"), len(failures))
	if len(failures) > 0 {
		return fmt.Errorf("some blobs failed to download:\n%s", strings.Join(failures, "\n"))
	}
	return nil
}

// downloadToFile writes into a temporary file next to the target and
// renames it into place once the download is complete and verified.
func downloadToFile(ctx context.Context, engine *transfer.Engine, file *models.FsFile, outPath string, force bool, out io.Writer) error {
	name := localName(file)
	if outPath == "" {
		outPath = name
	}
	outPath, err := pathutil.ResolveAbsolutePath(outPath)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}
	if info, err := os.Stat(outPath); err == nil {
		if info.IsDir() {
			outPath = filepath.Join(outPath, name)
		} else if !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", outPath)
		}
	}
	if err := diskspace.CheckAvailableSpace(outPath, file.FileSize, diskspace.DefaultSafetyMargin); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), "."+filepath.Base(outPath)+".*.partial")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	bar := progress.NewBar(file.FileSize, file.Name)
	start := time.Now()
	err = engine.WithProgress(bar).DownloadFile(ctx, file, tmp)
	bar.Finish()
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output file: %w", cerr)
	}
	if err != nil {
		if errors.Is(err, xerrors.ErrAuthentication) {
			return fmt.Errorf("decryption failed (wrong password or corrupted data): %w", err)
		}
		if diskspace.IsDiskFullError(err) {
			return fmt.Errorf("disk full while writing %s: %w", outPath, err)
		}
		return err
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	elapsed := time.Since(start)
	fmt.Fprintf(out, "Downloaded %s to %s (%s in %s, %s)\n",
		file.Name, outPath,
		cloud.FormatBytes(file.FileSize),
		elapsed.Round(time.Millisecond),
		cloud.FormatSpeed(throughput(file.FileSize, elapsed)))
	return nil
}

// localName is the blob's stored name when it is safe to use as a local
// filename, else its storage ID.
func localName(file *models.FsFile) string {
	name := filepath.Base(file.Name)
	if err := validation.ValidateFilename(name); err != nil || name == "." {
		return file.StorageID
	}
	return name
}

func printFile(out io.Writer, file *models.FsFile) {
	fmt.Fprintf(out, "Name:       %s\n", file.Name)
	fmt.Fprintf(out, "Storage ID: %s\n", file.StorageID)
	fmt.Fprintf(out, "Size:       %s (%d bytes)\n", cloud.FormatBytes(file.FileSize), file.FileSize)
	fmt.Fprintf(out, "Type:       %s\n", file.FileType)
	fmt.Fprintf(out, "Public:     %t\n", file.IsPublic)
	fmt.Fprintf(out, "Encrypted:  %t\n", file.IsEncrypted)
	if !file.CreatedAt.IsZero() {
		fmt.Fprintf(out, "Created:    %s\n", file.CreatedAt.Format(time.RFC3339))
	}
	if file.DeletedAt != nil {
		fmt.Fprintf(out, "Expires:    %s\n", file.DeletedAt.Format(time.RFC3339))
	}
}
