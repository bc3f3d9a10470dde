package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuannm99/novatile/internal/engine"
	"github.com/tuannm99/novatile/internal/filestore"
)

func (o *RootOptions) fileStore(e *engine.Engine) *filestore.Store {
	return filestore.New(e,
		filestore.WithChunkSize(o.cfg.Query.ChunkBytes),
		filestore.WithMaxZeroProgressRounds(o.cfg.Query.MaxZeroProgressRounds),
	)
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var opts filestore.ImportOptions
	cmd := &cobra.Command{
		Use:   "import <file> <uri>",
		Short: "Store a file as a dense byte array",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withEngine(func(e *engine.Engine) error {
				fs := rootOpts.fileStore(e)
				if err := fs.ImportFile(cmd.Context(), args[1], args[0], opts); err != nil {
					return err
				}
				info, err := fs.Info(args[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %s -> %s (%d bytes, %s, tile extent %d)\n",
					args[0], args[1], info.Size, info.MimeType, filestore.TileExtent(info.Size))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&opts.MimeType, "mime-type", "", "content type (default: detected)")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "replace an existing array")
	return cmd
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var offset, length uint64
	cmd := &cobra.Command{
		Use:   "export <uri> <file>",
		Short: "Write a stored file back to disk, or a byte range of it to stdout",
		Long: `Write a stored file back to disk.

With --length the byte range [offset, offset+length) is written to the
file instead; use "-" as the file to write to stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withEngine(func(e *engine.Engine) error {
				fs := rootOpts.fileStore(e)
				uri, path := args[0], args[1]
				if length == 0 && path != "-" {
					n, err := fs.ExportFile(cmd.Context(), uri, path)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.ErrOrStderr(), "exported %s -> %s (%d bytes)\n", uri, path, n)
					return err
				}
				if length == 0 {
					_, err := fs.Export(cmd.Context(), uri, cmd.OutOrStdout())
					return err
				}
				if path == "-" {
					_, err := fs.ReadRange(cmd.Context(), uri, offset, length, cmd.OutOrStdout())
					return err
				}
				return writeRange(cmd, fs, uri, path, offset, length)
			})
		},
	}
	cmd.Flags().Uint64Var(&offset, "offset", 0, "first byte of the range")
	cmd.Flags().Uint64Var(&length, "length", 0, "bytes in the range (0: whole file)")
	return cmd
}

func writeRange(cmd *cobra.Command, fs *filestore.Store, uri, path string, offset, length uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	_, err = fs.ReadRange(cmd.Context(), uri, offset, length, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
