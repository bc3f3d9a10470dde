package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuannm99/novatile/internal/engine"
	"github.com/tuannm99/novatile/internal/metadata"
	"github.com/tuannm99/novatile/internal/query"
)

// NewMetaCommand creates the meta command group.
func NewMetaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Read and write array metadata as JSON",
	}
	cmd.AddCommand(newMetaListCommand(rootOpts))
	cmd.AddCommand(newMetaGetCommand(rootOpts))
	cmd.AddCommand(newMetaPutJSONCommand(rootOpts))
	return cmd
}

func (o *RootOptions) withArray(uri string, mode query.Type, fn func(arr *engine.Array) error) error {
	return o.withEngine(func(e *engine.Engine) error {
		arr, err := e.OpenArray(uri, mode)
		if err != nil {
			return err
		}
		defer func() { _ = arr.Close() }()
		return fn(arr)
	})
}

func newMetaListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <uri>",
		Short: "Print every metadata entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withArray(args[0], query.Read, func(arr *engine.Array) error {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), string(metadata.AllJSON(arr)))
				return err
			})
		},
	}
}

func newMetaGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <uri> <key>",
		Short: "Print one metadata entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withArray(args[0], query.Read, func(arr *engine.Array) error {
				b, ok := metadata.GetJSON(arr, args[1])
				if !ok {
					return fmt.Errorf("%w: %s", engine.ErrMetadataNotFound, args[1])
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return err
			})
		},
	}
}

func newMetaPutJSONCommand(rootOpts *RootOptions) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "put-json <uri> <file|->",
		Short: "Apply a metadata JSON payload; malformed items are skipped",
		Long: `Apply a {"metadata": [item, ...]} payload, or with --key a single item.

Items that fail validation are logged and skipped; the rest are stored.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			return rootOpts.withArray(args[0], query.Write, func(arr *engine.Array) error {
				stored := 0
				if key != "" {
					if metadata.PutJSONForKey(arr, key, payload) {
						stored = 1
					}
				} else {
					stored = metadata.PutJSON(arr, payload)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "stored %d item(s)\n", stored)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "store a single item under this key")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
