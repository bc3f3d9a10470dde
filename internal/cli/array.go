package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/engine"
	"github.com/tuannm99/novatile/internal/query"
	"github.com/tuannm99/novatile/internal/schema"
)

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "create <uri> --schema <file.yaml>",
		Short: "Create an array from a YAML schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readSchemaFile(schemaPath)
			if err != nil {
				return err
			}
			return rootOpts.withEngine(func(e *engine.Engine) error {
				if err := e.CreateArray(args[0], s); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s, %d dims, %d attrs)\n",
					args[0], s.ArrayType(), s.Domain().NDim(), s.NAttr())
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "schema definition file")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <uri>",
		Short: "Print an array schema as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withEngine(func(e *engine.Engine) error {
				s, err := e.ArraySchema(args[0])
				if err != nil {
					return err
				}
				b, err := schema.Marshal(s)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return err
			})
		},
	}
}

// NewFragmentsCommand creates the fragments command.
func NewFragmentsCommand(rootOpts *RootOptions) *cobra.Command {
	var at uint64
	cmd := &cobra.Command{
		Use:   "fragments <uri>",
		Short: "List the fragments visible at a timestamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withEngine(func(e *engine.Engine) error {
				var opts []engine.OpenOption
				if at > 0 {
					opts = append(opts, engine.WithTimestamp(at))
				}
				arr, err := e.OpenArray(args[0], query.Read, opts...)
				if err != nil {
					return err
				}
				defer func() { _ = arr.Close() }()
				frags, err := arr.Fragments()
				if err != nil {
					return err
				}
				return printFragments(cmd.OutOrStdout(), arr.Schema(), frags)
			})
		},
	}
	cmd.Flags().Uint64Var(&at, "timestamp", 0, "view timestamp in ms (default: latest)")
	return cmd
}

func printFragments(out io.Writer, s *schema.Schema, frags []engine.FragmentInfo) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tWRITTEN\tCELLS\tNON-EMPTY DOMAIN")
	dims := s.Domain().Dimensions()
	for _, f := range frags {
		kind := "sparse"
		if f.Dense {
			kind = "dense"
		}
		bounds := make([]string, len(f.NonEmptyDomain))
		for i, b := range f.NonEmptyDomain {
			dt := dims[i].Type()
			bounds[i] = fmt.Sprintf("[%s, %s]", datatype.Format(dt, b[0]), datatype.Format(dt, b[1]))
		}
		written := time.UnixMilli(int64(f.TimestampEnd)).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", f.Name, kind, written, f.CellNum, strings.Join(bounds, " x "))
	}
	return tw.Flush()
}
