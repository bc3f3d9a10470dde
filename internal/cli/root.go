// Package cli implements the novatile command line.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tuannm99/novatile/internal"
	"github.com/tuannm99/novatile/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DataDir    string
	Verbose    bool

	cfg *internal.NovaTileConfig
}

// NewRootCommand creates the root command for the novatile CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "novatile",
		Short: "novatile - local multi-dimensional array store",
		Long:  "Create, inspect, import into and export from dense and sparse arrays on local disk.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (yaml)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory (overrides storage.workdir)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewFragmentsCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewMetaCommand(opts))

	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := internal.LoadConfig(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.DataDir != "" {
		cfg.Storage.Workdir = o.DataDir
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	o.cfg = cfg
	return nil
}

// withEngine opens the engine over the configured data dir for one command.
func (o *RootOptions) withEngine(fn func(e *engine.Engine) error) error {
	e, err := engine.New(o.cfg.Storage.Workdir, engine.Options{
		PageCacheCapacity: o.cfg.Storage.PageCacheCapacity,
		AsyncWorkers:      o.cfg.Query.AsyncWorkers,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			slog.Warn("cli: engine close", "err", cerr)
		}
	}()
	return fn(e)
}
