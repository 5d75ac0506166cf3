package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marmos91/dittodir/pkg/backup"
	"github.com/marmos91/dittodir/pkg/config"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/spf13/cobra"
)

func newInitCommand(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a default configuration file to the --config path, or to
$XDG_CONFIG_HOME/dittodir/config.yaml when no path is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.GetDefaultConfigPath()
			}
			if err := config.InitConfigToPath(path, force); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newCheckCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Open the partition, run recovery and report its size",
		Long: `Open the partition as the server would: the backing store is scanned,
recovered if a previous run was interrupted, and checked for consistency.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			s, err := opts.openPartition(ctx)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.Close(ctx)) }()

			count, err := s.partition.Count(ctx)
			if err != nil {
				return err
			}
			size, err := s.partition.Size(ctx)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "partition %s (%s, %s store): %d entries, %d bytes\n",
				s.partition.ID(), s.partition.Suffix(), s.cfg.Partition.Store.Type, count, size)
			return nil
		},
	}
}

func newImportCommand(opts *globalOptions) *cobra.Command {
	var (
		skipExisting bool
		rate         uint
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Add the entries of an LDIF file to the partition",
		Long: `Add the entries of an LDIF content file ("-" reads standard input).
Parents are added before their children whatever the order of the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				r = f
			}

			s, err := opts.openPartition(ctx)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.Close(ctx)) }()

			res, err := backup.Import(ctx, s.partition, r, backup.ImportOptions{
				SkipExisting:  skipExisting,
				RatePerSecond: rate,
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries (%d skipped)\n", res.Added, res.Skipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "skip entries that already exist instead of failing")
	cmd.Flags().UintVar(&rate, "rate", 0, "maximum entries added per second (0 = unlimited)")
	return cmd
}

func newExportCommand(opts *globalOptions) *cobra.Command {
	var base, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the partition (or a subtree) as LDIF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()

			var baseDN dn.DN
			if base != "" {
				if baseDN, err = dn.Parse(base); err != nil {
					return err
				}
			}

			opts.logToStderr = output == "" || output == "-"
			s, err := opts.openPartition(ctx)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.Close(ctx)) }()

			w := cmd.OutOrStdout()
			if !opts.logToStderr {
				var f *os.File
				if f, err = os.Create(output); err != nil {
					return err
				}
				defer func() { err = errors.Join(err, f.Close()) }()
				w = f
			}

			n, err := backup.Export(ctx, s.partition, baseDN, w)
			if err != nil {
				return err
			}
			if !opts.logToStderr {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", n, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "", "export only the subtree rooted at this DN (default: the suffix)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: standard output)")
	return cmd
}

func newBackupCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Store an LDIF snapshot of the partition on the backup target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			s, err := opts.openPartition(ctx)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.Close(ctx)) }()

			target, err := config.CreateBackupTarget(ctx, &s.cfg.Backup)
			if err != nil {
				return err
			}

			res, err := backup.Run(ctx, s.partition, s.partition.ID(), target, s.metrics.Backup, time.Now())
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stored %s on %s target (%d entries, %d bytes)\n",
				res.Name, target.Type(), res.Entries, res.Bytes)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dittodir %s (commit %s)\n", version, commit)
		},
	}
}
