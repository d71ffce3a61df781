package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abhishek0-0/healthsec-CTF/internal/ops"
)

func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the data directory as .tar.gz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				ts := rootOpts.now().UTC().Format("20060102T150405Z")
				out = filepath.Join("backups", "ghia-"+ts+".tar.gz")
			}
			if err := ops.BackupDataDir(cmd.Context(), rootOpts.DataDir, out); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			return rootOpts.emit(cmd.OutOrStdout(), map[string]string{"archive": out}, func(w io.Writer) {
				fmt.Fprintln(w, out)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output archive path (.tar.gz)")
	return cmd
}

func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	var archive, target string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Unpack a backup archive into a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if archive == "" {
				return fmt.Errorf("--archive is required")
			}
			if err := ops.RestoreDataDir(archive, target); err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			return rootOpts.emit(cmd.OutOrStdout(), map[string]string{"restored": target}, func(w io.Writer) {
				fmt.Fprintln(w, "restored:", target)
			})
		},
	}
	cmd.Flags().StringVar(&archive, "archive", "", "input backup archive (.tar.gz)")
	cmd.Flags().StringVar(&target, "target-dir", "data-restored", "restore target directory")
	return cmd
}

func NewDrillCommand(rootOpts *RootOptions) *cobra.Command {
	var workDir string
	cmd := &cobra.Command{
		Use:   "drill",
		Short: "Back up, restore and compare the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := ops.Drill(cmd.Context(), rootOpts.DataDir, workDir, rootOpts.now())
			if err != nil {
				return fmt.Errorf("drill failed: %w", err)
			}
			return rootOpts.emit(cmd.OutOrStdout(), rep, func(w io.Writer) {
				fmt.Fprintln(w, "backup:", rep.Archive)
				fmt.Fprintln(w, "restored:", rep.RestoreDir)
				fmt.Fprintln(w, "agents:", rep.Restored.Agents)
				fmt.Fprintln(w, "digest:", rep.Restored.Digest)
			})
		},
	}
	cmd.Flags().StringVar(&workDir, "work-dir", os.TempDir(), "temporary workspace for drill artifacts")
	return cmd
}

func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show the storage driver and registered agent count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := ops.Inspect(cmd.Context(), rootOpts.DataDir)
			if err != nil {
				return fmt.Errorf("inspect failed: %w", err)
			}
			return rootOpts.emit(cmd.OutOrStdout(), inv, func(w io.Writer) {
				fmt.Fprintf(w, "driver: %s\nagents: %d\nfiles: %d\n", inv.Driver, inv.Agents, inv.Files)
			})
		},
	}
}
