package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/abhishek0-0/healthsec-CTF/internal/mission"
)

func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Mission catalog tools",
	}
	cmd.AddCommand(newCatalogValidateCommand(rootOpts))
	cmd.AddCommand(newCatalogListCommand(rootOpts))
	return cmd
}

type catalogResult struct {
	Valid   bool              `json:"valid"`
	Version string            `json:"version,omitempty"`
	Pages   []mission.Summary `json:"pages,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func newCatalogValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [catalog.yaml]",
		Short: "Validate a catalog file (the embedded one when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := mission.Load(path)
			if err != nil {
				_ = rootOpts.emit(cmd.OutOrStdout(), catalogResult{Error: err.Error()}, func(w io.Writer) {
					fmt.Fprintln(w, "invalid catalog")
				})
				return err
			}
			res := catalogResult{Valid: true, Version: cat.Version}
			return rootOpts.emit(cmd.OutOrStdout(), res, func(w io.Writer) {
				fmt.Fprintf(w, "catalog ok: version %s, %d pages\n", cat.Version, len(cat.Pages))
			})
		},
	}
}

func newCatalogListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [catalog.yaml]",
		Short: "List catalog pages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := mission.Load(path)
			if err != nil {
				return err
			}
			res := catalogResult{Valid: true, Version: cat.Version, Pages: cat.List()}
			return rootOpts.emit(cmd.OutOrStdout(), res, func(w io.Writer) {
				for _, p := range res.Pages {
					gate := ""
					if p.Gated {
						gate = " gated"
					}
					if p.Stub {
						gate = " stub"
					}
					fmt.Fprintf(w, "%-10s %-14s %d steps%s\n", p.ID, p.Route, p.Steps, gate)
				}
			})
		},
	}
}
