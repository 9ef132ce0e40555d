package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paveg/escalation/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var (
		format   string
		showDeps bool
	)
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Info()
			if !showDeps {
				info.Deps = nil
			}
			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			case "pretty", "":
				fmt.Fprint(out, info.String())
				if showDeps {
					for _, dep := range info.Deps {
						fmt.Fprintf(out, "  %s %s\n", dep.Path, dep.Version)
					}
				}
				return nil
			default:
				return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "pretty", "output format (pretty|json)")
	cmd.Flags().BoolVar(&showDeps, "deps", false, "list module dependencies")
	return cmd
}
