package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/siori-go/internal/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "siori", buildinfo.VersionWithTags())
			return err
		},
	}
}
