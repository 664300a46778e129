package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	RunE:  runVersion,
}

func runVersion(cmd *cobra.Command, _ []string) error {
	if globalFlags.JSON {
		newEmitter(cmd.OutOrStdout()).emit("version", map[string]interface{}{"version": version})
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "capserve", version)
	return nil
}
