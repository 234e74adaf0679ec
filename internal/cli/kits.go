package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newKitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kits",
		Short: "Manage the CMake Tools kit for the Webrogue SDK",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Add the Webrogue kit to the CMake Tools kits file",
		Args:  cobra.NoArgs,
		RunE:  runKitsSync,
	})
	return cmd
}

func runKitsSync(cmd *cobra.Command, _ []string) error {
	return withApp(func(a *app) error {
		res, err := a.kits.Sync(cmd.Context())
		if err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd, res)
		}
		out := cmd.OutOrStdout()
		switch {
		case res.Skipped != "":
			fmt.Fprintf(out, "Skipped: %s\n", res.Skipped)
		case res.Changed:
			fmt.Fprintf(out, "Updated %s\n", res.Path)
		default:
			fmt.Fprintf(out, "Up to date: %s\n", res.Path)
		}
		return nil
	})
}
