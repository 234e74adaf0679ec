package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Webrogue compilation cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Empty the compilation cache",
		Args:  cobra.NoArgs,
		RunE:  runCacheClean,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Write the cache configuration file and print its path",
		Args:  cobra.NoArgs,
		RunE:  runCacheConfig,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "build-dir <domain>",
		Short: "Create and print the build directory for an application domain",
		Args:  cobra.ExactArgs(1),
		RunE:  runCacheBuildDir,
	})

	return cmd
}

func runCacheClean(cmd *cobra.Command, _ []string) error {
	return withApp(func(a *app) error {
		if err := a.cache.Clean(); err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd, map[string]string{"cleaned": a.cache.Dir()})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleaned %s\n", a.cache.Dir())
		return nil
	})
}

func runCacheConfig(cmd *cobra.Command, _ []string) error {
	return withApp(func(a *app) error {
		path, err := a.cache.Config()
		if err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd, map[string]string{"config": path})
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	})
}

func runCacheBuildDir(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		dir, err := a.cache.BuildDir(args[0])
		if err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd, map[string]string{"build_dir": dir})
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
		return nil
	})
}
