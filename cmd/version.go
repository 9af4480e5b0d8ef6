package cmd

import (
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

const gethModulePath = "github.com/ethereum/go-ethereum"

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Shows the version of the relayer and of the chain client it is built with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bi, ok := debug.ReadBuildInfo()
			if !ok {
				return fmt.Errorf("could not read build info")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, Version())
			info, err := retrieveModuleInfo(bi, gethModulePath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), info)
			return nil
		},
	}
	return cmd
}

// Version returns the version of the main module, or "devel" if it is unknown.
func Version() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" || bi.Main.Version == "(devel)" {
		return "devel"
	}
	return bi.Main.Version
}

func retrieveModuleInfo(info *debug.BuildInfo, pkgPath string) (string, error) {
	if info == nil {
		return "", errors.New("build info is unavailable")
	}

	if info.Main.Path != "" && strings.HasPrefix(pkgPath, info.Main.Path) {
		return info.Main.Path + " " + info.Main.Version, nil
	}

	i := slices.IndexFunc(info.Deps, func(dm *debug.Module) bool {
		return strings.HasPrefix(pkgPath, dm.Path)
	})
	if i == -1 {
		return "", fmt.Errorf("could not find module info for %s", pkgPath)
	}

	return info.Deps[i].Path + " " + info.Deps[i].Version, nil
}
