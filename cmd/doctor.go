package cmd

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/interop-relayer/config"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/spf13/cobra"
)

func doctorCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that a chain endpoint can serve a relay",
		Long: `Check the endpoint of a chain: its chain ID, finalized block and log proof
queries, and the deployment of the interop system contracts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := getChain(ctx, endSingle)
			if err != nil {
				return err
			}
			checks := core.Doctor(cmd.Context(), chain)
			if err := printOutput(cmd, checks, func(w io.Writer) { printChecks(w, checks) }); err != nil {
				return err
			}
			if checks.HasFailures() {
				return errors.Newf("%d of %d checks failed", len(checks.Failed()), len(checks))
			}
			return nil
		},
	}
	return jsonFlag(chainFlags(cmd, endSingle))
}

func contractsCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Show the interop system contracts of a chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := getChain(ctx, endSingle)
			if err != nil {
				return err
			}
			rows := core.QueryContracts(cmd.Context(), chain)
			for _, r := range rows {
				if r.Err != nil {
					return r.Err
				}
			}
			return printOutput(cmd, rows, func(w io.Writer) {
				fmt.Fprintf(w, "%-22s %-44s %s\n", "name", "address", "codeLen")
				for _, r := range rows {
					state := "deployed"
					if !r.Deployed {
						state = "NOT DEPLOYED"
					}
					fmt.Fprintf(w, "%-22s %-44s %d (%s)\n", r.Name, r.Address.Hex(), r.CodeSize, state)
				}
			})
		},
	}
	return jsonFlag(chainFlags(cmd, endSingle))
}
