package cmd

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/interop-relayer/config"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func relayCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay a bundle end to end from the source to the destination chain",
		Long: `Relay extracts the bundle sent by --tx, waits for finality, fetches its
inclusion proof, waits for the destination to register the interop root and submits
the bundle. With --out-dir every artifact and a summary are written as they are
obtained, and a rerun with the same directory resumes after the last completed step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txHash, err := getTxHash()
			if err != nil {
				return err
			}
			action, err := getAction()
			if err != nil {
				return err
			}
			s, _, err := getSigner(ctx)
			if err != nil {
				return err
			}
			store, err := getArtifactStore()
			if err != nil {
				return err
			}
			src, err := getChain(ctx, endSrc)
			if err != nil {
				return err
			}
			dst, err := getChain(ctx, endDest)
			if err != nil {
				return err
			}

			poll := getPollConfig(ctx)
			summary, err := core.Relay(cmd.Context(), src, dst, core.RelayOptions{
				Action:       action,
				DryRun:       viper.GetBool(flagDryRun),
				Signer:       s,
				TxHash:       txHash,
				MessageIndex: viper.GetUint32(flagMsgIndex),
				BundleIndex:  viper.GetInt(flagBundleIndex),
				Finality:     getFinalityPollConfig(ctx),
				Proof:        poll,
				Root:         poll,
				Receipt:      poll,
				SkipFinality: viper.GetBool(flagNoWait),
				Store:        store,
				Resubmit:     viper.GetBool(flagResubmit),
			})
			if summary != nil {
				if perr := printSummary(cmd, summary); perr != nil {
					return errors.CombineErrors(err, perr)
				}
			}
			return err
		},
	}
	cmd.Flags().String(flagMode, string(core.ActionExecute), "handler action to submit (execute|verify)")
	cmd.Flags().Bool(flagNoWait, false, "fetch the proof without waiting for finality")
	cmd.Flags().Bool(flagResubmit, false, "submit again when an earlier submission has an unknown outcome")
	chainFlags(cmd, endSrc)
	chainFlags(cmd, endDest)
	return jsonFlag(pollFlags(signerFlags(dryRunFlag(outDirFlag(bundleIndexFlag(txFlags(cmd)))))))
}

func printSummary(cmd *cobra.Command, s *core.RelaySummary) error {
	return printOutput(cmd, s, func(w io.Writer) {
		fmt.Fprintf(w, "state: %s\n", s.State)
		fmt.Fprintf(w, "mode: %s\n", s.Mode)
		if s.DryRun {
			fmt.Fprintln(w, "dry run: true")
		}
		fmt.Fprintf(w, "route: %s -> %s\n", s.SourceChainID, s.DestinationChainID)
		fmt.Fprintf(w, "source tx: %s\n", s.SourceTxHash.Hex())
		fmt.Fprintf(w, "bundle: %s\n", s.BundleHash.Hex())
		fmt.Fprintf(w, "batch: %d, message index: %d\n", s.L1BatchNumber, s.L2MessageIndex)
		if s.HandlerTxHash != nil {
			fmt.Fprintf(w, "handler tx: %s\n", s.HandlerTxHash.Hex())
		}
		if s.Result != nil && s.Result.RevertReason != "" {
			fmt.Fprintf(w, "revert reason: %s\n", s.Result.RevertReason)
		}
		if s.LastError != "" {
			fmt.Fprintf(w, "last error (%s): %s\n", s.LastStep, s.LastError)
		}
		if s.Result != nil && len(s.Result.Checks) > 0 {
			fmt.Fprintln(w, "checks:")
			printChecks(w, s.Result.Checks)
		}
	})
}
