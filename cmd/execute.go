package cmd

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/config"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func executeCmd(ctx *config.Context) *cobra.Command {
	return bundleActionCmd(ctx, core.ActionExecute, "Submit a bundle with its proof for execution on the destination chain")
}

func verifyCmd(ctx *config.Context) *cobra.Command {
	return bundleActionCmd(ctx, core.ActionVerify, "Submit a bundle with its proof for verification only on the destination chain")
}

func bundleActionCmd(ctx *config.Context, action core.BundleAction, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(action),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := getBundle()
			if err != nil {
				return err
			}
			proof, err := getProof()
			if err != nil {
				return err
			}
			s, _, err := getSigner(ctx)
			if err != nil {
				return err
			}
			dst, err := getChain(ctx, endSingle)
			if err != nil {
				return err
			}
			result, err := core.ExecuteBundle(cmd.Context(), dst, bundle, proof, core.ExecuteOptions{
				Action:  action,
				DryRun:  viper.GetBool(flagDryRun),
				Signer:  s,
				Receipt: getPollConfig(ctx),
				OnSubmitted: func(txHash common.Hash) {
					fmt.Fprintf(cmd.ErrOrStderr(), "submitted %s\n", txHash.Hex())
				},
			})
			if result != nil {
				if perr := printResult(cmd, result); perr != nil {
					return errors.CombineErrors(err, perr)
				}
			}
			return err
		},
	}
	return jsonFlag(pollFlags(signerFlags(dryRunFlag(outDirFlag(artifactFlags(chainFlags(cmd, endSingle)))))))
}

func printResult(cmd *cobra.Command, result *core.ExecutionResult) error {
	return printOutput(cmd, result, func(w io.Writer) {
		fmt.Fprintf(w, "mode: %s\n", result.Action)
		if result.DryRun {
			fmt.Fprintln(w, "dry run: true")
		}
		fmt.Fprintf(w, "bundle: %s\n", result.BundleHash.Hex())
		if result.TxHash != nil {
			fmt.Fprintf(w, "tx: %s\n", result.TxHash.Hex())
		}
		fmt.Fprintf(w, "success: %t\n", result.Success)
		if result.RevertReason != "" {
			fmt.Fprintf(w, "revert reason: %s\n", result.RevertReason)
		}
		fmt.Fprintf(w, "status: %s\n", result.Status.State)
		for _, c := range result.Calls {
			fmt.Fprintf(w, "  call[%d] %s: %s\n", c.Index, c.SendID.Hex(), c.Status)
		}
		if len(result.Checks) > 0 {
			fmt.Fprintln(w, "checks:")
			printChecks(w, result.Checks)
		}
	})
}

func explainCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Check a bundle and its proof against the destination chain without submitting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := getBundle()
			if err != nil {
				return err
			}
			proof, err := getProof()
			if err != nil {
				return err
			}
			_, from, err := getSigner(ctx)
			if err != nil {
				return err
			}
			dst, err := getChain(ctx, endSingle)
			if err != nil {
				return err
			}
			checks := core.Explain(cmd.Context(), dst, bundle, proof, from)
			if err := printOutput(cmd, checks, func(w io.Writer) { printChecks(w, checks) }); err != nil {
				return err
			}
			if failed := checks.Failed(); len(failed) > 0 {
				return errors.Newf("%d of %d checks failed", len(failed), len(checks))
			}
			return nil
		},
	}
	return jsonFlag(signerFlags(outDirFlag(artifactFlags(chainFlags(cmd, endSingle)))))
}

type statusOutput struct {
	BundleHash common.Hash        `json:"bundleHash"`
	State      core.BundleState   `json:"state"`
	Calls      []core.CallOutcome `json:"calls,omitempty"`
}

func statusCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the processing state of a bundle on the destination chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var bundle *core.ExtractedBundle
			var bundleHash common.Hash
			if v := viper.GetString(flagBundleHash); v != "" {
				h, err := parseHash(flagBundleHash, v)
				if err != nil {
					return err
				}
				bundleHash = h
			} else {
				b, err := getBundle()
				if err != nil {
					return errors.WithHint(err, "pass --bundle-hash or --bundle")
				}
				bundle, bundleHash = b, b.BundleHash
			}
			dst, err := getChain(ctx, endSingle)
			if err != nil {
				return err
			}

			state, err := dst.QueryBundleStatus(cmd.Context(), bundleHash)
			if err != nil {
				return err
			}
			out := statusOutput{BundleHash: bundleHash, State: state}
			if bundle != nil {
				for i, id := range bundle.SendIDs {
					cs, err := dst.QueryCallStatus(cmd.Context(), bundleHash, i)
					if err != nil {
						return err
					}
					out.Calls = append(out.Calls, core.CallOutcome{Index: i, SendID: id, Status: cs})
				}
			}
			return printOutput(cmd, out, func(w io.Writer) {
				fmt.Fprintf(w, "bundle %s: %s\n", out.BundleHash.Hex(), out.State)
				for _, c := range out.Calls {
					fmt.Fprintf(w, "  call[%d] %s: %s\n", c.Index, c.SendID.Hex(), c.Status)
				}
			})
		},
	}
	cmd.Flags().String(flagBundleHash, "", "hash of the bundle")
	cmd.Flags().String(flagBundle, "", "bundle as hex, or a path to bundle.hex or bundle.json")
	cmd.MarkFlagsMutuallyExclusive(flagBundleHash, flagBundle)
	return jsonFlag(outDirFlag(chainFlags(cmd, endSingle)))
}
