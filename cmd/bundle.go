package cmd

import (
	"fmt"
	"io"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/config"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func extractCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the interop bundles sent by a source transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txHash, err := getTxHash()
			if err != nil {
				return err
			}
			src, err := getChain(ctx, endSingle)
			if err != nil {
				return err
			}
			store, err := getArtifactStore()
			if err != nil {
				return err
			}
			bundles, err := core.ExtractBundles(cmd.Context(), src, txHash)
			if err != nil {
				return err
			}
			if store != nil {
				b, err := core.SelectBundle(bundles, viper.GetInt(flagBundleIndex))
				if err != nil {
					return err
				}
				if err := store.SaveBundle(b); err != nil {
					return err
				}
			}
			return printOutput(cmd, bundles, func(w io.Writer) {
				for i, b := range bundles {
					fmt.Fprintf(w, "[%d] %s\n", i, b)
					fmt.Fprintf(w, "  encoded: 0x%x\n", b.Encoded)
					for j, id := range b.SendIDs {
						fmt.Fprintf(w, "  sendId[%d]: %s\n", j, id.Hex())
					}
				}
			})
		},
	}
	return jsonFlag(outDirFlag(bundleIndexFlag(chainFlags(txFlags(cmd), endSingle))))
}

func fetchProofCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch-proof",
		Short: "Wait for finality and fetch the inclusion proof of a sent bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txHash, err := getTxHash()
			if err != nil {
				return err
			}
			src, err := getChain(ctx, endSingle)
			if err != nil {
				return err
			}
			store, err := getArtifactStore()
			if err != nil {
				return err
			}
			// the bundle is optional here; it only lets the proof commit to it
			var bundle *core.ExtractedBundle
			if viper.GetString(flagBundle) != "" || store != nil {
				if bundle, err = getBundle(); err != nil && viper.GetString(flagBundle) != "" {
					return err
				}
			}
			proof, err := core.FetchProof(cmd.Context(), src, txHash, viper.GetUint32(flagMsgIndex), bundle, core.FetchProofOptions{
				Finality:     getFinalityPollConfig(ctx),
				Proof:        getPollConfig(ctx),
				SkipFinality: viper.GetBool(flagNoWait),
			})
			if err != nil {
				return err
			}
			if store != nil {
				if err := store.SaveProof(proof); err != nil {
					return err
				}
			}
			return printOutput(cmd, proof, func(w io.Writer) {
				fmt.Fprintf(w, "chainId: %s\n", proof.ChainID)
				fmt.Fprintf(w, "l1BatchNumber: %d\n", proof.L1BatchNumber)
				fmt.Fprintf(w, "l2MessageIndex: %d\n", proof.L2MessageIndex)
				fmt.Fprintf(w, "root: %s\n", proof.Root.Hex())
				fmt.Fprintf(w, "proof nodes: %d\n", len(proof.Proof))
			})
		},
	}
	cmd.Flags().String(flagBundle, "", "bundle as hex, or a path to bundle.hex or bundle.json")
	cmd.Flags().Bool(flagNoWait, false, "fetch the proof without waiting for finality")
	return jsonFlag(pollFlags(outDirFlag(chainFlags(txFlags(cmd), endSingle))))
}

func waitRootCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait-root",
		Short: "Wait until the destination has registered the interop root of a source batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceChainID, batch, root, err := rootTarget()
			if err != nil {
				return err
			}
			dst, err := getChain(ctx, endSingle)
			if err != nil {
				return err
			}
			if err := core.WaitForRoot(cmd.Context(), dst, sourceChainID, batch, root, getPollConfig(ctx)); err != nil {
				return err
			}
			out := map[string]interface{}{
				"sourceChainId": sourceChainID.String(),
				"l1BatchNumber": batch,
				"root":          root,
			}
			return printOutput(cmd, out, func(w io.Writer) {
				fmt.Fprintf(w, "root %s of chain %s batch %d is available\n", root.Hex(), sourceChainID, batch)
			})
		},
	}
	cmd.Flags().String(flagSourceChain, "", "source chain ID")
	cmd.Flags().Uint64(flagBatch, 0, "source batch number")
	cmd.Flags().String(flagExpectedRoot, "", "expected batch root")
	cmd.Flags().String(flagProof, "", "proof as JSON, or a path to proof.json, to take the target from")
	cmd.MarkFlagsMutuallyExclusive(flagProof, flagSourceChain)
	return jsonFlag(pollFlags(chainFlags(cmd, endSingle)))
}

// rootTarget returns the source chain, batch and root to wait for, taken from
// --proof or the individual flags.
func rootTarget() (*big.Int, uint64, common.Hash, error) {
	if viper.GetString(flagProof) != "" {
		proof, err := getProof()
		if err != nil {
			return nil, 0, common.Hash{}, err
		}
		return proof.ChainID, proof.L1BatchNumber, proof.Root, nil
	}
	id, ok := new(big.Int).SetString(viper.GetString(flagSourceChain), 10)
	if !ok {
		return nil, 0, common.Hash{}, errors.Newf("--%s must be a decimal chain ID", flagSourceChain)
	}
	root, err := parseHash(flagExpectedRoot, viper.GetString(flagExpectedRoot))
	if err != nil {
		return nil, 0, common.Hash{}, err
	}
	return id, viper.GetUint64(flagBatch), root, nil
}
