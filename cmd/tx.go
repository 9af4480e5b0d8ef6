package cmd

import (
	"fmt"
	"io"

	"github.com/hyperledger-labs/interop-relayer/config"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/spf13/cobra"
)

func txCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "inspect transactions",
		RunE:  noCommand,
	}
	cmd.AddCommand(txShowCmd(ctx))
	return cmd
}

func txShowCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [tx-hash]",
		Short: "Decode the interop events of a transaction",
		Long: `Decode the interop events of a transaction: bundles sent through the interop
center, their L2->L1 messages, and bundle and call processing on the handler.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txHash, err := parseHash("tx-hash", args[0])
			if err != nil {
				return err
			}
			chain, err := getChain(ctx, endSingle)
			if err != nil {
				return err
			}
			out, err := core.ShowTx(cmd.Context(), chain, txHash)
			if err != nil {
				return err
			}
			return printOutput(cmd, out, func(w io.Writer) { printTxEvents(w, out) })
		},
	}
	return jsonFlag(chainFlags(cmd, endSingle))
}

func printTxEvents(w io.Writer, out *core.TxInteropEvents) {
	fmt.Fprintf(w, "tx: %s\n", out.TxHash.Hex())
	for _, b := range out.Bundles {
		fmt.Fprintf(w, "bundleHash: %s\n", b.BundleHash.Hex())
		fmt.Fprintf(w, "l2l1MsgHash: %s\n", b.L2L1MsgHash.Hex())
		fmt.Fprintf(w, "bundle: sourceChainId=%s destinationChainId=%s calls=%d\n", b.Bundle.SourceChainID, b.Bundle.DestinationChainID, len(b.Bundle.Calls))
		for i, c := range b.Bundle.Calls {
			fmt.Fprintf(w, "  call[%d] to=%s from=%s value=%s data_len=%d\n", i, c.To.Hex(), c.From.Hex(), c.Value, len(c.Data))
		}
		fmt.Fprintf(w, "bundleAttributes: executionAddress=0x%x unbundlerAddress=0x%x\n", b.Bundle.Attributes.ExecutionAddress, b.Bundle.Attributes.UnbundlerAddress)
	}
	if len(out.Events) == 0 {
		return
	}
	fmt.Fprintln(w, "events:")
	for _, ev := range out.Events {
		fmt.Fprintf(w, "  %s @ %s%s\n", ev.Name, ev.Address.Hex(), formatPairs(ev.Data))
	}
}
