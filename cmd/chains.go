package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/interop-relayer/chains/ethereum"
	"github.com/hyperledger-labs/interop-relayer/config"
	"github.com/hyperledger-labs/interop-relayer/coreutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func chainsCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "manage chain configurations",
		RunE:  noCommand,
	}

	cmd.AddCommand(
		chainsListCmd(ctx),
		chainsAddCmd(ctx),
		chainsAddDirCmd(ctx),
		chainsRemoveCmd(ctx),
		chainsPingCmd(ctx),
	)

	return cmd
}

func chainsListCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l"},
		Short:   "Lists the configured chains",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chains := ctx.Config.Chains
			return printOutput(cmd, chains, func(w io.Writer) {
				for i, c := range chains {
					id := c.ChainId
					if id == "" {
						id = "?"
					}
					fmt.Fprintf(w, "%d: %s (chain id %s) %s\n", i, c.Name, id, c.RpcAddr)
				}
			})
		},
	}
	return jsonFlag(cmd)
}

func chainsAddCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Adds a chain reached at --rpc to the configuration file",
		Long: `Adds a chain to the configuration file. Without --chain-id the chain ID is
queried from the endpoint. The system contracts default to their well-known addresses.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := ethereum.ChainConfig{
				Name:      args[0],
				ChainId:   viper.GetString(flagChainID),
				RpcAddr:   viper.GetString(flagRPC),
				Addresses: ethereum.DefaultAddresses(),
			}
			if cc.ChainId == "" {
				chain, err := cc.Build()
				if err != nil {
					return err
				}
				id, err := chain.QueryChainID(cmd.Context())
				chain.Close()
				if err != nil {
					return errors.WithHint(err, "pass --chain-id to add the chain without querying it")
				}
				cc.ChainId = id.String()
			}
			if err := ctx.Config.AddChain(cc); err != nil {
				return err
			}
			if err := ctx.Config.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added chain %s (chain id %s)\n", cc.Name, cc.ChainId)
			return nil
		},
	}
	cmd.Flags().String(flagRPC, "", "RPC endpoint of the chain")
	cmd.Flags().String(flagChainID, "", "chain ID of the chain")
	if err := cmd.MarkFlagRequired(flagRPC); err != nil {
		panic(err)
	}
	return cmd
}

func chainsAddDirCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:  "add-dir [dir]",
		Args: cobra.ExactArgs(1),
		Short: `Add new chains to the configuration file from a directory
		full of chain configuration, useful for adding testnet configurations`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if err := filesAdd(cmd.OutOrStdout(), ctx, args[0]); err != nil {
				return err
			}
			return ctx.Config.Save()
		},
	}

	return cmd
}

func filesAdd(w io.Writer, ctx *config.Context, dir string) error {
	files, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		return err
	}
	for _, f := range files {
		pth := filepath.Join(dir, f.Name())
		if f.IsDir() {
			fmt.Fprintf(w, "directory at %s, skipping...\n", pth)
			continue
		}
		byt, err := os.ReadFile(pth)
		if err != nil {
			fmt.Fprintf(w, "failed to read file %s, skipping...\n", pth)
			continue
		}
		var c ethereum.ChainConfig
		if err := unmarshalStrict(byt, &c); err != nil {
			fmt.Fprintf(w, "failed to unmarshal file %s, skipping...\n", pth)
			continue
		}
		if c.Addresses == (ethereum.AddressesConfig{}) {
			c.Addresses = ethereum.DefaultAddresses()
		}
		if err = ctx.Config.AddChain(c); err != nil {
			fmt.Fprintf(w, "%s: %s\n", pth, err.Error())
			continue
		}
		fmt.Fprintf(w, "added chain %s...\n", c.Name)
	}
	return nil
}

func chainsRemoveCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm [name]",
		Aliases: []string{"remove"},
		Short:   "Removes a chain from the configuration file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.Config.RemoveChain(args[0]); err != nil {
				return err
			}
			return ctx.Config.Save()
		},
	}
	return cmd
}

type pingResult struct {
	Chain           string `json:"chain"`
	ChainID         string `json:"chainId"`
	LatestBlock     uint64 `json:"latestBlock"`
	FinalizedBlock  uint64 `json:"finalizedBlock"`
	InteropCenter   string `json:"interopCenter"`
	InteropHandler  string `json:"interopHandler"`
	InteropRootStor string `json:"interopRootStorage"`
}

func chainsPingCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Checks that the selected chain answers and reports the expected chain ID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := getChain(ctx, endSingle)
			if err != nil {
				return err
			}
			chain, err := coreutil.UnwrapBackend[*ethereum.Chain](pc)
			if err != nil {
				return err
			}
			defer chain.Close()

			id, err := pc.QueryChainID(cmd.Context())
			if err != nil {
				return err
			}
			latest, err := chain.LatestHeight(cmd.Context())
			if err != nil {
				return err
			}
			finalized, err := pc.LatestFinalizedHeight(cmd.Context())
			if err != nil {
				return err
			}
			contracts := pc.Contracts()
			res := pingResult{
				Chain:           chain.Config().Name,
				ChainID:         id.String(),
				LatestBlock:     latest,
				FinalizedBlock:  finalized,
				InteropCenter:   contracts.InteropCenter.Hex(),
				InteropHandler:  contracts.InteropHandler.Hex(),
				InteropRootStor: contracts.InteropRootStorage.Hex(),
			}
			return printOutput(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "%s: chain id %s, latest block %d, finalized block %d\n", res.Chain, res.ChainID, res.LatestBlock, res.FinalizedBlock)
			})
		},
	}
	return jsonFlag(chainFlags(cmd, endSingle))
}

func unmarshalStrict(bz []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(bz))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
