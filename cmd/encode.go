package cmd

import (
	"fmt"
	"io"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const permissionless = "permissionless"

func encodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "encode interoperable addresses, call attributes and asset IDs",
		RunE:  noCommand,
	}
	cmd.AddCommand(
		encode7930Cmd(),
		encodeAttrsCmd(),
		encodeAssetIDCmd(),
	)
	return cmd
}

func encode7930Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "7930",
		Short: "Encode an ERC-7930 interoperable address",
		Long: `Encode an ERC-7930 interoperable address: --chain-id with an optional --address,
or --address-only for an address without a chain reference.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bz, err := encodeInteroperableAddress()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(bz))
			return err
		},
	}
	cmd.Flags().String(flagChainID, "", "chain ID, decimal or 0x-prefixed hex")
	cmd.Flags().String(flagAddress, "", "EVM address on the chain")
	cmd.Flags().String(flagAddressOnly, "", "EVM address without a chain reference")
	cmd.MarkFlagsMutuallyExclusive(flagAddressOnly, flagChainID)
	cmd.MarkFlagsMutuallyExclusive(flagAddressOnly, flagAddress)
	return cmd
}

func encodeInteroperableAddress() ([]byte, error) {
	if s := viper.GetString(flagAddressOnly); s != "" {
		addr, err := parseAddress(flagAddressOnly, s)
		if err != nil {
			return nil, err
		}
		return core.EncodeAddressOnly(addr), nil
	}
	s := viper.GetString(flagChainID)
	if s == "" {
		return nil, errors.Newf("set --%s (with optional --%s) or --%s", flagChainID, flagAddress, flagAddressOnly)
	}
	chainID, err := parseUint256(flagChainID, s)
	if err != nil {
		return nil, err
	}
	var addr *common.Address
	if s := viper.GetString(flagAddress); s != "" {
		a, err := parseAddress(flagAddress, s)
		if err != nil {
			return nil, err
		}
		addr = &a
	}
	return core.EncodeInteroperableAddress(chainID, addr)
}

func encodeAttrsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attrs",
		Short: "Encode call and bundle attributes",
		Long: `Encode call and bundle attributes in the order interop-value, indirect,
execution-address, unbundler. --execution-address accepts "permissionless".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := encodeAttributes()
			if err != nil {
				return err
			}
			out := struct {
				Attributes []hexutil.Bytes `json:"attributes"`
			}{Attributes: make([]hexutil.Bytes, len(attrs))}
			for i, a := range attrs {
				out.Attributes[i] = hexutil.Bytes(a)
			}
			return printOutput(cmd, out, func(w io.Writer) {
				for _, a := range out.Attributes {
					fmt.Fprintln(w, a)
				}
			})
		},
	}
	cmd.Flags().String(flagInteropValue, "", "value forwarded to the call recipient")
	cmd.Flags().String(flagIndirect, "", "message value of an indirect call")
	cmd.Flags().String(flagExecutionAddress, "", `address allowed to execute the bundle, or "permissionless"`)
	cmd.Flags().String(flagUnbundler, "", "address allowed to unbundle the bundle")
	return jsonFlag(cmd)
}

func encodeAttributes() ([]core.CallAttribute, error) {
	var attrs []core.CallAttribute
	add := func(a core.CallAttribute, err error) error {
		if err != nil {
			return err
		}
		attrs = append(attrs, a)
		return nil
	}
	if s := viper.GetString(flagInteropValue); s != "" {
		v, err := parseUint256(flagInteropValue, s)
		if err != nil {
			return nil, err
		}
		if err := add(core.CallValueAttribute(v)); err != nil {
			return nil, err
		}
	}
	if s := viper.GetString(flagIndirect); s != "" {
		v, err := parseUint256(flagIndirect, s)
		if err != nil {
			return nil, err
		}
		if err := add(core.IndirectCallAttribute(v)); err != nil {
			return nil, err
		}
	}
	if s := viper.GetString(flagExecutionAddress); s != "" {
		var executor *common.Address
		if s != permissionless {
			a, err := parseAddress(flagExecutionAddress, s)
			if err != nil {
				return nil, err
			}
			executor = &a
		}
		if err := add(core.ExecutionAddressAttribute(executor)); err != nil {
			return nil, err
		}
	}
	if s := viper.GetString(flagUnbundler); s != "" {
		a, err := parseAddress(flagUnbundler, s)
		if err != nil {
			return nil, err
		}
		if err := add(core.UnbundlerAddressAttribute(a)); err != nil {
			return nil, err
		}
	}
	if len(attrs) == 0 {
		return nil, errors.Newf("set at least one of --%s, --%s, --%s or --%s", flagInteropValue, flagIndirect, flagExecutionAddress, flagUnbundler)
	}
	return attrs, nil
}

func encodeAssetIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset-id",
		Short: "Derive the asset ID of a token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID, err := parseUint256(flagChainID, viper.GetString(flagChainID))
			if err != nil {
				return err
			}
			token, err := parseAddress(flagToken, viper.GetString(flagToken))
			if err != nil {
				return err
			}
			vault := core.DefaultNativeTokenVault
			if s := viper.GetString(flagNativeTokenVault); s != "" {
				if vault, err = parseAddress(flagNativeTokenVault, s); err != nil {
					return err
				}
			}
			id, err := core.AssetID(chainID, token, vault)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id.Hex())
			return err
		},
	}
	cmd.Flags().String(flagChainID, "", "origin chain ID of the token")
	cmd.Flags().String(flagToken, "", "token address on the origin chain")
	cmd.Flags().String(flagNativeTokenVault, "", "native token vault address; defaults to the system vault")
	for _, f := range []string{flagChainID, flagToken} {
		if err := cmd.MarkFlagRequired(f); err != nil {
			panic(err)
		}
	}
	return cmd
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Newf("--%s must be a hex address: %q", name, s)
	}
	return common.HexToAddress(s), nil
}

// parseUint256 accepts decimal or 0x-prefixed hex.
func parseUint256(name, s string) (*big.Int, error) {
	v, ok := math.ParseBig256(s)
	if !ok || v.Sign() < 0 {
		return nil, errors.Newf("--%s must be an unsigned 256-bit integer: %q", name, s)
	}
	return v, nil
}
