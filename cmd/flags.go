package cmd

import (
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperledger-labs/interop-relayer/config"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/hyperledger-labs/interop-relayer/signer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagHome            = "home"
	flagLogLevel        = "log-level"
	flagLogFormat       = "log-format"
	flagLogOutput       = "log-output"
	flagEnableTelemetry = "enable-telemetry"

	flagJSON           = "json"
	flagYAML           = "yaml"
	flagChain          = "chain"
	flagRPC            = "rpc"
	flagChainID        = "chain-id"
	flagTx             = "tx"
	flagMsgIndex       = "msg-index"
	flagBundleIndex    = "bundle-index"
	flagBundle         = "bundle"
	flagBundleHash     = "bundle-hash"
	flagProof          = "proof"
	flagOutDir         = "out-dir"
	flagDryRun         = "dry-run"
	flagPrivateKey     = "private-key"
	flagPrivateKeyEnv  = "private-key-env"
	flagTimeout        = "timeout"
	flagPollInterval   = "poll-interval"
	flagNoWait         = "no-wait"
	flagSourceChain    = "source-chain"
	flagBatch          = "batch"
	flagExpectedRoot   = "expected-root"
	flagMode           = "mode"
	flagResubmit       = "resubmit"
	flagUntil          = "until"
	flagPrometheusAddr = "prometheus-addr"

	flagAddress          = "address"
	flagAddressOnly      = "address-only"
	flagInteropValue     = "interop-value"
	flagIndirect         = "indirect"
	flagExecutionAddress = "execution-address"
	flagUnbundler        = "unbundler"
	flagToken            = "token"
	flagNativeTokenVault = "native-token-vault"
)

// chain ends selected by chainFlags
const (
	endSingle = ""
	endSrc    = "src"
	endDest   = "dest"
)

func endFlag(name, end string) string {
	if end == endSingle {
		return name
	}
	return name + "-" + end
}

func chainFlags(cmd *cobra.Command, end string) *cobra.Command {
	what := "chain"
	switch end {
	case endSrc:
		what = "source chain"
	case endDest:
		what = "destination chain"
	}
	cmd.Flags().String(endFlag(flagChain, end), "", "configured name or chain ID of the "+what)
	cmd.Flags().String(endFlag(flagRPC, end), "", "RPC endpoint of the "+what+", instead of a configured one")
	cmd.Flags().String(endFlag(flagChainID, end), "", "expected chain ID of the "+what)
	return cmd
}

func chainSelector(end string) config.ChainSelector {
	return config.ChainSelector{
		Chain:   viper.GetString(endFlag(flagChain, end)),
		RpcAddr: viper.GetString(endFlag(flagRPC, end)),
		ChainID: viper.GetString(endFlag(flagChainID, end)),
	}
}

// getChain builds the provable chain selected by the flags of end.
// With no selection the only configured chain is used.
func getChain(ctx *config.Context, end string) (*core.ProvableChain, error) {
	sel := chainSelector(end)
	if sel.Chain == "" && sel.RpcAddr == "" {
		if len(ctx.Config.Chains) != 1 {
			return nil, errors.Newf("select a chain with --%s or --%s", endFlag(flagChain, end), endFlag(flagRPC, end))
		}
		sel.Chain = ctx.Config.Chains[0].Name
	}
	return ctx.Config.GetProvableChain(sel)
}

func jsonFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagJSON, "j", false, "returns the response in json format")
	return cmd
}

func yamlFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagYAML, "y", false, "output using yaml")
	return cmd
}

func txFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagTx, "", "hash of the source transaction that sent the bundle")
	cmd.Flags().Uint32(flagMsgIndex, 0, "index of the L2->L1 message within the transaction")
	if err := cmd.MarkFlagRequired(flagTx); err != nil {
		panic(err)
	}
	return cmd
}

func getTxHash() (common.Hash, error) {
	return parseHash(flagTx, viper.GetString(flagTx))
}

func parseHash(name, s string) (common.Hash, error) {
	bz, err := decodeHex(s)
	if err != nil || len(bz) != common.HashLength {
		return common.Hash{}, errors.Newf("--%s must be a 32-byte hex hash: %q", name, s)
	}
	return common.BytesToHash(bz), nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X"))
}

func bundleIndexFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Int(flagBundleIndex, 0, "index of the bundle when the transaction sent several")
	return cmd
}

func artifactFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagBundle, "", "bundle as hex, or a path to bundle.hex or bundle.json")
	cmd.Flags().String(flagProof, "", "proof as JSON, or a path to proof.json")
	return cmd
}

func outDirFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagOutDir, "", "directory to write the artifacts to")
	return cmd
}

func getArtifactStore() (*core.ArtifactStore, error) {
	dir := viper.GetString(flagOutDir)
	if dir == "" {
		return nil, nil
	}
	return core.NewArtifactStore(dir)
}

func dryRunFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Bool(flagDryRun, false, "simulate without broadcasting")
	return cmd
}

func signerFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagPrivateKey, "", "hex private key of the submitting account")
	cmd.Flags().String(flagPrivateKeyEnv, "", "environment variable holding the private key; defaults to the config")
	return cmd
}

// getSigner returns the configured signer, or nil if no key is available.
func getSigner(ctx *config.Context) (signer.Signer, *common.Address, error) {
	s, err := ctx.SignerConfig(viper.GetString(flagPrivateKey), viper.GetString(flagPrivateKeyEnv)).Load()
	if err != nil {
		return nil, nil, err
	}
	if s == nil {
		return nil, nil, nil
	}
	addr := s.Address()
	return s, &addr, nil
}

func pollFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Duration(flagTimeout, 0, "bound of each waiting stage; defaults to the config")
	cmd.Flags().Duration(flagPollInterval, 0, "interval between polls; defaults to the config")
	return cmd
}

// getPollConfig returns the waiting bounds of the proof, root and receipt stages.
func getPollConfig(ctx *config.Context) core.PollConfig {
	return overridePoll(ctx.Config.Global.PollConfig())
}

// getFinalityPollConfig returns the waiting bounds of the finality stage.
func getFinalityPollConfig(ctx *config.Context) core.PollConfig {
	cfg := ctx.Config.Global.FinalityPollConfig()
	if d := viper.GetDuration(flagTimeout); d > 0 {
		cfg.Timeout = d
	}
	return cfg
}

func overridePoll(cfg core.PollConfig) core.PollConfig {
	if d := viper.GetDuration(flagTimeout); d > 0 {
		cfg.Timeout = d
	}
	if d := viper.GetDuration(flagPollInterval); d > 0 {
		cfg.Interval = d
	}
	return cfg
}

func getAction() (core.BundleAction, error) {
	action := core.BundleAction(viper.GetString(flagMode))
	if err := action.Validate(); err != nil {
		return "", err
	}
	return action, nil
}
