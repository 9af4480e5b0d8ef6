package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/interop-relayer/config"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/hyperledger-labs/interop-relayer/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func watchCmd(ctx *config.Context) *cobra.Command {
	const defaultPrometheusAddr = "localhost:2223"

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a sent bundle until the destination has processed it",
		Long: `Watch reports the finality of the source transaction, the availability of its
log proof and interop root, and the bundle status on the destination, without
submitting anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr := viper.GetString(flagPrometheusAddr); addr != "" {
				if err := metrics.ShutdownMetrics(cmd.Context()); err != nil {
					return fmt.Errorf("failed to shutdown the metrics subsystem with null exporter: %v", err)
				}
				if err := metrics.InitializeMetrics(metrics.ExporterProm{Addr: addr}); err != nil {
					return fmt.Errorf("failed to re-initialize the metrics subsystem with prometheus exporter: %v", err)
				}
			}
			txHash, err := getTxHash()
			if err != nil {
				return err
			}
			until, err := parseUntil(viper.GetString(flagUntil))
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

			asJSON := viper.GetBool(flagJSON)
			w := cmd.OutOrStdout()
			return core.StartWatch(cmd.Context(), src, dst, core.WatchOptions{
				TxHash:       txHash,
				MessageIndex: viper.GetUint32(flagMsgIndex),
				Poll:         getPollConfig(ctx),
				Until:        until,
				OnEvent: func(ev core.WatchEvent) {
					if asJSON {
						bz, err := json.Marshal(ev)
						if err == nil {
							fmt.Fprintln(w, string(bz))
						}
						return
					}
					fmt.Fprintln(w, formatEvent(ev))
				},
			})
		},
	}
	cmd.Flags().String(flagUntil, "", "bundle state that ends the watch (verified|executed); any final state by default")
	cmd.Flags().String(flagPrometheusAddr, "", fmt.Sprintf("host address to which the prometheus exporter listens, e.g. %s", defaultPrometheusAddr))
	chainFlags(cmd, endSrc)
	chainFlags(cmd, endDest)
	return jsonFlag(pollFlags(txFlags(cmd)))
}

func parseUntil(s string) (core.BundleState, error) {
	switch strings.ToLower(s) {
	case "":
		return core.BundleUnreceived, nil
	case "verified":
		return core.BundleVerified, nil
	case "executed":
		return core.BundleFullyExecuted, nil
	default:
		return 0, errors.Newf("--%s must be verified or executed: %q", flagUntil, s)
	}
}

// formatEvent renders an event as one line with its details sorted by key.
func formatEvent(ev core.WatchEvent) string {
	return ev.Event + formatPairs(ev.Details)
}

// formatPairs renders m as space-prefixed key=value pairs sorted by key.
func formatPairs[V any](m map[string]V) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, m[k])
	}
	return sb.String()
}
