package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// printOutput writes v as JSON when --json is set, and calls human otherwise.
func printOutput(cmd *cobra.Command, v interface{}, human func(w io.Writer)) error {
	if !viper.GetBool(flagJSON) {
		human(cmd.OutOrStdout())
		return nil
	}
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bz))
	return err
}

func printChecks(w io.Writer, checks core.Checks) {
	for _, c := range checks {
		fmt.Fprintf(w, "  %s\n", c)
	}
}

// getBundle reads the bundle from --bundle, or from the artifacts in --out-dir.
func getBundle() (*core.ExtractedBundle, error) {
	if v := viper.GetString(flagBundle); v != "" {
		return core.ReadBundleArtifact(v)
	}
	store, err := getArtifactStore()
	if err != nil {
		return nil, err
	}
	if store != nil {
		b, err := store.LoadBundle()
		if err != nil {
			return nil, err
		}
		if b != nil {
			return b, nil
		}
	}
	return nil, errors.Newf("--%s is required", flagBundle)
}

// getProof reads the proof from --proof, or from the artifacts in --out-dir.
func getProof() (*core.MessageInclusionProof, error) {
	if v := viper.GetString(flagProof); v != "" {
		return core.ReadProofArtifact(v)
	}
	store, err := getArtifactStore()
	if err != nil {
		return nil, err
	}
	if store != nil {
		p, err := store.LoadProof()
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, errors.Newf("--%s is required", flagProof)
}
