package core

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	BundleHexFile  = "bundle.hex"
	BundleJSONFile = "bundle.json"
	ProofFile      = "proof.json"
	SummaryFile    = "relay.json"
)

// ArtifactStore persists the outputs of the relay steps in a directory so that
// a later invocation can resume from them.
type ArtifactStore struct {
	Dir string
}

// NewArtifactStore creates dir if needed.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create artifact directory %s", dir)
	}
	return &ArtifactStore{Dir: dir}, nil
}

func (s *ArtifactStore) path(name string) string {
	return filepath.Join(s.Dir, name)
}

// SaveBundle writes bundle.hex and bundle.json.
func (s *ArtifactStore) SaveBundle(b *ExtractedBundle) error {
	if err := writeFileAtomic(s.path(BundleHexFile), []byte(hexutil.Encode(b.Encoded))); err != nil {
		return err
	}
	bz, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(BundleJSONFile), bz)
}

// LoadBundle returns the stored bundle, or nil if none is stored.
// bundle.json is preferred since it carries the event identifiers.
func (s *ArtifactStore) LoadBundle() (*ExtractedBundle, error) {
	bz, err := os.ReadFile(s.path(BundleJSONFile))
	switch {
	case err == nil:
		var b ExtractedBundle
		if err := json.Unmarshal(bz, &b); err != nil {
			return nil, errors.Wrapf(err, "invalid %s", s.path(BundleJSONFile))
		}
		return &b, nil
	case !os.IsNotExist(err):
		return nil, err
	}

	bz, err = os.ReadFile(s.path(BundleHexFile))
	switch {
	case os.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return parseBundleHex(string(bz))
}

// SaveProof writes proof.json.
func (s *ArtifactStore) SaveProof(p *MessageInclusionProof) error {
	bz, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(ProofFile), bz)
}

// LoadProof returns the stored proof, or nil if none is stored.
func (s *ArtifactStore) LoadProof() (*MessageInclusionProof, error) {
	bz, err := os.ReadFile(s.path(ProofFile))
	switch {
	case os.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, err
	}
	var p MessageInclusionProof
	if err := json.Unmarshal(bz, &p); err != nil {
		return nil, errors.Wrapf(err, "invalid %s", s.path(ProofFile))
	}
	return &p, nil
}

// SaveSummary writes relay.json.
func (s *ArtifactStore) SaveSummary(summary *RelaySummary) error {
	bz, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(SummaryFile), bz)
}

// LoadSummary returns the stored summary, or nil if none is stored.
func (s *ArtifactStore) LoadSummary() (*RelaySummary, error) {
	bz, err := os.ReadFile(s.path(SummaryFile))
	switch {
	case os.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, err
	}
	var summary RelaySummary
	if err := json.Unmarshal(bz, &summary); err != nil {
		return nil, errors.Wrapf(err, "invalid %s", s.path(SummaryFile))
	}
	return &summary, nil
}

// ReadBundleArtifact loads a bundle from a bundle.json or hex file, or from inline hex.
func ReadBundleArtifact(pathOrHex string) (*ExtractedBundle, error) {
	if strings.HasPrefix(pathOrHex, "0x") || isHex(pathOrHex) {
		return parseBundleHex(pathOrHex)
	}
	bz, err := os.ReadFile(pathOrHex)
	if err != nil {
		return nil, errors.Wrap(err, "bundle must be hex or a path to bundle.json or bundle.hex")
	}
	if trimmed := strings.TrimSpace(string(bz)); strings.HasPrefix(trimmed, "{") {
		var b ExtractedBundle
		if err := json.Unmarshal(bz, &b); err != nil {
			return nil, errors.Wrapf(err, "invalid bundle file %s", pathOrHex)
		}
		return &b, nil
	}
	return parseBundleHex(string(bz))
}

// ReadProofArtifact loads a proof from a JSON file or from inline JSON.
func ReadProofArtifact(pathOrJSON string) (*MessageInclusionProof, error) {
	bz := []byte(pathOrJSON)
	if !strings.HasPrefix(strings.TrimSpace(pathOrJSON), "{") {
		var err error
		if bz, err = os.ReadFile(pathOrJSON); err != nil {
			return nil, errors.Wrap(err, "proof must be a JSON string or path")
		}
	}
	var p MessageInclusionProof
	if err := json.Unmarshal(bz, &p); err != nil {
		return nil, errors.Wrap(err, "invalid proof json")
	}
	return &p, nil
}

func parseBundleHex(s string) (*ExtractedBundle, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	bz, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid bundle hex"), ErrMalformedBundle)
	}
	return NewExtractedBundle(bz, common.Hash{})
}

func isHex(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// writeFileAtomic replaces path with data so that readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
