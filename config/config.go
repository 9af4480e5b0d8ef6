package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/interop-relayer/chains/ethereum"
	"github.com/hyperledger-labs/interop-relayer/core"
	"github.com/hyperledger-labs/interop-relayer/signer"
)

type Config struct {
	Global GlobalConfig           `yaml:"global" json:"global"`
	Chains []ethereum.ChainConfig `yaml:"chains" json:"chains"`

	// ConfigPath is the file the config was loaded from
	ConfigPath string `yaml:"-" json:"-"`
}

type GlobalConfig struct {
	// Timeout bounds each waiting stage
	Timeout string `yaml:"timeout" json:"timeout"`
	// PollInterval is the interval of proof, root and receipt polling
	PollInterval string `yaml:"poll-interval" json:"poll-interval"`
	// FinalityPollInterval is the interval of finality polling
	FinalityPollInterval string       `yaml:"finality-poll-interval" json:"finality-poll-interval"`
	PrivateKeyEnv        string       `yaml:"private-key-env" json:"private-key-env"`
	LoggerConfig         LoggerConfig `yaml:"logger" json:"logger"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

func DefaultConfig(configPath string) Config {
	return Config{
		Global: newDefaultGlobalConfig(),
		Chains: []ethereum.ChainConfig{
			{Name: "default", RpcAddr: "http://localhost:3050", Addresses: ethereum.DefaultAddresses()},
		},
		ConfigPath: configPath,
	}
}

// newDefaultGlobalConfig returns a global config with defaults set
func newDefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		Timeout:              core.DefaultTimeout.String(),
		PollInterval:         core.DefaultPollInterval.String(),
		FinalityPollInterval: core.DefaultFinalityInterval.String(),
		PrivateKeyEnv:        signer.DefaultPrivateKeyEnv,
		LoggerConfig: LoggerConfig{
			Level:  "INFO",
			Format: "json",
			Output: "stderr",
		},
	}
}

// Validate checks the global settings and every chain.
func (c *Config) Validate() error {
	var errs []error
	for _, d := range []struct {
		name  string
		value string
	}{
		{"timeout", c.Global.Timeout},
		{"poll-interval", c.Global.PollInterval},
		{"finality-poll-interval", c.Global.FinalityPollInterval},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			errs = append(errs, errors.Wrapf(err, "global.%s", d.name))
		}
	}
	names := map[string]bool{}
	for i, chain := range c.Chains {
		if chain.Name == "" {
			errs = append(errs, errors.Newf("chains[%d]: name is empty", i))
		} else if names[chain.Name] {
			errs = append(errs, errors.Newf("chains[%d]: duplicate name %q", i, chain.Name))
		}
		names[chain.Name] = true
		if err := chain.Validate(); err != nil {
			errs = append(errs, errors.Wrapf(err, "chain %q", chain.Name))
		}
	}
	return errors.Join(errs...)
}

// PollConfig returns the waiting bounds of the proof, root and receipt stages.
func (g GlobalConfig) PollConfig() core.PollConfig {
	return core.PollConfig{
		Interval: parseDuration(g.PollInterval, core.DefaultPollInterval),
		Timeout:  parseDuration(g.Timeout, core.DefaultTimeout),
	}
}

// FinalityPollConfig returns the waiting bounds of the finality stage.
func (g GlobalConfig) FinalityPollConfig() core.PollConfig {
	return core.PollConfig{
		Interval: parseDuration(g.FinalityPollInterval, core.DefaultFinalityInterval),
		Timeout:  parseDuration(g.Timeout, core.DefaultTimeout),
	}
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetChain returns the chain config with the given name or chain ID
func (c *Config) GetChain(nameOrID string) (*ethereum.ChainConfig, error) {
	for i := range c.Chains {
		if c.Chains[i].Name == nameOrID {
			return &c.Chains[i], nil
		}
	}
	for i := range c.Chains {
		if c.Chains[i].ChainId != "" && c.Chains[i].ChainId == nameOrID {
			return &c.Chains[i], nil
		}
	}
	return nil, errors.WithHint(
		errors.Newf("chain '%v' not found", nameOrID),
		"list the configured chains with `irly chains list` or pass --rpc",
	)
}

// AddChain adds an additional chain to the config
func (c *Config) AddChain(chain ethereum.ChainConfig) error {
	if err := chain.Validate(); err != nil {
		return err
	}
	for _, existing := range c.Chains {
		if existing.Name == chain.Name {
			return errors.Newf("chain with name %s already exists in config", chain.Name)
		}
	}
	c.Chains = append(c.Chains, chain)
	return nil
}

// RemoveChain deletes the chain with the given name from the config
func (c *Config) RemoveChain(name string) error {
	for i := range c.Chains {
		if c.Chains[i].Name == name {
			c.Chains = append(c.Chains[:i], c.Chains[i+1:]...)
			return nil
		}
	}
	return errors.Newf("chain '%v' not found", name)
}

// Load reads the config at path. A missing file yields the default config.
func Load(path string) (*Config, error) {
	bz, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		c := DefaultConfig(path)
		return &c, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	c := DefaultConfig(path)
	c.Chains = nil
	if err := UnmarshalJSON(bz, &c); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "invalid config %s", path),
			"fix the file or move it away and run 'irly config init'",
		)
	}
	return &c, nil
}

// Save writes the config to its ConfigPath
func (c *Config) Save() error {
	if c.ConfigPath == "" {
		return errors.New("config path is not set")
	}
	bz, err := MarshalJSON(*c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.ConfigPath), 0o750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	return os.WriteFile(c.ConfigPath, bz, 0o600)
}

func indent(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
