package config

import "github.com/hyperledger-labs/interop-relayer/signer"

type Context struct {
	Config *Config
}

// SignerConfig returns the signer selection for an explicit key or environment variable.
// The environment variable defaults to the configured one.
func (ctx *Context) SignerConfig(privateKey, privateKeyEnv string) *signer.PrivateKeyConfig {
	if privateKey == "" && privateKeyEnv == "" && ctx.Config != nil {
		privateKeyEnv = ctx.Config.Global.PrivateKeyEnv
	}
	return &signer.PrivateKeyConfig{PrivateKey: privateKey, PrivateKeyEnv: privateKeyEnv}
}
