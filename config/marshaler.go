package config

import (
	"encoding/json"

	"gopkg.in/yaml.v2"
)

func MarshalJSON(config Config) ([]byte, error) {
	return indent(config)
}

func UnmarshalJSON(bz []byte, config *Config) error {
	return json.Unmarshal(bz, config)
}

func MarshalYAML(config Config) ([]byte, error) {
	return yaml.Marshal(config)
}
