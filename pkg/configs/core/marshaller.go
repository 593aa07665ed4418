package core

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LoadCoreConfig loads the daemon config from a yaml file.
func LoadCoreConfig(filepath string) (*CoreConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (*CoreConfig, error) {
	var marshalled *CoreConfigMarshall
	if err := yaml.Unmarshal(conf, &marshalled); err != nil {
		return nil, err
	}
	return TrySeal[*CoreConfig](marshalled), nil
}
