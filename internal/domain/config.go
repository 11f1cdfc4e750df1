package domain

// Config is the node information exposed to clients.
type Config struct {
	Version  string `yaml:"version"`
	ChainID  string `yaml:"chainID"`
	Contract string `yaml:"contract"`
}
