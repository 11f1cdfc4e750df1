package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-yaml/yaml"

	"github.com/totegamma/bookshelf"
)

type Config struct {
	Chain  Chain  `yaml:"chain"`
	Wallet Wallet `yaml:"wallet"`
	Server Server `yaml:"server"`
}

type Chain struct {
	RPCURL                string `yaml:"rpcURL"`
	ContractAddress       string `yaml:"contractAddress"`
	ConfirmTimeoutSeconds int    `yaml:"confirmTimeoutSeconds"`
}

type Wallet struct {
	PrivateKeys    []string `yaml:"privateKeys"`
	DefaultAccount string   `yaml:"defaultAccount"` // connected on startup when set
}

type Server struct {
	ListenAddr    string `yaml:"listenAddr"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

const (
	defaultListenAddr     = ":8000"
	defaultConfirmSeconds = 60
)

func (c Chain) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	if config.Chain.RPCURL == "" {
		return Config{}, fmt.Errorf("chain.rpcURL is required")
	}

	contract, err := bookshelf.NormalizeAddress(config.Chain.ContractAddress)
	if err != nil {
		return Config{}, fmt.Errorf("invalid chain.contractAddress: %v", err)
	}
	config.Chain.ContractAddress = contract

	if config.Chain.ConfirmTimeoutSeconds <= 0 {
		config.Chain.ConfirmTimeoutSeconds = defaultConfirmSeconds
	}

	if config.Wallet.DefaultAccount != "" {
		account, err := bookshelf.NormalizeAddress(config.Wallet.DefaultAccount)
		if err != nil {
			return Config{}, fmt.Errorf("invalid wallet.defaultAccount: %v", err)
		}
		config.Wallet.DefaultAccount = account
	}

	if config.Server.ListenAddr == "" {
		config.Server.ListenAddr = defaultListenAddr
	}

	return config, nil
}
