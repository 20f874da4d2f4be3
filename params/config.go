package params

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// FeeRecipient is one address this coordinator signs approvals for, with
// its private key. Keys live in configuration only; they never appear in
// logs or responses.
type FeeRecipient struct {
	Address    string `json:"ADDRESS"`
	PrivateKey string `json:"PRIVATE_KEY"`
}

// ChainSettings holds the per-chain contract addresses and RPC endpoint.
type ChainSettings struct {
	FeeRecipients      []FeeRecipient `json:"FEE_RECIPIENTS"`
	CoordinatorAddress string         `json:"COORDINATOR_CONTRACT_ADDRESS"`
	ExchangeAddress    string         `json:"EXCHANGE_CONTRACT_ADDRESS"`
	ERC20ProxyAddress  string         `json:"ERC20_PROXY_ADDRESS"`
	RPCURL             string         `json:"RPC_URL"`
}

type HTTP struct {
	Port int
}

type Coordinator struct {
	// SelectiveDelay is how long fill requests are held before approval,
	// giving makers a window to soft-cancel.
	SelectiveDelay time.Duration
	// ExpirationDuration is the lifetime of issued approvals.
	ExpirationDuration time.Duration
}

type Storage struct {
	PebblePath string
}

type Config struct {
	HTTP        HTTP
	Coordinator Coordinator
	Storage     Storage
	LogFile     string
	Chains      map[int64]ChainSettings
}

// Default returns a devnet configuration: chain 1337 with the stock ganache
// snapshot contracts and the first well-known dev account as fee recipient.
func Default() Config {
	return Config{
		HTTP: HTTP{Port: 3000},
		Coordinator: Coordinator{
			SelectiveDelay:     1000 * time.Millisecond,
			ExpirationDuration: 90 * time.Second,
		},
		Storage: Storage{PebblePath: "data/coordinator"},
		Chains: map[int64]ChainSettings{
			1337: {
				FeeRecipients: []FeeRecipient{{
					Address:    "0x5409ed021d9299bf6814279a6a1411a7e866a631",
					PrivateKey: "f2f48ee19680706196e2e339e5da3491186e0c4c5030670656b0e0164837257d",
				}},
				CoordinatorAddress: "0x4d3d5c850dd5bd9d6f4adda3dd039a3c8054ca29",
				ExchangeAddress:    "0x48bacb9266a570d521063ef5dd96e61686dbe788",
				ERC20ProxyAddress:  "0x1dc4c1cefef38a777b15aa20260a54e584b16c48",
				RPCURL:             "http://localhost:8545",
			},
		},
	}
}

// ParseChainSettings decodes the CHAIN_SETTINGS value: a JSON object keyed
// by decimal chain id, e.g. {"1337": {"EXCHANGE_CONTRACT_ADDRESS": ...}}.
func ParseChainSettings(raw string) (map[int64]ChainSettings, error) {
	var keyed map[string]ChainSettings
	if err := json.Unmarshal([]byte(raw), &keyed); err != nil {
		return nil, fmt.Errorf("chain settings: %w", err)
	}
	chains := make(map[int64]ChainSettings, len(keyed))
	for key, settings := range keyed {
		chainID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("chain settings: key %q is not a chain id", key)
		}
		chains[chainID] = settings
	}
	return chains, nil
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Optional .env file; absence is fine.
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if port := os.Getenv("HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if delay := os.Getenv("SELECTIVE_DELAY_MS"); delay != "" {
		if ms, err := strconv.Atoi(delay); err == nil {
			cfg.Coordinator.SelectiveDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if expiration := os.Getenv("EXPIRATION_DURATION_SECONDS"); expiration != "" {
		if s, err := strconv.Atoi(expiration); err == nil {
			cfg.Coordinator.ExpirationDuration = time.Duration(s) * time.Second
		}
	}
	if settings := os.Getenv("CHAIN_SETTINGS"); settings != "" {
		if chains, err := ParseChainSettings(settings); err == nil {
			cfg.Chains = chains
		}
	}

	cfg.Storage.PebblePath = getEnv("PEBBLE_PATH", cfg.Storage.PebblePath)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	return cfg
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
