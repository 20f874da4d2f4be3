package params

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.HTTP.Port != 3000 {
		t.Fatalf("port = %d, want 3000", cfg.HTTP.Port)
	}
	if cfg.Coordinator.SelectiveDelay != time.Second {
		t.Fatalf("selective delay = %s, want 1s", cfg.Coordinator.SelectiveDelay)
	}
	if cfg.Coordinator.ExpirationDuration != 90*time.Second {
		t.Fatalf("expiration duration = %s, want 90s", cfg.Coordinator.ExpirationDuration)
	}
	devnet, ok := cfg.Chains[1337]
	if !ok {
		t.Fatal("default config must serve chain 1337")
	}
	if len(devnet.FeeRecipients) != 1 || devnet.FeeRecipients[0].Address == "" {
		t.Fatalf("fee recipients = %+v, want one with an address", devnet.FeeRecipients)
	}
	if devnet.ExchangeAddress == "" || devnet.CoordinatorAddress == "" || devnet.ERC20ProxyAddress == "" {
		t.Fatalf("devnet contract addresses incomplete: %+v", devnet)
	}
	t.Logf("✓ defaults describe a complete devnet")
}

func TestParseChainSettings(t *testing.T) {
	raw := `{
		"42": {
			"FEE_RECIPIENTS": [{"ADDRESS": "0xaa", "PRIVATE_KEY": "bb"}],
			"COORDINATOR_CONTRACT_ADDRESS": "0xc0",
			"EXCHANGE_CONTRACT_ADDRESS": "0xe0",
			"ERC20_PROXY_ADDRESS": "0xff",
			"RPC_URL": "http://kovan:8545"
		}
	}`
	chains, err := ParseChainSettings(raw)
	if err != nil {
		t.Fatalf("ParseChainSettings: %v", err)
	}
	kovan, ok := chains[42]
	if !ok {
		t.Fatalf("chains = %v, want key 42", chains)
	}
	if kovan.RPCURL != "http://kovan:8545" || len(kovan.FeeRecipients) != 1 {
		t.Fatalf("settings = %+v", kovan)
	}

	if _, err := ParseChainSettings(`{"mainnet": {}}`); err == nil {
		t.Fatal("expected an error for a non-numeric chain key")
	}
	if _, err := ParseChainSettings(`not json`); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
	t.Logf("✓ chain settings parse from keyed JSON")
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("SELECTIVE_DELAY_MS", "250")
	t.Setenv("EXPIRATION_DURATION_SECONDS", "120")
	t.Setenv("PEBBLE_PATH", "/tmp/coordinator-test")
	t.Setenv("LOG_FILE", "/tmp/coordinator-test.log")
	t.Setenv("CHAIN_SETTINGS", `{"42": {"RPC_URL": "http://kovan:8545"}}`)

	cfg := LoadFromEnv("")
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Coordinator.SelectiveDelay != 250*time.Millisecond {
		t.Fatalf("selective delay = %s, want 250ms", cfg.Coordinator.SelectiveDelay)
	}
	if cfg.Coordinator.ExpirationDuration != 2*time.Minute {
		t.Fatalf("expiration duration = %s, want 2m", cfg.Coordinator.ExpirationDuration)
	}
	if cfg.Storage.PebblePath != "/tmp/coordinator-test" {
		t.Fatalf("pebble path = %s", cfg.Storage.PebblePath)
	}
	if cfg.LogFile != "/tmp/coordinator-test.log" {
		t.Fatalf("log file = %s", cfg.LogFile)
	}
	if _, ok := cfg.Chains[42]; !ok || len(cfg.Chains) != 1 {
		t.Fatalf("chains = %v, want only 42", cfg.Chains)
	}
	t.Logf("✓ environment variables override defaults")
}

func TestLoadFromEnvIgnoresBadValues(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-port")
	t.Setenv("SELECTIVE_DELAY_MS", "soon")
	t.Setenv("CHAIN_SETTINGS", "broken{")

	cfg := LoadFromEnv("")
	if cfg.HTTP.Port != 3000 {
		t.Fatalf("port = %d, want the default 3000", cfg.HTTP.Port)
	}
	if cfg.Coordinator.SelectiveDelay != time.Second {
		t.Fatalf("selective delay = %s, want the default 1s", cfg.Coordinator.SelectiveDelay)
	}
	if _, ok := cfg.Chains[1337]; !ok {
		t.Fatal("unparseable CHAIN_SETTINGS must keep the default chains")
	}
	t.Logf("✓ unparseable overrides fall back to defaults")
}
