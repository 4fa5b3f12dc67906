package config

// Default endpoints for each provider kind.
const (
	// DefaultInjectedEndpoint is where a locally running wallet (Frame, a
	// browser-extension bridge) exposes its EIP-1193 interface.
	DefaultInjectedEndpoint = "ws://127.0.0.1:1248"
	DefaultRelayURL         = "wss://relay.walletconnect.com"
	DefaultSessionURL       = "wss://session.sequence.app"

	// DefaultDemoTokenAddress is DAI on Polygon.
	DefaultDemoTokenAddress = "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063"
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.tether",
		App: AppConfig{
			Name:        "Tether",
			Description: "Tether wallet session demo",
			URL:         "https://github.com/mrz1836/tether",
		},
		Providers: ProvidersConfig{
			Order: []string{"injected", "relay", "session"},
			Injected: InjectedProviderConfig{
				Enabled:        true,
				Endpoint:       DefaultInjectedEndpoint,
				SessionMarkers: []string{"sequence"},
			},
			Relay: RelayProviderConfig{
				Enabled: true,
				URL:     DefaultRelayURL,
			},
			Session: SessionProviderConfig{
				Enabled:        true,
				URL:            DefaultSessionURL,
				AppName:        "Tether",
				DefaultNetwork: "polygon",
			},
		},
		SessionCache: SessionCacheConfig{
			Backend: "file",
			File:    "~/.tether/session.json",
			Redis: RedisConfig{
				Addr: "127.0.0.1:6379",
				Key:  "tether:session",
			},
		},
		Vault: VaultConfig{
			Enabled:      true,
			IdentityFile: "~/.tether/identity.age",
			UseKeyring:   false,
		},
		Transactions: TransactionsConfig{
			ConfirmationTimeoutSeconds: 0, // Unbounded; the caller cancels
			PollIntervalMillis:         1000,
			DemoGasLimit:               0x55555,
			DemoTokenAddress:           DefaultDemoTokenAddress,
		},
		Reads: ReadsConfig{
			RetryAttempts:      3,
			RatePerSecond:      10,
			Burst:              20,
			BreakerFailures:    5,
			BreakerOpenSeconds: 30,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.tether/tether.log",
		},
	}
}
