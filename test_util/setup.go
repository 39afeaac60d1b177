package testutil

import (
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"cosmossdk.io/log"

	"github.com/strangelove-ventures/xion-cctp-bridge/config"
)

// LiveConfigEnv points live tests at a config file. They are skipped when it is unset.
const LiveConfigEnv = "BRIDGE_LIVE_CONFIG"

var EnvFile = os.ExpandEnv("$GOPATH/src/github.com/strangelove-ventures/xion-cctp-bridge/.env")

// ConfigSetup loads the live test config and its signing keys from the environment.
func ConfigSetup(t *testing.T) (*config.Config, log.Logger) {
	t.Helper()

	logger := log.NewLogger(os.Stdout, log.LevelOption(zerolog.DebugLevel))

	// keys may also be exported directly
	if err := godotenv.Load(EnvFile); err != nil {
		logger.Debug("No env file loaded", "location", EnvFile, "err", err)
	}

	path := os.Getenv(LiveConfigEnv)
	if path == "" {
		t.Skipf("%s not set, skipping live test", LiveConfigEnv)
	}

	cfg, err := config.Parse(path)
	require.NoError(t, err, "Error parsing config")
	require.NoError(t, cfg.Validate(), "Invalid config")
	require.NoError(t, cfg.LoadPrivateKeys(os.Getenv), "Error loading private keys")

	return cfg, logger
}
