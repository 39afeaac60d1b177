package cmd

import (
	"os"

	"github.com/rs/zerolog"

	"cosmossdk.io/log"

	"github.com/strangelove-ventures/xion-cctp-bridge/config"
)

// appState is the modifiable state of the application.
type AppState struct {
	Config *config.Config

	ConfigPath string

	Debug bool

	LogLevel string

	Logger log.Logger

	// Getenv resolves <CHAIN>_PRIV_KEY variables. Defaults to os.Getenv.
	Getenv func(string) string
}

func NewAppState() *AppState {
	return &AppState{Getenv: os.Getenv}
}

// InitAppState checks if a logger and config are present. If not, it adds them to the AppState
func (a *AppState) InitAppState() {
	if a.Logger == nil {
		a.InitLogger()
	}
	if a.Config == nil {
		a.loadConfigFile()
	}
}

func (a *AppState) InitLogger() {
	// info level is default
	level := zerolog.InfoLevel
	switch a.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	// a.Debug overrides a.loglevel
	if a.Debug {
		a.Logger = log.NewLogger(os.Stdout, log.LevelOption(zerolog.DebugLevel))
	} else {
		a.Logger = log.NewLogger(os.Stdout, log.LevelOption(level))
	}
}

// loadConfigFile loads a configuration into the AppState. It uses the AppState ConfigPath
// to determine file path to config.
func (a *AppState) loadConfigFile() {
	if a.Logger == nil {
		a.InitLogger()
	}
	cfg, err := config.Parse(a.ConfigPath)
	if err != nil {
		a.Logger.Error("Unable to parse config file", "location", a.ConfigPath, "err", err)
		os.Exit(1)
	}
	a.Logger.Info("Successfully parsed config file", "location", a.ConfigPath)
	a.Config = cfg

	if err := a.validateConfig(); err != nil {
		a.Logger.Error("Invalid config", "err", err)
		os.Exit(1)
	}
}

// validateConfig checks the AppState Config for any invalid settings.
func (a *AppState) validateConfig() error {
	return a.Config.Validate()
}

// loadPrivateKeys resolves signing keys for commands that broadcast.
func (a *AppState) loadPrivateKeys() error {
	getenv := a.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return a.Config.LoadPrivateKeys(getenv)
}
