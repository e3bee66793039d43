package factory

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/courier/interfaces"
	"github.com/opd-ai/courier/lifecycle"
	"github.com/opd-ai/courier/real"
	"github.com/opd-ai/courier/session"
	"github.com/opd-ai/courier/testing"
)

// Validation constants for configuration bounds checking.
const (
	// MinCallTimeout is the minimum allowed bridge call timeout in milliseconds.
	MinCallTimeout = 100
	// MaxCallTimeout is the maximum allowed bridge call timeout in milliseconds (10 minutes).
	MaxCallTimeout = 600000
)

// Environment variables read by NewTransportFactory.
const (
	EnvUseSimulation    = "COURIER_USE_SIMULATION"
	EnvBridgeURL        = "COURIER_BRIDGE_URL"
	EnvClientID         = "COURIER_CLIENT_ID"
	EnvCallTimeout      = "COURIER_CALL_TIMEOUT"
	EnvHandshakeTimeout = "COURIER_HANDSHAKE_TIMEOUT"
)

// TransportFactory creates messaging transports based on configuration.
// It is safe for concurrent use; all methods are protected by an internal mutex.
type TransportFactory struct {
	mu            sync.RWMutex
	defaultConfig *interfaces.TransportConfig
}

// NewTransportFactory creates a new factory with default configuration and
// COURIER_* environment overrides applied.
func NewTransportFactory() *TransportFactory {
	defaultConfig := createDefaultConfig()
	ApplyEnvironmentOverrides(defaultConfig)
	logConfigurationInfo(defaultConfig)

	return &TransportFactory{
		defaultConfig: defaultConfig,
	}
}

// NewTransportFactoryWithConfig creates a factory from an explicit
// configuration, skipping environment overrides.
func NewTransportFactoryWithConfig(config interfaces.TransportConfig) (*TransportFactory, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport configuration: %w", err)
	}
	logConfigurationInfo(&config)
	return &TransportFactory{defaultConfig: &config}, nil
}

// createDefaultConfig initializes the default transport configuration.
//
// Default Value Rationale:
//   - UseSimulation: false - Production mode by default; simulation must be explicitly enabled
//   - BridgeURL: local worker on the loopback interface
//   - ClientID: "courier" - one credential slot per deployment
//   - CallTimeout: 30s - browser-driven calls can take several seconds under load
//   - HandshakeTimeout: 10s - the worker is expected to be local
func createDefaultConfig() *interfaces.TransportConfig {
	return &interfaces.TransportConfig{
		UseSimulation:    false,
		BridgeURL:        "ws://127.0.0.1:9229/bridge",
		ClientID:         "courier",
		CallTimeout:      30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// ApplyEnvironmentOverrides updates configuration based on environment variables.
// It checks for COURIER_* environment variables and overrides defaults if valid values are found.
func ApplyEnvironmentOverrides(config *interfaces.TransportConfig) {
	parseSimulationSetting(config)
	if v := os.Getenv(EnvBridgeURL); v != "" {
		config.BridgeURL = v
	}
	if v := os.Getenv(EnvClientID); v != "" {
		config.ClientID = v
	}
	parseTimeoutSetting(EnvCallTimeout, &config.CallTimeout)
	parseTimeoutSetting(EnvHandshakeTimeout, &config.HandshakeTimeout)
}

// parseSimulationSetting updates the UseSimulation config from COURIER_USE_SIMULATION.
// It logs a warning if parsing fails and only updates config if parsing succeeds.
func parseSimulationSetting(config *interfaces.TransportConfig) {
	useSimStr := os.Getenv(EnvUseSimulation)
	if useSimStr == "" {
		return
	}
	useSim, err := strconv.ParseBool(useSimStr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseSimulationSetting",
			"env_var":     EnvUseSimulation,
			"value":       useSimStr,
			"error":       err.Error(),
			"using_value": config.UseSimulation,
		}).Warn("Failed to parse COURIER_USE_SIMULATION environment variable, using default")
		return
	}
	config.UseSimulation = useSim
}

// parseTimeoutSetting reads a millisecond timeout from envVar, keeping the
// current value when the variable is malformed or out of bounds.
func parseTimeoutSetting(envVar string, target *time.Duration) {
	timeoutStr := os.Getenv(envVar)
	if timeoutStr == "" {
		return
	}
	ms, err := strconv.Atoi(timeoutStr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseTimeoutSetting",
			"env_var":     envVar,
			"value":       timeoutStr,
			"error":       err.Error(),
			"using_value": *target,
		}).Warn("Failed to parse timeout environment variable, using default")
		return
	}
	if ms < MinCallTimeout || ms > MaxCallTimeout {
		logrus.WithFields(logrus.Fields{
			"function":    "parseTimeoutSetting",
			"env_var":     envVar,
			"value":       ms,
			"min":         MinCallTimeout,
			"max":         MaxCallTimeout,
			"using_value": *target,
		}).Warn("Timeout environment variable out of bounds, using default")
		return
	}
	*target = time.Duration(ms) * time.Millisecond
}

// logConfigurationInfo logs the final configuration settings for debugging purposes.
func logConfigurationInfo(config *interfaces.TransportConfig) {
	logrus.WithFields(logrus.Fields{
		"function":          "NewTransportFactory",
		"use_simulation":    config.UseSimulation,
		"bridge_url":        config.BridgeURL,
		"client_id":         config.ClientID,
		"call_timeout":      config.CallTimeout,
		"handshake_timeout": config.HandshakeTimeout,
	}).Info("Created transport factory with configuration")
}

// CreateTransport creates a transport based on the current configuration.
func (f *TransportFactory) CreateTransport(store session.Store) (interfaces.IMessagingTransport, error) {
	return f.CreateTransportWithConfig(store, f.GetCurrentConfig())
}

// CreateTransportWithConfig creates a transport with custom configuration.
func (f *TransportFactory) CreateTransportWithConfig(store session.Store, config *interfaces.TransportConfig) (interfaces.IMessagingTransport, error) {
	if config == nil {
		config = f.GetCurrentConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport configuration: %w", err)
	}

	if config.UseSimulation {
		logrus.WithFields(logrus.Fields{
			"function": "CreateTransportWithConfig",
			"type":     "simulation",
		}).Info("Creating simulated messaging transport")
		return testing.NewSimulatedTransport(config), nil
	}

	logrus.WithFields(logrus.Fields{
		"function":   "CreateTransportWithConfig",
		"type":       "real",
		"bridge_url": config.BridgeURL,
	}).Info("Creating bridge messaging transport")
	return real.NewBridgeTransport(config, store), nil
}

// Constructor returns a lifecycle.TransportFactory that builds a fresh
// transport from the factory's configuration on every call.
func (f *TransportFactory) Constructor(store session.Store) lifecycle.TransportFactory {
	return func() (interfaces.IMessagingTransport, error) {
		return f.CreateTransport(store)
	}
}

// SwitchToSimulation makes every transport built from now on a simulated one.
func (f *TransportFactory) SwitchToSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchToSimulation",
		"previous": f.defaultConfig.UseSimulation,
	}).Info("Switching factory to simulation mode")

	f.defaultConfig.UseSimulation = true
}

// GetCurrentConfig returns a copy of the current default configuration.
func (f *TransportFactory) GetCurrentConfig() *interfaces.TransportConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cfg := *f.defaultConfig
	return &cfg
}

// IsUsingSimulation returns true if the factory is configured for simulation.
func (f *TransportFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.defaultConfig.UseSimulation
}
