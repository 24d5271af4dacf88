package modem

import (
	"fmt"
	"log/slog"
	"time"

	"i4.energy/across/ncp/hal"
)

const (
	// DefaultRegistrationTimeout is the shortest accepted registration
	// timeout.
	DefaultRegistrationTimeout = 10 * time.Minute
	// registrationCheckInterval is the period of registration re-queries
	// while connecting.
	registrationCheckInterval = 15 * time.Second
	defaultATTimeout          = 10 * time.Second
)

// Config holds the client configuration. Build it with ConfigBuilder.
type Config struct {
	Dialer  Dialer
	Variant Variant
	SimType SimType
	Pins    hal.PinSet
	Clock   hal.Clock
	Logger  *slog.Logger
	// RegistrationTimeout bounds a registration attempt; values below
	// DefaultRegistrationTimeout are raised to it.
	RegistrationTimeout time.Duration
	EventHandler        EventHandler
	DataHandler         DataHandler
	// ATTimeout is the default command timeout.
	ATTimeout time.Duration
	// APNs maps IMSI prefixes to network settings, used when Connect is
	// given no APN.
	APNs APNTable
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	if c.Variant != VariantSaraU201 && c.Variant != VariantSaraR410 {
		return fmt.Errorf("%w: variant %v", ErrInvalidConfig, c.Variant)
	}
	if c.SimType != SimInternal && c.SimType != SimExternal {
		return fmt.Errorf("%w: SIM type %d", ErrInvalidConfig, int(c.SimType))
	}
	if err := c.Pins.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.RegistrationTimeout < 0 || c.ATTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Clock == nil {
		c.Clock = hal.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.RegistrationTimeout = max(c.RegistrationTimeout, DefaultRegistrationTimeout)
	if c.ATTimeout == 0 {
		c.ATTimeout = defaultATTimeout
	}
	if c.APNs == nil {
		c.APNs = DefaultAPNTable()
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with every field unset.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithVariant(v Variant) *ConfigBuilder {
	b.config.Variant = v
	return b
}

func (b *ConfigBuilder) WithSimType(s SimType) *ConfigBuilder {
	b.config.SimType = s
	return b
}

func (b *ConfigBuilder) WithPins(p hal.PinSet) *ConfigBuilder {
	b.config.Pins = p
	return b
}

func (b *ConfigBuilder) WithClock(c hal.Clock) *ConfigBuilder {
	b.config.Clock = c
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithRegistrationTimeout(d time.Duration) *ConfigBuilder {
	b.config.RegistrationTimeout = d
	return b
}

func (b *ConfigBuilder) WithEventHandler(h EventHandler) *ConfigBuilder {
	b.config.EventHandler = h
	return b
}

func (b *ConfigBuilder) WithDataHandler(h DataHandler) *ConfigBuilder {
	b.config.DataHandler = h
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithAPNTable(t APNTable) *ConfigBuilder {
	b.config.APNs = t
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
