package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"i4.energy/across/ncp/hal"
	"i4.energy/across/ncp/modem"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyAMA0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the initial baud rate of the modem UART
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// Variant is the modem module, "u201" or "r410"
	Variant string `yaml:"variant"`
	// SimType selects the SIM slot, "internal" or "external"
	SimType string `yaml:"sim_type"`

	GPIO hal.ChipPinConfig `yaml:"gpio"`

	// Network is used by the initial connect. An empty APN is looked up in
	// the APN table by IMSI.
	Network modem.NetworkConfig `yaml:"network"`
	// APNs adds or replaces entries of the built-in IMSI prefix table
	APNs modem.APNTable `yaml:"apns"`

	// PollInterval is the period of the event processing loop
	PollInterval time.Duration `yaml:"poll_interval"`
	// RetryInterval is the minimum delay between two bring-up attempts
	RetryInterval       time.Duration `yaml:"retry_interval"`
	RegistrationTimeout time.Duration `yaml:"registration_timeout"`
	ATTimeout           time.Duration `yaml:"at_timeout"`
}

// Options are the command-line flags. Every flag can also be given as an
// environment variable; a flag wins over its variable.
type Options struct {
	ConfigFile   string        `short:"c" long:"config" env:"NCP_CONFIG" description:"YAML configuration file"`
	BindAddress  string        `long:"bind-address" env:"NCP_BIND_ADDRESS" description:"Bind address for the HTTP server"`
	SerialPort   string        `long:"serial-port" env:"NCP_SERIAL_PORT" description:"Serial port of the modem"`
	BaudRate     int           `long:"baud-rate" env:"NCP_BAUD_RATE" description:"Initial baud rate of the modem UART"`
	LogLevel     string        `long:"log-level" env:"NCP_LOG_LEVEL" description:"Log level (debug, info, warn, error)"`
	Variant      string        `long:"variant" env:"NCP_VARIANT" description:"Modem variant (u201, r410)"`
	SimType      string        `long:"sim" env:"NCP_SIM" description:"SIM slot (internal, external)"`
	GPIOChip     string        `long:"gpio-chip" env:"NCP_GPIO_CHIP" description:"GPIO chip of the modem control lines"`
	APN          string        `long:"apn" env:"NCP_APN" description:"Access point name"`
	User         string        `long:"apn-user" env:"NCP_APN_USER" description:"PDP authentication user"`
	Password     string        `long:"apn-password" env:"NCP_APN_PASSWORD" description:"PDP authentication password"`
	PollInterval time.Duration `long:"poll-interval" env:"NCP_POLL_INTERVAL" description:"Event processing period"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order,
// then validates and normalizes the result
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	if err := Validate(config); err != nil {
		return nil, err
	}
	Normalize(config)

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyAMA0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.Variant = "u201"
		c.SimType = "internal"
		c.GPIO = hal.ChipPinConfig{
			Chip:         "gpiochip0",
			Consumer:     "ncpd",
			Power:        17,
			Reset:        27,
			BufferEnable: 22,
			PowerGood:    23,
		}
		c.PollInterval = 5 * time.Second
		c.RetryInterval = time.Minute
		c.RegistrationTimeout = modem.DefaultRegistrationTimeout
		c.ATTimeout = 10 * time.Second
		return nil
	}
}

// WithFile merges a YAML configuration file. Keys missing from the file
// keep their current value. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithOptions applies the flags and environment variables that were set
func WithOptions(o *Options) ConfigOption {
	return func(c *Config) error {
		setString(&c.BindAddress, o.BindAddress)
		setString(&c.SerialPort, o.SerialPort)
		setString(&c.LogLevel, o.LogLevel)
		setString(&c.Variant, o.Variant)
		setString(&c.SimType, o.SimType)
		setString(&c.GPIO.Chip, o.GPIOChip)
		setString(&c.Network.APN, o.APN)
		setString(&c.Network.User, o.User)
		setString(&c.Network.Password, o.Password)
		if o.BaudRate != 0 {
			c.BaudRate = o.BaudRate
		}
		if o.PollInterval != 0 {
			c.PollInterval = o.PollInterval
		}
		return nil
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks configuration correctness. It does not mutate the
// configuration.
func Validate(c *Config) error {
	var errs []error
	if c.SerialPort == "" {
		errs = append(errs, errors.New("serial_port is required"))
	}
	if c.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("baud_rate must be > 0, got %d", c.BaudRate))
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := modem.ParseVariant(c.Variant); err != nil {
		errs = append(errs, err)
	}
	if _, err := modem.ParseSimType(c.SimType); err != nil {
		errs = append(errs, err)
	}
	if c.GPIO.Chip == "" {
		errs = append(errs, errors.New("gpio.chip is required"))
	}
	lines := map[int]string{}
	for name, offset := range map[string]int{
		"power":         c.GPIO.Power,
		"reset":         c.GPIO.Reset,
		"buffer_enable": c.GPIO.BufferEnable,
		"power_good":    c.GPIO.PowerGood,
	} {
		if offset < 0 {
			errs = append(errs, fmt.Errorf("gpio.%s must be >= 0", name))
			continue
		}
		if other, ok := lines[offset]; ok {
			errs = append(errs, fmt.Errorf("gpio.%s and gpio.%s share line %d", name, other, offset))
		}
		lines[offset] = name
	}
	if c.Network.APN == "" && (c.Network.User != "" || c.Network.Password != "") {
		errs = append(errs, errors.New("network credentials given without an apn"))
	}
	for prefix, conf := range c.APNs {
		if len(prefix) < 5 || strings.Trim(prefix, "0123456789") != "" {
			errs = append(errs, fmt.Errorf("apns: %q is not an MCC/MNC prefix", prefix))
		}
		if !conf.Valid() {
			errs = append(errs, fmt.Errorf("apns: %q has no apn", prefix))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be > 0"))
	}
	if c.RetryInterval < 0 || c.RegistrationTimeout < 0 || c.ATTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Normalize applies post-validation normalization. It must only be called
// after Validate.
func Normalize(c *Config) {
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.Variant = strings.ToLower(c.Variant)
	c.SimType = strings.ToLower(c.SimType)
	c.Network.APN = strings.TrimSpace(c.Network.APN)
	if c.RegistrationTimeout < modem.DefaultRegistrationTimeout {
		c.RegistrationTimeout = modem.DefaultRegistrationTimeout
	}
	if c.RetryInterval < c.PollInterval {
		c.RetryInterval = c.PollInterval
	}
}

// APNTable returns the built-in table with the configured overrides.
func (c *Config) APNTable() modem.APNTable {
	return modem.DefaultAPNTable().Merge(c.APNs)
}
