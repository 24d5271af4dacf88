package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/ncp/modem"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ncpd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func parseOptions(t *testing.T, args ...string) *Options {
	t.Helper()
	var opts Options
	_, err := flags.NewParser(&opts, flags.None).ParseArgs(args)
	require.NoError(t, err)
	return &opts
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(WithDefaults())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", config.BindAddress)
	assert.Equal(t, 115200, config.BaudRate)
	assert.Equal(t, "u201", config.Variant)
	assert.Equal(t, "gpiochip0", config.GPIO.Chip)
	assert.Equal(t, 5*time.Second, config.PollInterval)
	assert.Equal(t, modem.DefaultRegistrationTimeout, config.RegistrationTimeout)
	assert.Equal(t, modem.DefaultAPNTable(), config.APNTable())
}

func TestWithFile(t *testing.T) {
	path := writeConfigFile(t, `
serial_port: /dev/ttyUSB2
variant: SARA-R410
log_level: DEBUG
gpio:
  power: 5
  power_good: 6
network:
  apn: iot.example
  user: ncp
  password: secret
apns:
  "90128": {apn: things.example}
poll_interval: 2s
registration_timeout: 20m
`)

	config, err := LoadConfig(WithDefaults(), WithFile(path))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB2", config.SerialPort)
	assert.Equal(t, "sara-r410", config.Variant)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 5, config.GPIO.Power)
	assert.Equal(t, 6, config.GPIO.PowerGood)
	assert.Equal(t, 27, config.GPIO.Reset, "keys missing from the file keep their default")
	assert.Equal(t, modem.NetworkConfig{APN: "iot.example", User: "ncp", Password: "secret"}, config.Network)
	assert.Equal(t, 2*time.Second, config.PollInterval)
	assert.Equal(t, 20*time.Minute, config.RegistrationTimeout)

	conf, ok := config.APNTable().Lookup("901280000000001")
	require.True(t, ok)
	assert.Equal(t, "things.example", conf.APN)
	_, ok = config.APNTable().Lookup("310410123456789")
	assert.True(t, ok, "built-in entries are kept")
}

func TestWithFileErrors(t *testing.T) {
	_, err := LoadConfig(WithDefaults(), WithFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)

	_, err = LoadConfig(WithDefaults(), WithFile(writeConfigFile(t, "poll_interval: often\n")))
	assert.Error(t, err)

	config, err := LoadConfig(WithDefaults(), WithFile(""))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyAMA0", config.SerialPort)
}

func TestWithOptions(t *testing.T) {
	t.Setenv("NCP_SERIAL_PORT", "/dev/from-env")
	t.Setenv("NCP_VARIANT", "r410")
	t.Setenv("NCP_APN", "env.apn")

	opts := parseOptions(t, "--serial-port", "/dev/from-flag", "--poll-interval", "1s", "--baud-rate", "460800")
	path := writeConfigFile(t, "serial_port: /dev/from-file\nbind_address: 127.0.0.1:9000\n")

	config, err := LoadConfig(WithDefaults(), WithFile(path), WithOptions(opts))
	require.NoError(t, err)

	assert.Equal(t, "/dev/from-flag", config.SerialPort, "a flag wins over its variable")
	assert.Equal(t, "r410", config.Variant)
	assert.Equal(t, "env.apn", config.Network.APN)
	assert.Equal(t, "127.0.0.1:9000", config.BindAddress)
	assert.Equal(t, 460800, config.BaudRate)
	assert.Equal(t, time.Second, config.PollInterval)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(c *Config){
		"no serial port":      func(c *Config) { c.SerialPort = "" },
		"bad baud rate":       func(c *Config) { c.BaudRate = 0 },
		"bad log level":       func(c *Config) { c.LogLevel = "trace" },
		"bad variant":         func(c *Config) { c.Variant = "n211" },
		"bad sim type":        func(c *Config) { c.SimType = "esim" },
		"no gpio chip":        func(c *Config) { c.GPIO.Chip = "" },
		"shared gpio line":    func(c *Config) { c.GPIO.Reset = c.GPIO.Power },
		"negative gpio line":  func(c *Config) { c.GPIO.PowerGood = -1 },
		"credentials no apn":  func(c *Config) { c.Network.User = "u" },
		"short apn prefix":    func(c *Config) { c.APNs = modem.APNTable{"310": {APN: "x"}} },
		"apn prefix letters":  func(c *Config) { c.APNs = modem.APNTable{"31041a": {APN: "x"}} },
		"apn entry no apn":    func(c *Config) { c.APNs = modem.APNTable{"310410": {}} },
		"zero poll interval":  func(c *Config) { c.PollInterval = 0 },
		"negative at timeout": func(c *Config) { c.ATTimeout = -time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := &Config{}
			require.NoError(t, WithDefaults()(config))
			require.NoError(t, Validate(config))

			mutate(config)
			assert.Error(t, Validate(config))
		})
	}
}

func TestNormalize(t *testing.T) {
	config := &Config{}
	require.NoError(t, WithDefaults()(config))
	config.LogLevel = "WARN"
	config.Network.APN = " iot.example "
	config.RegistrationTimeout = time.Minute
	config.PollInterval = 2 * time.Minute
	config.RetryInterval = time.Minute

	Normalize(config)

	assert.Equal(t, "warn", config.LogLevel)
	assert.Equal(t, "iot.example", config.Network.APN)
	assert.Equal(t, modem.DefaultRegistrationTimeout, config.RegistrationTimeout)
	assert.Equal(t, 2*time.Minute, config.RetryInterval)
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "warn", "error", ""} {
		_, err := parseLogLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := parseLogLevel("verbose")
	assert.Error(t, err)
}
