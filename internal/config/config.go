// Package config loads the repeater's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sweeney/repeater/internal/gpio"
	"github.com/sweeney/repeater/internal/logging"
)

// ErrInvalid marks a configuration error. It is always reported before any
// hardware is touched.
var ErrInvalid = errors.New("invalid configuration")

// Operating modes.
const (
	ModeSimplexVOX = "simplex-vox"
	ModeSimplexCOR = "simplex-cor"
	ModeDuplexCOR  = "duplex-cor"
)

// Pin is a single configured GPIO line.
type Pin struct {
	Pin      int  `yaml:"pin"`
	Inverted bool `yaml:"inverted"`
}

// Config represents the repeater configuration file.
type Config struct {
	Mode                    string  `yaml:"mode"`
	Enabled                 bool    `yaml:"enabled"`
	TransmitTimeout         int     `yaml:"transmit_timeout"`
	DebounceMs              int     `yaml:"debounce_ms"`
	PollIntervalMs          int     `yaml:"poll_interval_ms"`
	DelayedPlaybackInterval float64 `yaml:"delayed_playback_interval"`
	CourtesyTone            string  `yaml:"courtesy_tone"`
	StoreRecordings         bool    `yaml:"store_recordings"`
	RecordDevice            string  `yaml:"record_device"`
	VOXTuning               string  `yaml:"vox_tuning"`

	Paths struct {
		Buffer     string `yaml:"buffer"`
		Recordings string `yaml:"recordings"`
		Sounds     string `yaml:"sounds"`
		Database   string `yaml:"database"`
	} `yaml:"paths"`

	GPIO struct {
		Chip    string `yaml:"chip"`
		Backend string `yaml:"backend"`
		COS     Pin    `yaml:"cos"`
		PTT     Pin    `yaml:"ptt"`
		LEDPwr  Pin    `yaml:"led_pwr"`
		LEDRx   Pin    `yaml:"led_rx"`
		LEDTx   Pin    `yaml:"led_tx"`
	} `yaml:"gpio"`

	Audio struct {
		RecordBin   string `yaml:"record_bin"`
		PlayBin     string `yaml:"play_bin"`
		StopGraceMs int    `yaml:"stop_grace_ms"`
	} `yaml:"audio"`

	Tripwire struct {
		Enabled   bool   `yaml:"enabled"`
		URL       string `yaml:"url"`
		TimeoutMs int    `yaml:"timeout_ms"`
	} `yaml:"tripwire"`

	MQTT struct {
		Enabled  bool   `yaml:"enabled"`
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
		Topic    string `yaml:"topic"`
	} `yaml:"mqtt"`

	Archive struct {
		Enabled         bool   `yaml:"enabled"`
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		TLS             bool   `yaml:"tls"`
		Timeout         int    `yaml:"timeout"`
		User            string `yaml:"user"`
		Pass            string `yaml:"pass"`
		Path            string `yaml:"path"`
		DeleteOnSuccess bool   `yaml:"delete_on_success"`
	} `yaml:"archive"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{
		Mode:            ModeSimplexCOR,
		TransmitTimeout: 120,
		DebounceMs:      250,
		PollIntervalMs:  10,
		CourtesyTone:    "BEEP",
		RecordDevice:    "alsa",
		VOXTuning:       "1 0.1 5% 1 1.0 5%",
	}

	c.Paths.Buffer = "/var/lib/repeater/input/buffer.ogg"
	c.Paths.Recordings = "/var/lib/repeater/recordings"
	c.Paths.Sounds = "/usr/share/repeater/sounds"
	c.Paths.Database = "/var/lib/repeater/recordings.db"

	c.GPIO.Chip = "gpiochip0"
	c.GPIO.Backend = gpio.BackendAuto
	c.GPIO.COS.Pin = gpio.DefaultPinCOS
	c.GPIO.PTT.Pin = gpio.DefaultPinPTT
	c.GPIO.LEDPwr.Pin = gpio.DefaultPinLEDPwr
	c.GPIO.LEDRx.Pin = gpio.DefaultPinLEDRx
	c.GPIO.LEDTx.Pin = gpio.DefaultPinLEDTx

	c.Audio.RecordBin = "rec"
	c.Audio.PlayBin = "play"
	c.Audio.StopGraceMs = 2000

	c.Tripwire.TimeoutMs = 5000

	c.MQTT.ClientID = "repeater"
	c.MQTT.Topic = "radio/repeater"

	c.Archive.Port = 21
	c.Archive.Timeout = 30

	c.Logging.Level = "info"
	c.Logging.MaxSize = 10
	c.Logging.MaxBackups = 3
	c.Logging.MaxAge = 28
	return c
}

// Load reads and parses a YAML file. It does not validate; call Validate
// before using the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config file: %v", ErrInvalid, err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data over the defaults. Keys absent from
// data keep their default value. The mode name is case-insensitive.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: parse config file: %v", ErrInvalid, err)
	}
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	return c, nil
}

// Validate checks the configuration for errors that must stop the process
// before the radio interface is opened.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSimplexVOX, ModeSimplexCOR, ModeDuplexCOR:
	default:
		return fmt.Errorf("%w: RX/TX mode %q not supported", ErrInvalid, c.Mode)
	}
	if c.TransmitTimeout <= 0 {
		return fmt.Errorf("%w: transmit_timeout must be positive, got %d", ErrInvalid, c.TransmitTimeout)
	}
	if c.DebounceMs <= 0 {
		return fmt.Errorf("%w: debounce_ms must be positive, got %d", ErrInvalid, c.DebounceMs)
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("%w: poll_interval_ms must be positive, got %d", ErrInvalid, c.PollIntervalMs)
	}
	if c.DelayedPlaybackInterval < 0 {
		return fmt.Errorf("%w: delayed_playback_interval must not be negative", ErrInvalid)
	}

	switch c.GPIO.Backend {
	case gpio.BackendAuto, gpio.BackendChip, gpio.BackendVirtual:
	default:
		return fmt.Errorf("%w: unknown gpio backend %q", ErrInvalid, c.GPIO.Backend)
	}
	seen := make(map[int]string)
	for _, p := range []struct {
		name string
		pin  Pin
	}{
		{gpio.NameCOS, c.GPIO.COS},
		{gpio.NamePTT, c.GPIO.PTT},
		{gpio.NameLEDPwr, c.GPIO.LEDPwr},
		{gpio.NameLEDRx, c.GPIO.LEDRx},
		{gpio.NameLEDTx, c.GPIO.LEDTx},
	} {
		if p.pin.Pin < 0 {
			return fmt.Errorf("%w: %s pin must not be negative", ErrInvalid, p.name)
		}
		if other, ok := seen[p.pin.Pin]; ok {
			return fmt.Errorf("%w: %s and %s share pin %d", ErrInvalid, other, p.name, p.pin.Pin)
		}
		seen[p.pin.Pin] = p.name
	}

	if c.Tripwire.Enabled && c.Tripwire.URL == "" {
		return fmt.Errorf("%w: tripwire enabled without url", ErrInvalid)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("%w: mqtt enabled without broker", ErrInvalid)
	}
	if c.Archive.Enabled && c.Archive.Host == "" {
		return fmt.Errorf("%w: archive enabled without host", ErrInvalid)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging: %v", ErrInvalid, err)
	}
	return nil
}

// LogOptions returns the logger settings.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
	}
}

// CourtesyToneName returns the tone to play after transmissions, or "" if
// the courtesy tone is disabled.
func (c *Config) CourtesyToneName() string {
	switch strings.ToLower(strings.TrimSpace(c.CourtesyTone)) {
	case "", "false", "off", "no", "none":
		return ""
	}
	return strings.TrimSpace(c.CourtesyTone)
}

// Debounce returns the debounce interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// PollInterval returns the control loop tick.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Timeout returns the hard transmit timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TransmitTimeout) * time.Second
}

// PlaybackDelay returns the pause between raising TX-LED and keying PTT.
func (c *Config) PlaybackDelay() time.Duration {
	return time.Duration(c.DelayedPlaybackInterval * float64(time.Second))
}

// StopGrace returns how long the recorder gets after an interrupt.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Audio.StopGraceMs) * time.Millisecond
}

// TripwireTimeout bounds a single webhook request.
func (c *Config) TripwireTimeout() time.Duration {
	return time.Duration(c.Tripwire.TimeoutMs) * time.Millisecond
}

// Radio converts the pin configuration into a gpio.RadioConfig.
func (c *Config) Radio() gpio.RadioConfig {
	return gpio.RadioConfig{
		COS:    gpio.PinConfig{Offset: c.GPIO.COS.Pin, Inverted: c.GPIO.COS.Inverted, Direction: gpio.In},
		PTT:    gpio.PinConfig{Offset: c.GPIO.PTT.Pin, Inverted: c.GPIO.PTT.Inverted, Direction: gpio.Out},
		LEDPwr: gpio.PinConfig{Offset: c.GPIO.LEDPwr.Pin, Inverted: c.GPIO.LEDPwr.Inverted, Direction: gpio.Out},
		LEDRx:  gpio.PinConfig{Offset: c.GPIO.LEDRx.Pin, Inverted: c.GPIO.LEDRx.Inverted, Direction: gpio.Out},
		LEDTx:  gpio.PinConfig{Offset: c.GPIO.LEDTx.Pin, Inverted: c.GPIO.LEDTx.Inverted, Direction: gpio.Out},
	}
}
