// Package config loads the robot's settings: built-in defaults, overlaid by
// an optional YAML file, overlaid by ORIENTBOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v2"
	"periph.io/x/periph/conn/physic"

	"github.com/tigerbot-team/orientbot/pkg/bno08x"
	"github.com/tigerbot-team/orientbot/pkg/chassis"
	"github.com/tigerbot-team/orientbot/pkg/heading"
	"github.com/tigerbot-team/orientbot/pkg/logging"
	"github.com/tigerbot-team/orientbot/pkg/navigator"
)

var log = logging.For("config")

const DefaultPath = "/cfg/orientbot.yaml"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	LogLevel string `yaml:"logLevel" env:"ORIENTBOT_LOG_LEVEL"`

	Encoder Encoder `yaml:"encoder"`
	Heading Heading `yaml:"heading"`
	Control Control `yaml:"control"`
	IMU     IMU     `yaml:"imu"`
	Motors  Motors  `yaml:"motors"`
}

type Encoder struct {
	LeftPin              string  `yaml:"leftPin" env:"ORIENTBOT_LEFT_ENCODER_PIN"`
	RightPin             string  `yaml:"rightPin" env:"ORIENTBOT_RIGHT_ENCODER_PIN"`
	Sections             int     `yaml:"sections" env:"ORIENTBOT_ENCODER_SECTIONS"`
	WheelCircumferenceMM float64 `yaml:"wheelCircumferenceMM" env:"ORIENTBOT_WHEEL_CIRCUMFERENCE_MM"`
}

type Heading struct {
	Samples       int `yaml:"samples" env:"ORIENTBOT_HEADING_SAMPLES"`
	SamplePauseMS int `yaml:"samplePauseMS" env:"ORIENTBOT_HEADING_SAMPLE_PAUSE_MS"`
}

type Control struct {
	SmallErrorBand float64 `yaml:"smallErrorBand"`
	LargeErrorBand float64 `yaml:"largeErrorBand"`
	SharpTurnSpeed float64 `yaml:"sharpTurnSpeed"`
	FineLowSpeed   float64 `yaml:"fineLowSpeed"`
	FineHighSpeed  float64 `yaml:"fineHighSpeed"`
	TickMS         int     `yaml:"tickMS" env:"ORIENTBOT_CONTROL_TICK_MS"`
}

type IMU struct {
	SerialDevice string `yaml:"serialDevice" env:"ORIENTBOT_IMU_DEVICE"`
	BaudRate     int    `yaml:"baudRate" env:"ORIENTBOT_IMU_BAUD"`
}

type Motors struct {
	LeftPWMPin     string `yaml:"leftPWMPin" env:"ORIENTBOT_LEFT_MOTOR_PIN"`
	RightPWMPin    string `yaml:"rightPWMPin" env:"ORIENTBOT_RIGHT_MOTOR_PIN"`
	PWMFrequencyHz int64  `yaml:"pwmFrequencyHz"`
}

func Default() Config {
	hc := heading.DefaultConfig()
	return Config{
		LogLevel: "info",
		Encoder: Encoder{
			LeftPin:              "GPIO23",
			RightPin:             "GPIO24",
			Sections:             chassis.EncoderSections,
			WheelCircumferenceMM: chassis.WheelCircumMM,
		},
		Heading: Heading{
			Samples:       heading.DefaultSamples,
			SamplePauseMS: int(heading.DefaultSamplePause / time.Millisecond),
		},
		Control: Control{
			SmallErrorBand: hc.SmallErrorBand,
			LargeErrorBand: hc.LargeErrorBand,
			SharpTurnSpeed: hc.SharpTurnSpeed,
			FineLowSpeed:   hc.FineLowSpeed,
			FineHighSpeed:  hc.FineHighSpeed,
			TickMS:         20,
		},
		IMU: IMU{
			SerialDevice: bno08x.DefaultDevice,
			BaudRate:     bno08x.DefaultBaudRate,
		},
		Motors: Motors{
			LeftPWMPin:     "GPIO12",
			RightPWMPin:    "GPIO13",
			PWMFrequencyHz: 1000,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if it
// exists) and then with the environment.  The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := ioutil.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Info().Str("path", path).Msg("No config file, using defaults")
		case err != nil:
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Encoder.Sections <= 0:
		return fmt.Errorf("%w: encoder.sections must be positive", ErrInvalid)
	case !(c.Encoder.WheelCircumferenceMM > 0):
		return fmt.Errorf("%w: encoder.wheelCircumferenceMM must be positive", ErrInvalid)
	case c.Encoder.LeftPin == "" || c.Encoder.RightPin == "":
		return fmt.Errorf("%w: encoder pins must be set", ErrInvalid)
	case c.Heading.Samples <= 0:
		return fmt.Errorf("%w: heading.samples must be positive", ErrInvalid)
	case c.Heading.SamplePauseMS < 0:
		return fmt.Errorf("%w: heading.samplePauseMS must not be negative", ErrInvalid)
	case c.Control.SmallErrorBand < 0 || c.Control.LargeErrorBand < 0:
		return fmt.Errorf("%w: control error bands must not be negative", ErrInvalid)
	case c.Control.SmallErrorBand > c.Control.LargeErrorBand:
		return fmt.Errorf("%w: control.smallErrorBand %v exceeds largeErrorBand %v",
			ErrInvalid, c.Control.SmallErrorBand, c.Control.LargeErrorBand)
	case c.Control.TickMS <= 0:
		return fmt.Errorf("%w: control.tickMS must be positive", ErrInvalid)
	case c.IMU.BaudRate <= 0:
		return fmt.Errorf("%w: imu.baudRate must be positive", ErrInvalid)
	case c.Motors.PWMFrequencyHz <= 0:
		return fmt.Errorf("%w: motors.pwmFrequencyHz must be positive", ErrInvalid)
	}
	return nil
}

// WriteInUse records the effective configuration next to the file it was
// loaded from, e.g. /cfg/orientbot-in-use.yaml.
func (c Config) WriteInUse(path string) error {
	data, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := ioutil.WriteFile(path, data, 0666); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// InUsePath maps /cfg/x.yaml to /cfg/x-in-use.yaml.
func InUsePath(path string) string {
	if strings.HasSuffix(path, ".yaml") {
		return strings.TrimSuffix(path, ".yaml") + "-in-use.yaml"
	}
	return path + "-in-use"
}

func (c Config) HeadingControl() heading.Config {
	return heading.Config{
		SmallErrorBand: c.Control.SmallErrorBand,
		LargeErrorBand: c.Control.LargeErrorBand,
		SharpTurnSpeed: c.Control.SharpTurnSpeed,
		FineLowSpeed:   c.Control.FineLowSpeed,
		FineHighSpeed:  c.Control.FineHighSpeed,
	}
}

func (c Config) Navigator() navigator.Config {
	return navigator.Config{
		Control:     c.HeadingControl(),
		Samples:     c.Heading.Samples,
		SamplePause: time.Duration(c.Heading.SamplePauseMS) * time.Millisecond,
	}
}

func (c Config) ControlTick() time.Duration {
	return time.Duration(c.Control.TickMS) * time.Millisecond
}

func (c Config) PWMFrequency() physic.Frequency {
	return physic.Frequency(c.Motors.PWMFrequencyHz) * physic.Hertz
}
