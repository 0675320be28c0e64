// Package hardware assembles the platform the navigator runs on: the real
// robot (periph.io GPIO + BNO08X over serial) or a simulation.
package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/host"

	"github.com/tigerbot-team/orientbot/pkg/bno08x"
	"github.com/tigerbot-team/orientbot/pkg/config"
	"github.com/tigerbot-team/orientbot/pkg/encoder"
	"github.com/tigerbot-team/orientbot/pkg/heading"
	"github.com/tigerbot-team/orientbot/pkg/logging"
	"github.com/tigerbot-team/orientbot/pkg/motors"
)

var log = logging.For("hw")

// imuStartTimeout bounds how long Start waits for the first IMU report.  The
// IMU loop keeps retrying after that; the heading smoother just waits longer.
const imuStartTimeout = 2 * time.Second

type Hardware struct {
	cfg config.Config

	pins   *encoder.PeriphPins
	imu    *bno08x.BNO08X
	motors motors.RawControl

	cancel context.CancelFunc
	done   sync.WaitGroup
}

var _ Interface = (*Hardware)(nil)

func New(cfg config.Config) *Hardware {
	return &Hardware{
		cfg: cfg,
		imu: bno08x.New(cfg.IMU.SerialDevice, cfg.IMU.BaudRate),
	}
}

func (h *Hardware) Start(ctx context.Context) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialise periph host drivers: %w", err)
	}
	h.pins = encoder.NewPeriphPins()

	if h.cfg.Motors.LeftPWMPin == "" || h.cfg.Motors.RightPWMPin == "" {
		log.Warn().Msg("No motor pins configured, using dummy motors")
		h.motors = &motors.Dummy{}
	} else {
		m, err := motors.NewPWM(h.cfg.Motors.LeftPWMPin, h.cfg.Motors.RightPWMPin, h.cfg.PWMFrequency())
		if err != nil {
			return fmt.Errorf("failed to set up motors: %w", err)
		}
		h.motors = m
	}
	if err := h.motors.SetMotorSpeeds(0, 0); err != nil {
		return fmt.Errorf("failed to stop motors: %w", err)
	}

	ctx, h.cancel = context.WithCancel(ctx)
	h.done.Add(1)
	go h.imu.LoopReadingReports(ctx, &h.done)

	waitCtx, cancel := context.WithTimeout(ctx, imuStartTimeout)
	defer cancel()
	if r, err := h.imu.WaitForReportAfter(waitCtx, time.Time{}); err != nil {
		log.Warn().Err(err).Str("device", h.cfg.IMU.SerialDevice).Msg("No IMU report yet; continuing")
	} else {
		log.Info().Stringer("report", r).Msg("IMU online")
	}
	return nil
}

func (h *Hardware) EncoderPins() encoder.Pins {
	return h.pins
}

func (h *Hardware) HeadingSource() heading.Source {
	return h.imu
}

func (h *Hardware) Motors() motors.RawControl {
	return h.motors
}

func (h *Hardware) Shutdown() {
	log.Info().Msg("Shutting down hardware")
	if m, ok := h.motors.(*motors.PWM); ok {
		if err := m.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to stop motors")
		}
	} else if h.motors != nil {
		_ = h.motors.SetMotorSpeeds(0, 0)
	}
	if h.cancel != nil {
		h.cancel()
		h.done.Wait()
	}
	if h.pins != nil {
		if err := h.pins.Halt(); err != nil {
			log.Error().Err(err).Msg("Failed to release encoder pins")
		}
	}
}

// Select returns the simulated platform if sim is set, else the real one.
func Select(cfg config.Config, sim bool) Interface {
	if sim {
		return NewSim(cfg.Encoder.LeftPin, cfg.Encoder.RightPin, 0)
	}
	return New(cfg)
}
