package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tigerbot-team/orientbot/pkg/config"
	"github.com/tigerbot-team/orientbot/pkg/encoder"
	"github.com/tigerbot-team/orientbot/pkg/hardware"
	"github.com/tigerbot-team/orientbot/pkg/heading/angle"
	"github.com/tigerbot-team/orientbot/pkg/logging"
	"github.com/tigerbot-team/orientbot/pkg/navigator"
)

var log = logging.For("main")

func main() {
	configPath := flag.String("config", config.DefaultPath, "YAML config file")
	sim := flag.Bool("sim", false, "run against the simulated robot")
	target := flag.Float64("heading", 0, "compass heading to hold, degrees")
	speed := flag.Float64("speed", 40, "cruising motor speed, 0-100")
	distance := flag.Float64("distance", 0, "stop after this many mm (0 = run until interrupted)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad configuration")
	}
	logging.SetLevel(cfg.LogLevel)
	if !angle.IsHeading(*target) {
		log.Fatal().Float64("heading", *target).Msg("Heading must be in [0, 360)")
	}
	log.Info().Int("GOMAXPROCS", runtime.GOMAXPROCS(0)).Msg("---- orientbot ----")
	if err := cfg.WriteInUse(config.InUsePath(*configPath)); err != nil {
		log.Warn().Err(err).Msg("Failed to record in-use config")
	}

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registerSignalHandlers(cancel)

	hw := hardware.Select(cfg, *sim)
	if err := hw.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start hardware")
	}
	defer func() {
		log.Info().Msg("Zeroing motors for shut down")
		hw.Shutdown()
	}()

	nav := navigator.New(hw.EncoderPins(), hw.HeadingSource(), cfg.Navigator())
	nav.Start(ctx)
	defer nav.Stop()

	if err := nav.EnableEncoder(cfg.Encoder.LeftPin, cfg.Encoder.RightPin,
		cfg.Encoder.Sections, cfg.Encoder.WheelCircumferenceMM); err != nil {
		log.Error().Err(err).Msg("Failed to enable encoders")
		return
	}

	drive(ctx, hw, nav, cfg.ControlTick(), *target, *speed, *distance)
}

// drive runs the control loop until ctx ends or the robot has gone far
// enough.
func drive(ctx context.Context, hw hardware.Interface, nav *navigator.Navigator, tick time.Duration, target, speed, distance float64) {
	motors := hw.Motors()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	report := time.NewTicker(time.Second)
	defer report.Stop()

	log.Info().Float64("heading", target).Float64("speed", speed).Float64("distance", distance).Msg("Driving")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Context done, stopping")
			return
		case <-report.C:
			h, _ := nav.CurrentHeading()
			log.Info().
				Float64("heading", h).
				Float64("left", nav.GetWheelDistance(encoder.Left)).
				Float64("right", nav.GetWheelDistance(encoder.Right)).
				Msg("Progress")
		case <-ticker.C:
			speeds, err := nav.CourseCorrect(ctx, target, speed)
			if err != nil {
				return
			}
			if err := motors.SetMotorSpeeds(speeds.Clamped()); err != nil {
				log.Error().Err(err).Msg("Failed to set motor speeds")
				return
			}
			if distance > 0 && travelled(nav) >= distance {
				log.Info().Float64("distance", travelled(nav)).Msg("Reached distance")
				return
			}
		}
	}
}

func travelled(nav *navigator.Navigator) float64 {
	return (nav.GetWheelDistance(encoder.Left) + nav.GetWheelDistance(encoder.Right)) / 2
}

func registerSignalHandlers(cancelFunc context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Info().Stringer("signal", s).Msg("Signal received")
		cancelFunc()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()
}
