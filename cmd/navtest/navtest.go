package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/tigerbot-team/orientbot/pkg/config"
	"github.com/tigerbot-team/orientbot/pkg/encoder"
	"github.com/tigerbot-team/orientbot/pkg/hardware"
	"github.com/tigerbot-team/orientbot/pkg/logging"
	"github.com/tigerbot-team/orientbot/pkg/navigator"
)

var log = logging.For("navtest")

const help = `Commands:
    h <heading> <speed> <duration>   drive holding a heading
    e                                enable encoders
    d                                disable encoders
    r                                reset rotation counts
    c                                print counts and distances
    p                                print smoothed heading
    q                                quit`

func main() {
	configPath := flag.String("config", config.DefaultPath, "YAML config file")
	sim := flag.Bool("sim", false, "run against the simulated robot")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad configuration")
	}
	logging.SetLevel(cfg.LogLevel)

	fmt.Println("---- Nav tests ----")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hw := hardware.Select(cfg, *sim)
	if err := hw.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start hardware")
	}
	defer func() {
		fmt.Println("Zeroing motors for shut down")
		hw.Shutdown()
	}()

	nav := navigator.New(hw.EncoderPins(), hw.HeadingSource(), cfg.Navigator())
	nav.Start(ctx)
	defer nav.Stop()

	enable := func() {
		err := nav.EnableEncoder(cfg.Encoder.LeftPin, cfg.Encoder.RightPin,
			cfg.Encoder.Sections, cfg.Encoder.WheelCircumferenceMM)
		if err != nil {
			fmt.Println("Failed to enable encoders:", err)
		}
	}
	enable()

	fmt.Println(help)
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("\nFailed to read stdin: ", err)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "h":
			if len(parts) < 4 {
				fmt.Println("Not enough parameters")
				continue
			}
			target, err := strconv.ParseFloat(parts[1], 64)
			if err != nil {
				fmt.Printf("Failed to parse heading: %v\n", err)
				continue
			}
			speed, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				fmt.Printf("Failed to parse speed: %v\n", err)
				continue
			}
			d, err := time.ParseDuration(parts[3])
			if err != nil {
				fmt.Printf("Failed to parse duration: %v\n", err)
				continue
			}
			holdHeading(ctx, hw, nav, cfg.ControlTick(), target, speed, d)
		case "e":
			enable()
		case "d":
			nav.DisableEncoders()
		case "r":
			nav.ResetWheelRotationCount()
		case "c":
			fmt.Printf("%+v\n", nav.GetRotationCount())
			fmt.Printf("Pulses L:%d R:%d  Distance L:%.1fmm R:%.1fmm  (enabled: %v)\n",
				nav.GetPulseCount(encoder.Left), nav.GetPulseCount(encoder.Right),
				nav.GetWheelDistance(encoder.Left), nav.GetWheelDistance(encoder.Right),
				nav.EncodersEnabled())
		case "p":
			if h, ok := nav.CurrentHeading(); ok {
				fmt.Printf("Heading: %.1f\n", h)
			} else {
				fmt.Println("No heading yet")
			}
		case "q":
			return
		default:
			fmt.Println(help)
		}
	}
}

func holdHeading(ctx context.Context, hw hardware.Interface, nav *navigator.Navigator, tick time.Duration, target, speed float64, d time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	motors := hw.Motors()
	defer func() {
		if err := motors.SetMotorSpeeds(0, 0); err != nil {
			fmt.Println("Failed to stop motors:", err)
		}
	}()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			speeds, err := nav.CourseCorrect(ctx, target, speed)
			if err != nil {
				return
			}
			if err := motors.SetMotorSpeeds(speeds.Clamped()); err != nil {
				fmt.Println("Failed to set motor speeds:", err)
				return
			}
		}
	}
}
