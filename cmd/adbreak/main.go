// Package main provides the adbreak command line entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/adbreak/internal/app/playback"
	"github.com/osa030/adbreak/internal/app/player"
	"github.com/osa030/adbreak/internal/app/scheduler"
	"github.com/osa030/adbreak/internal/domain/adbreak"
	"github.com/osa030/adbreak/internal/infra/config"
	"github.com/osa030/adbreak/internal/infra/logger"
	"github.com/osa030/adbreak/internal/infra/tracking"
	"github.com/osa030/adbreak/internal/infra/vmap"
)

var (
	app        = kingpin.New("adbreak", "VMAP ad break scheduler and player simulator")
	configPath = app.Flag("config", "Path to config file (default: built-in defaults)").Envar("ADBREAK_CONFIG").String()
	vmapPath   = app.Flag("vmap", "Path to VMAP document").Required().ExistingFile()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-breaks command
	listBreaksCmd = app.Command("list-breaks", "Print the parsed ad break schedule and exit")
)

func init() {
	// simulate command (default)
	app.Command("simulate", "Play the VMAP schedule against a simulated player (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %+v\n", err)
		os.Exit(1)
	}

	// Initialize logger; command-line flags win over the config file
	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if command == listBreaksCmd.FullCommand() {
		err = listBreaks(*vmapPath)
	} else {
		err = simulate(cfg, *vmapPath)
	}
	_ = closer.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}

// loadBreaks parses the VMAP file. Breaks that cannot be converted are logged
// and left out of the schedule.
func loadBreaks(path string) ([]*adbreak.AdBreak, error) {
	doc, err := vmap.ParseFile(path)
	if err != nil {
		return nil, err
	}
	breaks, errs := doc.AdBreaks()
	for _, e := range errs {
		zlog.Warn().Err(e).Msgf("Skipping ad break in %s", path)
	}
	return breaks, nil
}

// listBreaks prints the parsed schedule.
func listBreaks(path string) error {
	breaks, err := loadBreaks(path)
	if err != nil {
		return err
	}

	fmt.Printf("Ad Breaks (%d):\n", len(breaks))
	for i, b := range breaks {
		id := b.BreakID
		if id == "" {
			id = "-"
		}
		fmt.Printf("  #%-3d %-16s %-14s %-10s %s\n", i+1, id, b.TimeOffset, b.BreakType, describeSource(b.AdSource))
		if events := trackingEvents(b); events != "" {
			fmt.Printf("       tracking: %s\n", events)
		}
	}
	return nil
}

func describeSource(src adbreak.AdSource) string {
	switch {
	case src.AdTagURI != "":
		return fmt.Sprintf("tag(%s) %s", src.TemplateType, src.AdTagURI)
	case src.VASTAdData != "":
		return fmt.Sprintf("inline(%d bytes)", len(src.VASTAdData))
	default:
		return "no ad source"
	}
}

func trackingEvents(b *adbreak.AdBreak) string {
	names := make([]string, 0, len(b.TrackingEvents))
	for name, urls := range b.TrackingEvents {
		names = append(names, fmt.Sprintf("%s(%d)", name, len(urls)))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// simulate plays the schedule against a simulated player until the content
// ends or a signal arrives. Using a separate function ensures cleanup runs
// even when returning with an error.
func simulate(cfg *config.Config, path string) error {
	breaks, err := loadBreaks(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := tracking.New(tracking.Config{
		Timeout:     cfg.Tracking.Timeout(),
		Concurrency: cfg.Tracking.Concurrency,
		UserAgent:   cfg.Tracking.UserAgent,
		HTTP2:       cfg.Tracking.HTTP2,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create tracking client")
	}

	sim := player.NewSim(cfg.Simulate.ContentDuration)
	ctrl := playback.NewController(sim, client, playback.Config{
		AdDuration: cfg.Simulate.AdDuration,
		AdTracking: cfg.Simulate.AdTracking,
		Tick:       cfg.Simulate.Tick(),
		Speed:      cfg.Simulate.Speed,
	})
	sched := scheduler.New(sim, breaks, ctrl.Enqueue,
		scheduler.WithSeekThreshold(cfg.Scheduler.SeekThreshold),
		scheduler.WithTolerance(cfg.Scheduler.Tolerance),
		scheduler.WithContext(ctx),
	)

	reported := make(chan struct{})
	go func() {
		defer close(reported)
		reportEvents(ctrl.Events())
	}()

	zlog.Info().Msgf("Starting simulation: breaks=%d content=%s speed=%.1fx",
		len(breaks), adbreak.FormatClock(cfg.Simulate.ContentDuration), cfg.Simulate.Speed)
	sched.Start()
	runErr := ctrl.Run(ctx)

	sched.Destroy()
	played := len(ctrl.Played())
	ctrl.Close()
	<-reported

	// Let in-flight beacons finish
	client.Wait()

	switch {
	case runErr == nil:
		zlog.Info().Msgf("Simulation finished: played=%d", played)
		return nil
	case errors.Is(runErr, context.Canceled):
		zlog.Info().Msgf("Simulation interrupted: played=%d", played)
		return nil
	default:
		return errors.Wrap(runErr, "simulation failed")
	}
}

func reportEvents(events <-chan playback.Event) {
	for e := range events {
		at := adbreak.FormatClock(e.Playhead)
		switch e.Type {
		case playback.EventBreakStarted, playback.EventBreakEnded:
			zlog.Info().Msgf("%s at %s: %s", e.Type, at, e.Break)
		case playback.EventBreakFailed:
			zlog.Warn().Err(e.Err).Msgf("%s at %s: %s", e.Type, at, e.Break)
		case playback.EventFinished:
			zlog.Info().Msgf("%s at %s", e.Type, at)
		}
	}
}
