package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/okian/refmatch/internal/domain/geo"
	"github.com/okian/refmatch/internal/seed"
)

// Default configuration constants.
const (
	defaultReferees = 200
	defaultGames    = 500
	defaultLat      = 40.0
	defaultLon      = -75.0
	defaultRadiusKm = 40.0
	defaultSports   = "soccer,basketball,baseball"
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultTimeout  = 30 * time.Second
	defaultRunLimit = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		referees = flag.Int("referees", defaultReferees, "Number of referees to register")
		games    = flag.Int("games", defaultGames, "Number of games to submit")
		lat      = flag.Float64("lat", defaultLat, "Latitude of the generated area's center")
		lon      = flag.Float64("lon", defaultLon, "Longitude of the generated area's center")
		radius   = flag.Float64("radius", defaultRadiusKm, "Placement radius in km")
		sports   = flag.String("sports", defaultSports, "Comma separated sports")
		seedVal  = flag.Uint64("seed", 1, "Generation seed")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		output   = flag.String("output", "", "Write the generated plan as JSON to this file")
		logFile  = flag.String("log", "", "Log file (default: seed_log_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Log every submission")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seed.ShowHelp()
		return
	}

	closeLog, err := seed.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, defaultRunLimit)

	cfg := &seed.Config{
		BaseURL:    strings.TrimRight(*baseURL, "/"),
		Referees:   *referees,
		Games:      *games,
		Center:     geo.Point{Lat: *lat, Lon: *lon},
		RadiusKm:   *radius,
		Sports:     splitList(*sports),
		Seed:       *seedVal,
		Workers:    *workers,
		Timeout:    *timeout,
		OutputFile: *output,
		Verbose:    *verbose,
	}

	_, err = seed.Run(ctx, cfg)
	cancel()
	stop()
	_ = closeLog()
	if err != nil {
		os.Stderr.WriteString("Seed failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
