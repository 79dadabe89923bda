package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"fraudsim/internal/config"
	"fraudsim/internal/factory"
	"fraudsim/internal/repository/memory"
	"fraudsim/internal/service"
	"fraudsim/internal/util"
)

func main() {
	var (
		users    = flag.Int("users", 100, "number of users to simulate")
		seed     = flag.Int64("seed", 0, "random seed (0 picks one from the clock)")
		out      = flag.String("out", "", "write sessions to a JSON file instead of the backends")
		fresh    = flag.Bool("fresh", false, "clear previously generated sessions first")
		skipES   = flag.Bool("skip-es", false, "do not index sessions into Elasticsearch")
		skipKafk = flag.Bool("skip-kafka", false, "do not publish session batches to Kafka")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	params := service.RunParams{Users: *users, Seed: *seed, Fresh: *fresh}

	if *out != "" {
		if err := runToFile(ctx, params, *out); err != nil {
			fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *skipES {
		os.Setenv("ELASTICSEARCH_ENABLED", "false")
	}
	if *skipKafk {
		os.Setenv("KAFKA_ENABLED", "false")
	}

	f, err := factory.NewFactory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	summary, err := f.GenerationService().Run(ctx, params)
	if err != nil {
		util.Error("Generation run failed", util.ErrorField(err))
		os.Exit(1)
	}

	util.Info("Generation run completed",
		util.Int("users", summary.Users),
		util.Int("high_velocity_users", summary.HighVelocityUsers),
		util.Int64("sessions", summary.Sessions),
		util.Int64("flagged_sessions", summary.FlaggedSessions),
		util.Int64("seed", summary.Seed),
		util.Duration("duration", summary.Duration),
	)
}

// runToFile generates entirely in memory and writes the sessions as a JSON
// array. No backends are touched, which makes it useful for fixtures and
// offline experiments.
func runToFile(ctx context.Context, params service.RunParams, path string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	repo := memory.New()
	svc := service.NewGenerationService(cfg.Generator, repo, nil, nil, zap.NewNop())

	summary, err := svc.Run(ctx, params)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(repo.Sessions()); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}

	fmt.Printf("wrote %d sessions (%d flagged) for %d users to %s (seed %d)\n",
		summary.Sessions, summary.FlaggedSessions, summary.Users, path, summary.Seed)
	return nil
}
