package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/config"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/logging"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/repository"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/samples"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/internal/services"
	"github.com/rdey2-atlassian/desk-builder-ai-sub000/pkg/models"
)

func main() {
	ctx := context.Background()

	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresManifestStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	svc, err := services.NewSolutionService(store, services.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	seeded, err := seedSamples(ctx, svc, cfg.Seed.Author, logger)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	logger.Info("Seeding complete!", "seeded", seeded)
}

// seedSamples stores every bundled manifest whose name is not already
// present and returns how many were stored.
func seedSamples(ctx context.Context, svc *services.SolutionService, author string, logger *logging.Logger) (int, error) {
	existing, err := svc.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list existing manifests: %w", err)
	}
	names := make(map[string]bool, len(existing))
	for _, s := range existing {
		names[s.Name] = true
	}

	seeded := 0
	for _, m := range []models.Manifest{samples.Onboarding()} {
		if names[m.Name] {
			logger.Info("Skipping existing manifest", "name", m.Name)
			continue
		}
		stored, err := svc.SaveManifest(ctx, m, "", author)
		if err != nil {
			return seeded, fmt.Errorf("failed to store %s: %w", m.Name, err)
		}
		logger.Info("Seeded manifest", "name", m.Name, "id", stored.ManifestID, "version", stored.Version)
		seeded++
	}
	return seeded, nil
}
