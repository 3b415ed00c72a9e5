package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/repository"
	pg "vpn-subscription-bot/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	tariffs := pg.NewTariffRepo(pool)

	// If tariffs already exist, do nothing
	existing, err := tariffs.ListAll(ctx, repository.NoTX)
	if err != nil {
		log.Fatalf("list tariffs: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d tariffs already present. No changes.\n", len(existing))
		for _, t := range existing {
			fmt.Printf("  - %s (days=%d, price=%d %s)\n", t.Title, t.DurationDays, t.PriceMinor, t.Currency)
		}
		return
	}

	// Seed a small catalogue for testing the checkout flow
	seed := []*model.Tariff{
		{ID: "1f6a2ac0-9a0f-4f6e-8f4b-7b1a2d3c4e5f", Title: "3 day trial", PriceMinor: 0, Currency: "RUB", DurationDays: 3, Trial: true},
		{ID: "2a7b3bd1-0b1e-4a7f-9c5c-8c2b3e4d5f6a", Title: "1 month", PriceMinor: 19900, Currency: "RUB", DurationDays: 30},
		{ID: "3b8c4ce2-1c2f-4b80-ad6d-9d3c4f5e6a7b", Title: "3 months", PriceMinor: 49900, Currency: "RUB", DurationDays: 90},
		{ID: "4c9d5df3-2d30-4c91-be7e-ae4d5a6f7b8c", Title: "1 year", PriceMinor: 149900, Currency: "RUB", DurationDays: 365},
	}

	for _, t := range seed {
		t.CreatedAt = time.Now()
		if err := tariffs.Save(ctx, repository.NoTX, t); err != nil {
			log.Fatalf("seed tariff %q: %v", t.Title, err)
		}
		fmt.Printf("created tariff %s\n", t.Title)
	}
	fmt.Println("Seeding complete.")
}
