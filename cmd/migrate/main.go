package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/database"
	"hotelbook/internal/logging"
	"hotelbook/internal/models"

	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    = flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to config.yaml")
		inventoryPath = flag.String("inventory", envOr("INVENTORY_PATH", "configs/inventory.yaml"), "path to inventory.yaml")
		schemaOnly    = flag.Bool("schema-only", false, "apply the schema without loading the inventory")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	logger := baseLogger.With().Str("component", "migrate").Logger()

	// NewDB applies the schema
	db, err := database.NewDB(cfg.Database, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	logger.Info().Str("driver", db.Driver()).Msg("schema applied")

	if *schemaOnly {
		return nil
	}

	inv, err := loadInventory(*inventoryPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.UpsertInventory(ctx, inv); err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}

	logger.Info().
		Int("properties", len(inv.Properties)).
		Int("room_types", len(inv.RoomTypes)).
		Int("rooms", len(inv.Rooms)).
		Msg("inventory loaded")
	return nil
}

func loadInventory(path string) (models.Inventory, error) {
	var inv models.Inventory
	data, err := os.ReadFile(path)
	if err != nil {
		return inv, fmt.Errorf("read inventory: %w", err)
	}
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return inv, fmt.Errorf("parse inventory: %w", err)
	}
	if len(inv.Rooms) == 0 {
		return inv, fmt.Errorf("no rooms in %s", path)
	}
	if err := config.ValidateInventory(inv); err != nil {
		return inv, fmt.Errorf("inventory validation failed: %w", err)
	}
	return inv, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
