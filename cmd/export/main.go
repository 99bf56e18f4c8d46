package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hotelbook/internal/config"
	"hotelbook/internal/database"
	"hotelbook/internal/export"
	"hotelbook/internal/logging"
	"hotelbook/internal/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	today := models.DateOf(time.Now())
	var (
		configPath = flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to config.yaml")
		from       = flag.String("from", today.String(), "first day of the period (YYYY-MM-DD)")
		to         = flag.String("to", today.AddDays(30).String(), "day after the period (YYYY-MM-DD)")
		properties = flag.String("properties", "", "comma separated property ids, empty for all")
	)
	flag.Parse()

	stay, err := parsePeriod(*from, *to)
	if err != nil {
		return err
	}
	actor, err := exportActor(*properties)
	if err != nil {
		return err
	}

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
	logger := baseLogger.With().Str("component", "export").Logger()

	db, err := database.NewDB(cfg.Database, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	path, err := export.NewBookingExporter(db, cfg.Exports.Path, &logger).SaveFile(ctx, stay, actor)
	if err != nil {
		return fmt.Errorf("export bookings: %w", err)
	}
	fmt.Println(path)
	return nil
}

func parsePeriod(from, to string) (models.DateRange, error) {
	in, err := models.ParseDate(from)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("invalid -from: %w", err)
	}
	out, err := models.ParseDate(to)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("invalid -to: %w", err)
	}
	stay := models.NewDateRange(in, out)
	if err := stay.Validate(); err != nil {
		return models.DateRange{}, err
	}
	return stay, nil
}

// exportActor exports everything as a super admin, or a property subset as
// staff of those properties.
func exportActor(list string) (models.Actor, error) {
	if strings.TrimSpace(list) == "" {
		return models.Actor{Role: models.RoleSuperAdmin}, nil
	}
	actor := models.Actor{Role: models.RoleStaff}
	for _, part := range strings.Split(list, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return models.Actor{}, fmt.Errorf("invalid property id %q", part)
		}
		actor.PropertyIDs = append(actor.PropertyIDs, id)
	}
	return actor, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
