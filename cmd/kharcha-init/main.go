// kharcha-init prepares a fresh deployment: it applies the schema
// migrations and seeds the default category set for an owner.
package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"kharcha/internal/config"
	"kharcha/internal/core"
	"kharcha/internal/log"
	"kharcha/internal/store"
)

// defaultCategories seeds a usable taxonomy. "Other" doubles as the
// reassignment target when a category is deleted.
var defaultCategories = []string{
	"Food",
	"Groceries",
	"Transport",
	"Shopping",
	"Entertainment",
	"Bills",
	"Health",
	"Travel",
	"Other",
}

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     log.DefaultConfig().Level,
		Component: "kharcha-init",
	})
	log.SetDefault(logger)

	owner := flag.String("owner", "", "owner to seed categories for (email); empty skips seeding")
	flag.Parse()

	cfg := config.Load()
	if cfg.DataBackend != "sqlite" {
		logger.Error("kharcha-init only applies to the sqlite backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// Opening the store applies pending migrations.
	st, err := store.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open SQLite store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("Migrations applied", "path", cfg.SQLiteDBPath)

	if *owner == "" {
		logger.Info("No owner given, skipping category seed")
		return
	}

	ctx := context.Background()
	existing, err := st.ListCategories(ctx, *owner)
	if err != nil {
		logger.Error("Failed to list categories", "error", err)
		os.Exit(1)
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c.Name)] = true
	}

	seeded := 0
	for _, name := range defaultCategories {
		if have[strings.ToLower(name)] {
			continue
		}
		if _, err := st.InsertCategory(ctx, core.Category{Owner: *owner, Name: name}); err != nil {
			logger.Error("Failed to seed category", "error", err, "name", name)
			os.Exit(1)
		}
		seeded++
	}
	logger.Info("Category seed complete", "owner", *owner, "seeded", seeded, "existing", len(existing))
}
