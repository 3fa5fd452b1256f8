package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mridulmehra/CyberGaurd-Backend/internal/config"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/directory/sqlstore"
	"github.com/mridulmehra/CyberGaurd-Backend/internal/logging"
)

const usage = `usage: migrate [-config path] up|down|version

  up       apply every pending migration
  down     revert every applied migration
  version  print the current schema version
`

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	log := logging.Component("migrate")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log)
	log = logging.Component("migrate")

	if cfg.Database.Driver == config.DriverMemory {
		log.Fatal().Msg("the memory directory has no schema to migrate")
	}

	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to open database")
	}
	defer store.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = store.Migrate()
	case "down":
		err = store.MigrateDown()
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = store.MigrationVersion()
		if err == nil {
			fmt.Printf("version %d (dirty: %v)\n", version, dirty)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Msg("migration failed")
		store.Close()
		os.Exit(1)
	}
	log.Info().Str("command", flag.Arg(0)).Msg("done")
}
