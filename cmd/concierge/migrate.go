package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/conciergehq/concierge/internal/migration"
)

// runMigrate handles the migrate subcommands.
func runMigrate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: concierge migrate <up|down|version|force> [--config path]")
		os.Exit(1)
	}
	sub := args[0]

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	_ = fs.Parse(args[1:])

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	m, err := migration.New(cfg.Database, logger)
	if err != nil {
		errExit(logger, "init migrator", err)
	}
	defer func() { _ = m.Close() }()

	switch sub {
	case "up":
		if err := m.Up(); err != nil {
			errExit(logger, "migrate up", err)
		}
		fmt.Println("migrations applied")
	case "down":
		if err := m.Down(); err != nil {
			errExit(logger, "migrate down", err)
		}
		fmt.Println("last migration rolled back")
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			errExit(logger, "migrate version", err)
		}
		fmt.Printf("version %d (dirty: %v)\n", version, dirty)
	case "force":
		rest := fs.Args()
		if len(rest) < 1 {
			fmt.Fprintln(os.Stderr, "usage: concierge migrate force <version>")
			os.Exit(1)
		}
		v, err := strconv.Atoi(rest[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid version %q\n", rest[0])
			os.Exit(1)
		}
		if err := m.Force(v); err != nil {
			errExit(logger, "migrate force", err)
		}
		fmt.Printf("version forced to %d\n", v)
	default:
		fmt.Fprintf(os.Stderr, "unknown migrate subcommand: %s\n", sub)
		os.Exit(1)
	}
}
