package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/retailhub/backend/internal/infrastructure/config"
	"github.com/retailhub/backend/internal/infrastructure/logger"
	"github.com/retailhub/backend/internal/infrastructure/migration"
	"github.com/retailhub/backend/migrations"
)

// command is one migrate subcommand run against an open Migrator
type command struct {
	usage string
	run   func(m *migration.Migrator, args []string, log *zap.Logger) error
}

var commands = map[string]command{
	"up": {"up", func(m *migration.Migrator, _ []string, _ *zap.Logger) error {
		return m.Up()
	}},
	"down": {"down", func(m *migration.Migrator, _ []string, _ *zap.Logger) error {
		return m.Down()
	}},
	"step": {"step <n>", func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	}},
	"goto": {"goto <version>", func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.GoTo(uint(v))
	}},
	"version": {"version", func(m *migration.Migrator, _ []string, log *zap.Logger) error {
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Info("Current migration version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return nil
	}},
	"force": {"force <version>", func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(v)
	}},
	"drop": {"drop -confirm", func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		if !slices.Contains(args, "-confirm") && !slices.Contains(args, "--confirm") {
			return errors.New("drop deletes tokens, mappings and sync logs; rerun with -confirm")
		}
		return m.Drop()
	}},
}

func main() {
	var migrationsPath, logLevel string
	flag.StringVar(&migrationsPath, "path", "", "Migrations directory (default: migrations embedded in the binary)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	name, args := args[0], args[1:]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	switch name {
	case "create":
		if migrationsPath == "" {
			migrationsPath = "migrations"
		}
		if len(args) == 0 {
			log.Fatal("Migration name required. Usage: migrate create <name> [description]")
		}
		description := ""
		if len(args) > 1 {
			description = args[1]
		}
		mf, err := migration.CreateMigration(migrationsPath, args[0], description)
		if err != nil {
			log.Fatal("Failed to create migration", zap.Error(err))
		}
		log.Info("Migration created", zap.String("up", mf.UpPath), zap.String("down", mf.DownPath))
		return

	case "list":
		var fsys fs.FS = migrations.FS
		if migrationsPath != "" {
			fsys = os.DirFS(migrationsPath)
		}
		list, err := migration.ListMigrations(fsys)
		if err != nil {
			log.Fatal("Failed to list migrations", zap.Error(err))
		}
		for _, m := range list {
			fmt.Printf("  %06d  %s\n", m.Version, m.Name)
		}
		return
	}

	cmd, ok := commands[name]
	if !ok {
		log.Error("Unknown command", zap.String("command", name))
		printUsage()
		os.Exit(1)
	}
	if strings.Contains(cmd.usage, "<") && len(args) == 0 {
		log.Fatal("Missing argument", zap.String("usage", "migrate "+cmd.usage))
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database", zap.Error(err))
	}

	var m *migration.Migrator
	if migrationsPath != "" {
		m, err = migration.New(db, migrationsPath, log)
	} else {
		m, err = migration.NewEmbedded(db, migrations.FS, log)
	}
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	if err := cmd.run(m, args, log); err != nil {
		log.Fatal("Migration failed", zap.String("command", name), zap.Error(err))
	}
}

func printUsage() {
	fmt.Println(`Accounting sync schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (negative rolls back)
  goto <version>        Migrate to a specific version
  version               Show the applied version
  force <version>       Set the version without migrating (clears a dirty state)
  drop -confirm         Drop every table, including tokens and mappings
  create <name> [desc]  Create the next numbered migration pair
  list                  List available migrations

Flags:
  -path string          Read migrations from a directory instead of the binary
  -log-level string     Log level: debug, info, warn, error (default: info)

The database is configured like the server: config.toml or RETAIL_DATABASE_* variables.`)
}
