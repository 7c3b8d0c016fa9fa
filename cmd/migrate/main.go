// Command migrate applies the schema and reference-data migrations.
// Usage: migrate [--path dir] up|down|steps N|force V|version
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"go.uber.org/zap"

	"billscope/internal/config"
	"billscope/internal/logger"
)

const usage = "Usage: migrate [--path dir] [up|down|steps N|force V|version]"

func main() {
	fs := ff.NewFlagSet("migrate")
	path := fs.StringLong("path", "db/migrations", "migrations directory")
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("BILLSCOPE_MIGRATE")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(*path, fs.GetArgs()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(dir string, args []string) error {
	if len(args) < 1 {
		return errors.New(usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	m, err := migrate.New("file://"+dir, cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed: %w", err)
		}
		zl.Info("migrations applied")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration down failed: %w", err)
		}
		zl.Info("migrations reverted")

	case "steps", "force":
		if len(args) < 2 {
			return fmt.Errorf("%s requires a number argument", args[0])
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid %s argument: %w", args[0], err)
		}
		if args[0] == "force" {
			if err := m.Force(n); err != nil {
				return fmt.Errorf("migration force failed: %w", err)
			}
			zl.Info("migration version forced", zap.Int("version", n))
			return nil
		}
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration steps failed: %w", err)
		}
		zl.Info("migration steps applied", zap.Int("steps", n))

	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to get version: %w", err)
		}
		fmt.Printf("version: %d, dirty: %v\n", version, dirty)

	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
	return nil
}
