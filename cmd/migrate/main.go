package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/familyhub-backend/internal/boot"
	"github.com/angelmondragon/familyhub-backend/pkg/migrate"
)

const usage = `usage: migrate <command> [args]

commands:
  up                apply every pending migration
  down              roll back the newest migration
  status            list migrations and whether they are applied
  to <version>      migrate up or down to version
  create <name>     scaffold a new SQL migration in -dir
  validate          check the migrations in -dir`

func main() {
	dir := flag.String("dir", migrate.SourceDir, "migrations source directory (create, validate)")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// create and validate work on the source tree and need no database.
	switch args[0] {
	case "create":
		if len(args) < 2 {
			fail("create needs a migration name")
		}
		if err := goose.Create(nil, *dir, args[1], "sql"); err != nil {
			fail("create migration: %v", err)
		}
		return
	case "validate":
		if err := migrate.Check(os.DirFS(*dir)); err != nil {
			fail("migration validation failed:\n%v", err)
		}
		fmt.Println("migrations ok")
		return
	}

	p := boot.Start("migrate")
	defer p.Close()
	ctx, stop := p.Context()
	defer stop()
	ctx = p.Log.WithFields(ctx, map[string]any{"cmd": args[0], "driver": p.Cfg.DB.Driver})

	runner, err := migrate.NewRunner(p.OpenDB(ctx), p.Cfg.DB.Driver)
	p.Must(ctx, "failed to build migration runner", err)

	switch args[0] {
	case "up":
		results, err := runner.Up(ctx)
		p.Must(ctx, "migrate up failed", err)
		report(results...)
	case "down":
		result, err := runner.Down(ctx)
		p.Must(ctx, "migrate down failed", err)
		report(result)
	case "status":
		statuses, err := runner.Status(ctx)
		p.Must(ctx, "migrate status failed", err)
		for _, s := range statuses {
			fmt.Printf("%-8s %s\n", s.State, s.Source.Path)
		}
	case "to":
		if len(args) < 2 {
			fail("to needs a target version")
		}
		version, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fail("invalid version %q", args[1])
		}
		results, err := runner.To(ctx, version)
		p.Must(ctx, "migrate to version failed", err)
		report(results...)
	default:
		flag.Usage()
		p.Close()
		os.Exit(2)
	}
	p.Log.Info(ctx, "migrate finished")
}

func report(results ...*goose.MigrationResult) {
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Printf("%-4s %s (%s)\n", r.Direction, r.Source.Path, r.Duration)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
