package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/median/internal/cli"
	"horse.fit/median/internal/db"
	"horse.fit/median/internal/registry"
)

func runSources(args []string) int {
	if len(args) == 0 {
		printSourcesUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "-h", "--help":
		printSourcesUsage()
		return 0
	case "list":
		return runSourcesList(args[1:])
	case "import":
		return runSourcesImport(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown sources action: %s\n\n", args[0])
		printSourcesUsage()
		return 2
	}
}

func runSourcesList(args []string) int {
	fs := flag.NewFlagSet("sources list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	all := fs.Bool("all", false, "Include inactive sources")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	env, err := openEnvironment(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer env.Close()

	ctx, cancel := timeoutContext(*timeout)
	defer cancel()

	sources, err := env.pool.ListSources(ctx, !*all)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list sources: %v\n", err)
		return 1
	}

	return render(outputFormat, sources, []string{"id", "name", "bias", "authority", "country", "lang", "active", "home_url"}, sourceRows(sources))
}

func sourceRows(sources []db.Source) [][]string {
	rows := make([][]string, 0, len(sources))
	for _, s := range sources {
		rows = append(rows, []string{
			fmt.Sprintf("%d", s.SourceID),
			truncateForTable(s.Name, 32),
			s.BiasLabel,
			fmt.Sprintf("%.2f", s.AuthorityScore),
			s.Country,
			s.Language,
			fmt.Sprintf("%t", s.Active),
			s.HomeURL,
		})
	}
	return rows
}

func runSourcesImport(args []string) int {
	fs := flag.NewFlagSet("sources import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", time.Minute, "Command timeout")
	seed := fs.Bool("seed", false, "Import the built-in source registry instead of a file")
	dryRun := fs.Bool("dry-run", false, "Validate the registry without writing")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	var (
		params []db.UpsertSourceParams
		err    error
	)
	switch {
	case *seed && fs.NArg() == 0:
		params, err = registry.Seed()
	case !*seed && fs.NArg() == 1:
		params, err = registry.LoadFile(fs.Arg(0))
	default:
		fmt.Fprintln(os.Stderr, "sources import requires one registry file or --seed")
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid source registry: %v\n", err)
		return 1
	}
	if *dryRun {
		fmt.Printf("dry_run=true sources_valid=%d\n", len(params))
		return 0
	}

	env, err := openEnvironment(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer env.Close()

	ctx, cancel := timeoutContext(*timeout)
	defer cancel()

	result, err := registry.Import(ctx, env.pool, params, env.logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed after %d sources: %v\n", result.Created+result.Updated, err)
		return 1
	}
	fmt.Printf("sources_created=%d sources_updated=%d\n", result.Created, result.Updated)
	return 0
}

func printSourcesUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  median sources list [--all] [--format table|json] [--env .env]")
	fmt.Fprintln(os.Stderr, "  median sources import <file.yaml> [--dry-run] [--env .env]")
	fmt.Fprintln(os.Stderr, "  median sources import --seed [--dry-run] [--env .env]")
}
