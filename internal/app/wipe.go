package app

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/median/internal/cli"
	"horse.fit/median/internal/db"
)

func runWipe(args []string) int {
	fs := flag.NewFlagSet("wipe", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	dryRun := fs.Bool("dry-run", false, "Preview affected rows without applying changes")
	force := fs.Bool("force", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "wipe does not accept positional arguments")
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

	preview, err := env.pool.PreviewWipe(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to preview wipe: %v\n", err)
		return 1
	}
	if *dryRun {
		fmt.Printf("dry_run=true %s\n", formatWipeCounts(preview))
		return 0
	}
	if preview.Total() == 0 {
		fmt.Println("nothing to wipe")
		return 0
	}

	if !*force {
		ok, err := confirmDangerousAction(os.Stdin, fmt.Sprintf("Delete %d rows of ingested data (sources are kept)?", preview.Total()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read confirmation: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "Cancelled")
			return 1
		}
	}

	deleted, err := env.pool.WipeIngestedData(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to wipe data: %v\n", err)
		return 1
	}
	env.logger.Warn().Int64("rows", deleted.Total()).Msg("ingested data wiped")
	fmt.Println(formatWipeCounts(deleted))
	return 0
}

func formatWipeCounts(c db.WipeCounts) string {
	return fmt.Sprintf(
		"topic_members=%d bias_scores=%d topics=%d homepage_topics=%d articles=%d",
		c.TopicMembers, c.BiasScores, c.Topics, c.HomepageTopics, c.Articles,
	)
}

func confirmDangerousAction(in io.Reader, prompt string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", strings.TrimSpace(prompt))
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
