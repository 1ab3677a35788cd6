package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/median/internal/cli"
	"horse.fit/median/internal/db"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
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

	dayStart, dayEnd := utcDayBounds(defaultUTCDay())
	stats, err := env.pool.QueryPipelineStats(ctx, dayStart, dayEnd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query pipeline stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if err := writeTable([]string{"table", "rows"}, totalsRows(stats.Totals)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render totals table: %v\n", err)
		return 1
	}

	fmt.Println()
	sideRows := make([][]string, 0, len(stats.Sides))
	for _, side := range stats.Sides {
		sideRows = append(sideRows, []string{side.Side, fmt.Sprintf("%d", side.Articles)})
	}
	if err := writeTable([]string{"side", "topic_articles"}, sideRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render side table: %v\n", err)
		return 1
	}

	fmt.Println()
	throughputRows := [][]string{
		{"day", stats.Day},
		{"articles_ingested_today", fmt.Sprintf("%d", stats.Throughput.ArticlesIngestedToday)},
		{"topics_created_today", fmt.Sprintf("%d", stats.Throughput.TopicsCreatedToday)},
		{"pending_not_classified", fmt.Sprintf("%d", stats.Throughput.PendingNotClassified)},
		{"homepage_built_at", formatUTCTimestampPtr(stats.LastBuilt)},
	}
	if err := writeTable([]string{"metric", "value"}, throughputRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render throughput table: %v\n", err)
		return 1
	}

	return 0
}

func totalsRows(t db.StatsTotals) [][]string {
	return [][]string{
		{"sources", fmt.Sprintf("%d (%d active)", t.Sources, t.ActiveSources)},
		{"articles", fmt.Sprintf("%d", t.Articles)},
		{"bias_scores", fmt.Sprintf("%d", t.BiasScores)},
		{"topics", fmt.Sprintf("%d", t.Topics)},
		{"topic_members", fmt.Sprintf("%d", t.TopicMembers)},
		{"homepage_topics", fmt.Sprintf("%d", t.HomepageRows)},
	}
}
