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
)

func runSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	limit := fs.Int("limit", db.DefaultSearchLimit, "Maximum topics and articles to return")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "search requires a query")
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
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

	results, err := env.pool.Search(ctx, query, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to search: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	topicRows := make([][]string, 0, len(results.Topics))
	for _, hit := range results.Topics {
		topicRows = append(topicRows, []string{
			hit.TopicUUID,
			truncateForTable(hit.Title, 70),
			fmt.Sprintf("%d/%d/%d", hit.Left, hit.Center, hit.Right),
			formatUTCTimestamp(hit.LastSeenAt),
		})
	}
	if err := writeTable([]string{"topic_uuid", "title", "left/center/right", "last_seen_at"}, topicRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	fmt.Println()
	articleRows := make([][]string, 0, len(results.Articles))
	for _, hit := range results.Articles {
		articleRows = append(articleRows, []string{
			truncateForTable(hit.Title, 70),
			hit.SourceName,
			pointerStringOrEmpty(hit.Leaning),
			formatUTCTimestamp(hit.PublishedAt),
		})
	}
	if err := writeTable([]string{"article", "source", "leaning", "published_at"}, articleRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
