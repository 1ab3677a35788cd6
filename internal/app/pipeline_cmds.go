package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/median/internal/cli"
	"horse.fit/median/internal/metrics"
)

func runDiscover(args []string) int {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 20*time.Minute, "Overall run timeout")
	rebuild := fs.Bool("rebuild", false, "Rebuild the homepage after discovery")
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

	env, err := openEnvironment(10*time.Second, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer env.Close()

	if err := env.cfg.RequireOpenAI(); err != nil {
		fmt.Fprintf(os.Stderr, "discover needs the topic oracle: %v\n", err)
		return 1
	}
	wired, err := buildPipelines(env, metrics.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipelines: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, runErr := wired.discovery.Run(ctx)
	output := map[string]any{"discovery": result}
	rows := [][]string{
		{"topics_discovered", fmt.Sprintf("%d", result.TopicsDiscovered)},
		{"topics_created", fmt.Sprintf("%d", result.TopicsCreated)},
		{"topics_updated", fmt.Sprintf("%d", result.TopicsUpdated)},
		{"topics_rejected", fmt.Sprintf("%d", result.TopicsRejected)},
		{"articles_found", fmt.Sprintf("%d", result.ArticlesFound)},
		{"articles_inserted", fmt.Sprintf("%d", result.ArticlesInserted)},
		{"articles_reused", fmt.Sprintf("%d", result.ArticlesReused)},
		{"errors", fmt.Sprintf("%d", result.Errors)},
	}

	var rankErr error
	if *rebuild && runErr == nil {
		built, err := wired.ranker.Rebuild(ctx)
		rankErr = err
		output["ranker"] = built
		rows = append(rows,
			[]string{"homepage_entries", fmt.Sprintf("%d", built.HomepageEntriesCreated)},
			[]string{"homepage_pruned", fmt.Sprintf("%d", built.Pruned)},
		)
	}

	if code := render(outputFormat, output, []string{"metric", "value"}, rows); code != 0 {
		return code
	}
	if outputFormat == outputFormatTable {
		printErrorMessages(result.ErrorMessages)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Discovery failed: %v\n", runErr)
		return 1
	}
	if rankErr != nil {
		fmt.Fprintf(os.Stderr, "Homepage rebuild failed: %v\n", rankErr)
		return 1
	}
	return 0
}

func runRank(args []string) int {
	fs := flag.NewFlagSet("rank", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall run timeout")
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

	env, err := openEnvironment(10*time.Second, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer env.Close()

	wired, err := buildPipelines(env, metrics.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipelines: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, runErr := wired.ranker.Rebuild(ctx)
	rows := [][]string{
		{"topics_processed", fmt.Sprintf("%d", result.TopicsProcessed)},
		{"topics_skipped", fmt.Sprintf("%d", result.TopicsSkipped)},
		{"homepage_entries", fmt.Sprintf("%d", result.HomepageEntriesCreated)},
		{"pruned", fmt.Sprintf("%d", result.Pruned)},
		{"errors", fmt.Sprintf("%d", result.Errors)},
		{"built_at", formatUTCTimestamp(result.BuiltAt)},
	}
	if code := render(outputFormat, result, []string{"metric", "value"}, rows); code != 0 {
		return code
	}
	if outputFormat == outputFormatTable {
		printErrorMessages(result.ErrorMessages)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Homepage rebuild failed: %v\n", runErr)
		return 1
	}
	return 0
}

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "analyze requires exactly one article URL")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	env, err := openEnvironment(10*time.Second, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer env.Close()

	wired, err := buildPipelines(env, metrics.New())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipelines: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	analysis, err := wired.analyzer.Analyze(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analyze failed: %v\n", err)
		return 1
	}

	rows := [][]string{
		{"title", truncateForTable(analysis.Article.Title, 80)},
		{"source", analysis.Article.SourceName},
		{"url", analysis.Article.URL},
		{"leaning", string(analysis.Bias.Leaning)},
		{"score", fmt.Sprintf("%d", analysis.Bias.Score)},
		{"confidence", fmt.Sprintf("%d", analysis.Bias.Confidence)},
		{"explanation", truncateForTable(analysis.Bias.Explanation, 100)},
		{"cached", fmt.Sprintf("%t", analysis.Cached)},
		{"fallback", fmt.Sprintf("%t", analysis.Fallback)},
		{"source_created", fmt.Sprintf("%t", analysis.SourceCreated)},
	}
	return render(outputFormat, analysis, []string{"field", "value"}, rows)
}

func printErrorMessages(messages []string) {
	if len(messages) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "errors:")
	for _, msg := range messages {
		fmt.Fprintf(os.Stderr, "  - %s\n", strings.TrimSpace(msg))
	}
}
