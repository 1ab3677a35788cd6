package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "serve":
		return runServe(args[1:])
	case "discover", "run-once":
		return runDiscover(args[1:])
	case "rank", "rebuild-homepage":
		return runRank(args[1:])
	case "analyze":
		return runAnalyze(args[1:])
	case "sources":
		return runSources(args[1:])
	case "homepage":
		return runHomepage(args[1:])
	case "topic":
		return runTopic(args[1:])
	case "search":
		return runSearch(args[1:])
	case "stats":
		return runStats(args[1:])
	case "wipe":
		return runWipe(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "median CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  median <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  serve      Start the API server (and the cron schedule when ENABLE_CRON=true)")
	fmt.Fprintln(os.Stderr, "  discover   Suggest topics, gather coverage, and classify new articles")
	fmt.Fprintln(os.Stderr, "  run-once   Alias for discover")
	fmt.Fprintln(os.Stderr, "  rank       Rebuild the homepage from active topics")
	fmt.Fprintln(os.Stderr, "  analyze    Classify one article URL")
	fmt.Fprintln(os.Stderr, "  sources    List or import the source registry")
	fmt.Fprintln(os.Stderr, "  homepage   Show the current homepage")
	fmt.Fprintln(os.Stderr, "  topic      Show one topic with its articles by side")
	fmt.Fprintln(os.Stderr, "  search     Search topic and article titles")
	fmt.Fprintln(os.Stderr, "  stats      Show table totals and daily throughput")
	fmt.Fprintln(os.Stderr, "  wipe       Delete ingested data, keeping sources")
	fmt.Fprintln(os.Stderr, "  daemon     Manage the median-serve systemd unit")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"median <command> -h\" for command-specific flags.")
}
