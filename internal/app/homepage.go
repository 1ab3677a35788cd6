package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"horse.fit/median/internal/cli"
	"horse.fit/median/internal/db"
	"horse.fit/median/internal/perspective"
)

func runHomepage(args []string) int {
	fs := flag.NewFlagSet("homepage", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	limit := fs.Int("limit", 20, "Maximum homepage entries")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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

	entries, err := env.pool.ListHomepage(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load homepage: %v\n", err)
		return 1
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, homepageRow(entry))
	}
	return render(outputFormat, entries, []string{"importance", "title", "left", "center", "right", "blindspot", "topic_uuid"}, rows)
}

func homepageRow(entry db.HomepageEntry) []string {
	return []string{
		fmt.Sprintf("%.3f", entry.ImportanceScore),
		truncateForTable(entry.Title, 60),
		briefSource(entry.Left),
		briefSource(entry.Center),
		briefSource(entry.Right),
		pointerStringOrEmpty(entry.BlindspotSide),
		entry.TopicUUID,
	}
}

func briefSource(brief *db.ArticleBrief) string {
	if brief == nil {
		return "-"
	}
	return truncateForTable(brief.SourceName, 24)
}

func runTopic(args []string) int {
	fs := flag.NewFlagSet("topic", flag.ContinueOnError)
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
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "topic requires exactly one topic_uuid")
		return 2
	}
	topicUUID := strings.TrimSpace(fs.Arg(0))
	if _, err := uuid.Parse(topicUUID); err != nil {
		fmt.Fprintln(os.Stderr, "topic_uuid must be a UUID")
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

	topic, err := env.pool.GetTopicByUUID(ctx, topicUUID)
	if err != nil {
		if db.IsNoRows(err) {
			fmt.Fprintf(os.Stderr, "Topic %s not found\n", topicUUID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load topic: %v\n", err)
		return 1
	}
	members, err := env.pool.ListTopicMemberArticles(ctx, topic.TopicID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load topic articles: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{"topic": topic, "articles": members}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("%s\n%s\nkeywords: %s\n\n", topic.Title, topic.Description, strings.Join(topic.Keywords, ", "))
	return render(outputFormat, nil, []string{"side", "source", "leaning", "score", "title", "published_at"}, topicMemberRows(members))
}

// topicMemberRows orders members by side, then keeps store order within a side.
func topicMemberRows(members []db.MemberArticle) [][]string {
	rows := make([][]string, 0, len(members))
	for _, side := range perspective.Sides {
		for _, m := range members {
			if m.SideLabel != string(side) {
				continue
			}
			rows = append(rows, []string{
				m.SideLabel,
				truncateForTable(m.SourceName, 24),
				pointerStringOrEmpty(m.Leaning),
				pointerIntOrEmpty(m.Score),
				truncateForTable(m.Title, 70),
				formatUTCTimestamp(m.PublishedAt),
			})
		}
	}
	return rows
}
