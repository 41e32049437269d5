// Package main provides a CLI for the session API. browse opens a terminal
// page tracked like a browser tab; the other commands read from the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/xiaot623/blogpulse/internal/config"
	"github.com/xiaot623/blogpulse/internal/logger"
)

const usage = `usage: sessionctl <command> [flags]

commands:
  browse   open a tracked terminal page
  watch    stream session lifecycle events
  get      print a session record
  stats    print session analytics
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.LogLevel)

	ctx := context.Background()
	args := os.Args[2:]
	switch os.Args[1] {
	case "browse":
		err = runBrowse(ctx, cfg, log, args)
	case "watch":
		err = runWatch(ctx, cfg, args)
	case "get":
		err = runGet(ctx, cfg, args)
	case "stats":
		err = runStats(ctx, cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) error {
	formatted, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format: %w", err)
	}
	fmt.Println(string(formatted))
	return nil
}

func splitPaths(s string) []string {
	var paths []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet("sessionctl "+name, flag.ExitOnError)
}
