package cmd

import (
	"context"
	"fmt"
	"strings"
)

const usage = `agent-relay relays chat completions to OpenAI, Perplexity and Deepseek
using per-user API keys.

Usage:
  agent-relay <command> [flags]

Commands:
  serve    Start the HTTP server
  keys     Manage per-user provider keys in the local store

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "keys":
		return keys(args[1:])
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}
