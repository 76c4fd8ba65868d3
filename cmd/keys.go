package cmd

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"agent-relay/internal/credential"
	"agent-relay/internal/models"
)

const keysUsage = `Usage:
  agent-relay keys put    --user <id> --provider <name> --key <api key> [--db <path>]
  agent-relay keys delete --user <id> --provider <name> [--db <path>]
  agent-relay keys list   --user <id> [--db <path>]

The database is locked while a server holds it open; stop the server first.

Flags:
  --db       string   Path to the bbolt credential store (default "relay.db")
  --user     string   User id the key belongs to
  --provider string   One of openai, perplexity, deepseek
  --key      string   Provider API key (put only)`

func keys(args []string) error {
	return runKeys(os.Stdout, args)
}

func runKeys(out io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("keys requires a subcommand\n\n%s", keysUsage)
	}
	action := args[0]
	switch action {
	case "put", "delete", "list":
	case "help", "-h", "--help":
		fmt.Fprintln(out, keysUsage)
		return nil
	default:
		return fmt.Errorf("unknown keys subcommand %q\n\n%s", action, keysUsage)
	}

	fs := flag.NewFlagSet("keys "+action, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var dbPath, userID, providerName, apiKey string
	fs.StringVar(&dbPath, "db", "relay.db", "path to credential store")
	fs.StringVar(&userID, "user", "", "user id")
	fs.StringVar(&providerName, "provider", "", "provider name")
	fs.StringVar(&apiKey, "key", "", "provider api key")

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(out, keysUsage)
			return nil
		}
		return fmt.Errorf("parse keys flags: %w", err)
	}

	if userID == "" {
		return errors.New("--user is required")
	}
	p := models.ProviderID(strings.ToLower(strings.TrimSpace(providerName)))
	if action != "list" && !p.Known() {
		return fmt.Errorf("--provider must be one of openai, perplexity, deepseek, got %q", providerName)
	}

	store, err := credential.OpenBoltStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch action {
	case "put":
		if err := store.Put(userID, p, apiKey); err != nil {
			return fmt.Errorf("store key: %w", err)
		}
		fmt.Fprintf(out, "stored %s key for %s\n", p.DisplayName(), userID)
	case "delete":
		if err := store.Delete(userID, p); err != nil {
			if errors.Is(err, credential.ErrNotFound) {
				return fmt.Errorf("no %s key stored for %s", p.DisplayName(), userID)
			}
			return fmt.Errorf("delete key: %w", err)
		}
		fmt.Fprintf(out, "deleted %s key for %s\n", p.DisplayName(), userID)
	case "list":
		providers, err := store.Providers(userID)
		if err != nil {
			return fmt.Errorf("list keys: %w", err)
		}
		for _, id := range providers {
			fmt.Fprintln(out, id)
		}
	}
	return nil
}
