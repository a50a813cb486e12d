package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

const purgeUsage = `Usage:
  promptpilot purge --config <path> --conversation <id>

Flags:
  --config       string   Path to YAML configuration file (required)
  --conversation string   Conversation whose files are deleted (required)`

func purge(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, purgeUsage)
	}

	var cfgPath, conversationID string
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&conversationID, "conversation", "", "conversation id")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse purge flags: %w", err)
	}

	if cfgPath == "" {
		return errors.New("purge command requires --config <path>")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.New("purge command requires --conversation <id>")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	files, closeStore, err := openConversations(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := files.DeleteConversationFiles(ctx, conversationID)
	fmt.Printf("deleted %d file record(s) from conversation %s\n", n, conversationID)
	return err
}
