package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"omnibot/internal/knowledge"
)

func kbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the knowledge snippet store",
	}
	cmd.AddCommand(kbAddCmd())
	cmd.AddCommand(kbSearchCmd())
	return cmd
}

func openStore() (*knowledge.SQLiteStore, error) {
	cfg := loadConfig()
	if cfg.Knowledge.DBPath == "" {
		return nil, fmt.Errorf("knowledge.dbPath is not configured")
	}
	return knowledge.NewSQLiteStore(cfg.Knowledge.DBPath, cfg.Knowledge.TopK, logger)
}

func kbAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <topic> <text...>",
		Short: "Add a snippet under a topic",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			topic := args[0]
			body := strings.Join(args[1:], " ")
			if err := store.Add(ctx, topic, body); err != nil {
				return err
			}
			logger.Info("snippet added", "topic", topic)
			return nil
		},
	}
}

func kbSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query...>",
		Short: "Search snippets the way triage would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			results, err := store.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("no snippets found")
				return nil
			}
			for i, s := range results {
				fmt.Printf("%d. %s\n", i+1, s)
			}
			return nil
		},
	}
}
