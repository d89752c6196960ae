package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"acctforge/config"
	"acctforge/storage/quota"
)

// acctforge-admin manages the quota ledger out of band. The file backend is
// single-writer: stop the monitor service before mutating the file store, or
// run the Postgres backend instead.

var configPath string

func main() {
	logger := log.New(os.Stderr, "[ADMIN] ", log.LstdFlags)

	root := &cobra.Command{
		Use:           "acctforge-admin",
		Short:         "Manage the account-request quota ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "./config/monitor.defaults.yml", "path to the monitor configuration file")

	var addEmail string
	addCmd := &cobra.Command{
		Use:   "add <id> <tokens>",
		Short: "Register a new requester with an initial token allocation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := strconv.Atoi(args[1])
			if err != nil || tokens < 0 {
				return fmt.Errorf("invalid token count %q", args[1])
			}
			return withStore(logger, func(ctx context.Context, store quota.Store) error {
				if err := store.Add(ctx, args[0], tokens, addEmail); err != nil {
					return err
				}
				fmt.Printf("added requester %s with %d tokens\n", args[0], tokens)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&addEmail, "email", "", "registered delivery email for the requester")

	grantCmd := &cobra.Command{
		Use:   "grant <id> <delta>",
		Short: "Grant additional tokens to a requester",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid token delta %q", args[1])
			}
			return withStore(logger, func(ctx context.Context, store quota.Store) error {
				if err := store.GrantTokens(ctx, args[0], delta); err != nil {
					return err
				}
				fmt.Printf("granted %d tokens to %s\n", delta, args[0])
				return nil
			})
		},
	}

	setTokensCmd := &cobra.Command{
		Use:   "set-tokens <id> <total>",
		Short: "Set a requester's total token allocation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := strconv.Atoi(args[1])
			if err != nil || total < 0 {
				return fmt.Errorf("invalid token total %q", args[1])
			}
			return withStore(logger, func(ctx context.Context, store quota.Store) error {
				if err := store.SetTokens(ctx, args[0], total); err != nil {
					return err
				}
				fmt.Printf("set allocation for %s to %d tokens\n", args[0], total)
				return nil
			})
		},
	}

	setActiveCmd := &cobra.Command{
		Use:   "set-active <id> <true|false>",
		Short: "Activate or deactivate a requester",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			active, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid active flag %q", args[1])
			}
			return withStore(logger, func(ctx context.Context, store quota.Store) error {
				if err := store.SetActive(ctx, args[0], active); err != nil {
					return err
				}
				fmt.Printf("set %s active=%v\n", args[0], active)
				return nil
			})
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one requester's quota record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(logger, func(ctx context.Context, store quota.Store) error {
				rec, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				printRequesters([]quota.Requester{*rec})
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all requesters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(logger, func(ctx context.Context, store quota.Store) error {
				recs, err := store.List(ctx)
				if err != nil {
					return err
				}
				printRequesters(recs)
				return nil
			})
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate quota statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(logger, func(ctx context.Context, store quota.Store) error {
				stats, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "total requesters:\t%d\n", stats.TotalRequesters)
				fmt.Fprintf(w, "active requesters:\t%d\n", stats.ActiveRequesters)
				fmt.Fprintf(w, "tokens allocated:\t%d\n", stats.TokensAllocated)
				fmt.Fprintf(w, "tokens used:\t%d\n", stats.TokensUsed)
				fmt.Fprintf(w, "updated at:\t%s\n", stats.UpdatedAt.Format("2006-01-02 15:04:05 UTC"))
				return w.Flush()
			})
		},
	}

	root.AddCommand(addCmd, grantCmd, setTokensCmd, setActiveCmd, getCmd, listCmd, statsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withStore opens the configured quota backend, runs fn, and closes the
// store. The monitor and the admin tool share the backend selection logic
// through the configuration file.
func withStore(logger *log.Logger, fn func(context.Context, quota.Store) error) error {
	cfg, err := config.LoadMonitorConfig(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx := context.Background()

	var store quota.Store
	switch cfg.Quota.Backend {
	case "postgres":
		store, err = quota.NewPostgresStore(ctx, cfg.Quota.Database.DSN,
			cfg.Quota.Database.MinConnections, cfg.Quota.Database.MaxConnections, logger)
	default:
		store, err = quota.NewFileStore(cfg.Storage.QuotaPath(), logger)
	}
	if err != nil {
		return fmt.Errorf("open quota store: %w", err)
	}
	defer store.Close()

	return fn(ctx, store)
}

func printRequesters(recs []quota.Requester) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tALLOCATED\tUSED\tREMAINING\tACTIVE\tEMAIL\tLAST USED")
	for i := range recs {
		r := &recs[i]
		lastUsed := "-"
		if r.LastUsedAt != nil {
			lastUsed = r.LastUsedAt.Format("2006-01-02 15:04:05")
		}
		email := r.Email
		if email == "" {
			email = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%v\t%s\t%s\n",
			r.ID, r.TokensAllocated, r.TokensUsed, r.TokensRemaining(), r.IsActive, email, lastUsed)
	}
	w.Flush()
}
