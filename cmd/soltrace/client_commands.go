package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/itchyny/gojq"
	"github.com/soltrace/soltrace/client"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the soltrace service",
		Subcommands: []*cli.Command{
			registerCommand(),
			unregisterCommand(),
			walletsCommand(),
			transactionsCommand(),
			refreshCommand(),
		},
	}
}

func newAPIClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Register a wallet for polling and classification",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "label",
				Aliases: []string{"l"},
				Usage:   "Human-readable label for the wallet",
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Aliases: []string{"i"},
				Value:   60 * time.Second,
				Usage:   "How often the service polls the wallet",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			address := c.Args().Get(0)
			cl := newAPIClient(c)

			wallet, err := cl.Register(context.Background(), address, client.RegisterParams{
				Label:        c.String("label"),
				PollInterval: c.Duration("poll-interval"),
			})
			if err != nil {
				return fmt.Errorf("failed to register wallet: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Registered %s (poll interval %v)\n", wallet.Address, wallet.PollInterval)
			return nil
		},
	}
}

func unregisterCommand() *cli.Command {
	return &cli.Command{
		Name:      "unregister",
		Usage:     "Stop polling a wallet and delete its schedule",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			address := c.Args().Get(0)
			cl := newAPIClient(c)

			if err := cl.Unregister(context.Background(), address); err != nil {
				return fmt.Errorf("failed to unregister wallet: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Unregistered %s\n", address)
			return nil
		},
	}
}

func walletsCommand() *cli.Command {
	return &cli.Command{
		Name:  "wallets",
		Usage: "List registered wallets",
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c)

			wallets, err := cl.List(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}

			return outputJSON(wallets)
		},
	}
}

func transactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transactions",
		Aliases:   []string{"txs", "tx"},
		Usage:     "List classified transactions for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Page size",
				Value:   50,
			},
			&cli.StringFlag{
				Name:  "cursor",
				Usage: "Keyset cursor from a previous page (slot:signature)",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Filter by transaction type (transfer, swap, airdrop, ...)",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Follow cursors until the full history is printed",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			address := c.Args().Get(0)
			cl := newAPIClient(c)

			// Compile jq filters
			filters, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			opts := client.ListTransactionsOptions{
				Limit:  c.Int("limit"),
				Cursor: c.String("cursor"),
				TxType: c.String("type"),
			}

			matched := make([]client.Transaction, 0)
			for {
				page, err := cl.Transactions(context.Background(), address, opts)
				if err != nil {
					return fmt.Errorf("failed to list transactions: %w", err)
				}

				for _, tx := range page.Transactions {
					ok, err := matchesJQFilters(tx, filters)
					if err != nil {
						return err
					}
					if ok {
						matched = append(matched, tx)
					}
				}

				if !c.Bool("all") || page.NextCursor == "" {
					if page.NextCursor != "" {
						fmt.Fprintf(os.Stderr, "Next cursor: %s\n", page.NextCursor)
					}
					break
				}
				opts.Cursor = page.NextCursor
			}

			return outputJSON(matched)
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:      "refresh",
		Usage:     "Drop the cached view of a wallet and re-fetch its history",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			address := c.Args().Get(0)
			cl := newAPIClient(c)

			if err := cl.Refresh(context.Background(), address); err != nil {
				return fmt.Errorf("failed to refresh wallet: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Refreshed %s\n", address)
			return nil
		},
	}
}

func compileJQFilters(exprs []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(exprs))
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return compiled, nil
}

// matchesJQFilters runs each compiled filter against the transaction's JSON
// representation. All filters must produce a truthy first result.
func matchesJQFilters(tx client.Transaction, filters []*gojq.Code) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	// Round-trip through JSON so gojq sees plain maps and slices.
	raw, err := json.Marshal(tx)
	if err != nil {
		return false, fmt.Errorf("failed to marshal transaction: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}

	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if _, isErr := v.(error); isErr {
			return false, nil
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy reports whether a jq result counts as a match. nil and false
// fail; everything else (numbers, strings, objects, arrays) passes.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
