package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/soltrace/soltrace/service/db"
	"github.com/urfave/cli/v2"
)

func listWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-wallets",
		Usage:   "List all registered wallets",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (active, paused, error)",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			wallets, err := store.ListWallets(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}

			// Filter by status if specified
			statusFilter := c.String("status")
			if statusFilter != "" {
				filtered := make([]*db.Wallet, 0)
				for _, w := range wallets {
					if w.Status == statusFilter {
						filtered = append(filtered, w)
					}
				}
				wallets = filtered
			}

			if c.Bool("json") {
				return outputJSON(wallets)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tLABEL\tSTATUS\tPOLL INTERVAL\tLAST POLL\tCREATED")
			for _, wallet := range wallets {
				lastPoll := "never"
				if wallet.LastPollTime != nil {
					lastPoll = wallet.LastPollTime.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
					wallet.Address,
					wallet.Label,
					wallet.Status,
					wallet.PollInterval,
					lastPoll,
					wallet.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d wallets\n", len(wallets))
			return nil
		},
	}
}

func getWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-wallet",
		Usage:     "Get wallet details",
		Aliases:   []string{"get"},
		ArgsUsage: "<address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			address := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			wallet, err := store.GetWallet(context.Background(), address)
			if err != nil {
				return fmt.Errorf("failed to get wallet: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(wallet)
			}

			// Pretty output
			fmt.Printf("Address:       %s\n", wallet.Address)
			if wallet.Label != "" {
				fmt.Printf("Label:         %s\n", wallet.Label)
			}
			fmt.Printf("Status:        %s\n", wallet.Status)
			fmt.Printf("Poll Interval: %v\n", wallet.PollInterval)
			if wallet.LastPollTime != nil {
				fmt.Printf("Last Poll:     %s\n", wallet.LastPollTime.Format(time.RFC3339))
			} else {
				fmt.Printf("Last Poll:     never\n")
			}
			fmt.Printf("Created:       %s\n", wallet.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Updated:       %s\n", wallet.UpdatedAt.Format(time.RFC3339))

			return nil
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List classified transactions",
		Aliases: []string{"txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "wallet",
				Aliases:  []string{"w"},
				Usage:    "Wallet address to list transactions for",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Filter by transaction type (transfer, swap, airdrop, ...)",
			},
			&cli.StringFlag{
				Name:  "cursor",
				Usage: "Keyset cursor from a previous page (slot:signature)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transactions",
				Value:   50,
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: json (default) or human",
				Value: "json",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			params := db.ListTransactionsParams{
				WalletAddress: c.String("wallet"),
				Limit:         int32(c.Int("limit")),
				TxType:        c.String("type"),
			}
			if cursor := c.String("cursor"); cursor != "" {
				slot, sig, err := parseCursor(cursor)
				if err != nil {
					return err
				}
				params.CursorSlot = slot
				params.CursorSignature = sig
			}

			transactions, err := store.ListTransactions(context.Background(), params)
			if err != nil {
				return fmt.Errorf("failed to get transactions: %w", err)
			}

			// Default to JSON output (stdout = JSON)
			if c.String("format") == "json" {
				return outputJSON(transactions)
			}

			// Human-readable output
			if len(transactions) == 0 {
				fmt.Println("No transactions found")
				return nil
			}

			for i, tx := range transactions {
				if i > 0 {
					fmt.Println("------------------------------------------------------------------------")
				}
				printTransaction(tx)
			}

			fmt.Println("------------------------------------------------------------------------")
			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(transactions))
			if len(transactions) == c.Int("limit") {
				last := transactions[len(transactions)-1]
				fmt.Fprintf(os.Stderr, "Next cursor: %d:%s\n", last.Slot, last.Signature)
			}
			return nil
		},
	}
}

func printTransaction(tx *db.Transaction) {
	fmt.Printf("Signature:    %s\n", tx.Signature)
	fmt.Printf("Wallet:       %s\n", tx.WalletAddress)
	fmt.Printf("Type:         %s\n", tx.TxType)
	if tx.Direction != "" {
		fmt.Printf("Direction:    %s\n", tx.Direction)
	}
	fmt.Printf("Confidence:   %.2f\n", tx.Confidence)
	if tx.Protocol != nil {
		fmt.Printf("Protocol:     %s\n", *tx.Protocol)
	}
	if tx.Counterparty != nil {
		fmt.Printf("Counterparty: %s\n", *tx.Counterparty)
	}
	if tx.PrimaryAmountUI != nil {
		symbol := ""
		if tx.PrimarySymbol != nil {
			symbol = " " + *tx.PrimarySymbol
		}
		fmt.Printf("Amount:       %g%s\n", *tx.PrimaryAmountUI, symbol)
	}
	fmt.Printf("Slot:         %d\n", tx.Slot)
	if tx.BlockTime != nil {
		fmt.Printf("Block Time:   %s\n", tx.BlockTime.Format(time.RFC3339))
	}
	if tx.Failed {
		fmt.Printf("Status:       FAILED\n")
	}
	if tx.Memo != nil && *tx.Memo != "" {
		fmt.Printf("Memo:         %s\n", *tx.Memo)
	}
}

// parseCursor splits a slot:signature keyset cursor.
func parseCursor(cursor string) (int64, string, error) {
	slotStr, sig, ok := strings.Cut(cursor, ":")
	if !ok || sig == "" {
		return 0, "", fmt.Errorf("invalid cursor %q: expected <slot>:<signature>", cursor)
	}
	slot, err := strconv.ParseInt(slotStr, 10, 64)
	if err != nil || slot <= 0 {
		return 0, "", fmt.Errorf("invalid cursor %q: slot must be a positive integer", cursor)
	}
	return slot, sig, nil
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
