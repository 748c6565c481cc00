package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"

	"github.com/soltrace/soltrace/service/temporal"
)

const schedulePrefix = "poll-wallet-"

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List all wallet polling schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			iter, err := temporalClient.ScheduleClient().List(ctx, client.ScheduleListOptions{
				PageSize: 100,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEDULE ID\tWALLET")
			count := 0
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				fmt.Fprintf(w, "%s\t%s\n", schedule.ID, strings.TrimPrefix(schedule.ID, schedulePrefix))
				count++
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d schedules\n", count)
			return nil
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe-schedule",
		Usage:     "Describe the polling schedule for a wallet",
		Aliases:   []string{"desc"},
		ArgsUsage: "<wallet-address>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			scheduleID := schedulePrefix + c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			desc, err := handle.Describe(ctx)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			fmt.Printf("Schedule ID:    %s\n", scheduleID)
			fmt.Printf("Paused:         %v\n", desc.Schedule.State.Paused)
			if note := desc.Schedule.State.Note; note != "" {
				fmt.Printf("Note:           %s\n", note)
			}

			if wa, ok := desc.Schedule.Action.(*client.ScheduleWorkflowAction); ok {
				fmt.Printf("\nWorkflow:\n")
				fmt.Printf("  Workflow:     %s\n", wa.Workflow)
				fmt.Printf("  Task Queue:   %s\n", wa.TaskQueue)
			}

			for i, interval := range desc.Schedule.Spec.Intervals {
				fmt.Printf("Interval %d:     every %v\n", i+1, interval.Every)
			}

			fmt.Printf("\nRecent Actions: %d\n", len(desc.Info.RecentActions))
			if n := len(desc.Info.RecentActions); n > 0 {
				fmt.Printf("Last Action:    %s\n", desc.Info.RecentActions[n-1].ActualTime.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func pauseScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "pause-schedule",
		Usage:     "Pause polling for a wallet",
		ArgsUsage: "<wallet-address>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why polling is paused",
				Value: "Paused via soltrace CLI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			scheduleID := schedulePrefix + c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			handle := temporalClient.ScheduleClient().GetHandle(context.Background(), scheduleID)
			if err := handle.Pause(context.Background(), client.SchedulePauseOptions{Note: c.String("note")}); err != nil {
				return fmt.Errorf("failed to pause schedule: %w", err)
			}

			fmt.Printf("Schedule paused: %s\n", scheduleID)
			return nil
		},
	}
}

func resumeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume-schedule",
		Usage:     "Resume polling for a wallet",
		ArgsUsage: "<wallet-address>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why polling is resumed",
				Value: "Resumed via soltrace CLI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			scheduleID := schedulePrefix + c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			handle := temporalClient.ScheduleClient().GetHandle(context.Background(), scheduleID)
			if err := handle.Unpause(context.Background(), client.ScheduleUnpauseOptions{Note: c.String("note")}); err != nil {
				return fmt.Errorf("failed to resume schedule: %w", err)
			}

			fmt.Printf("Schedule resumed: %s\n", scheduleID)
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Check for inconsistencies between registered wallets and schedules",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "fix",
				Usage: "Create missing schedules and delete orphaned ones",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Task queue name for created schedules",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "soltrace-wallet-polling",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()

			wallets, err := store.ListActiveWallets(ctx)
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}

			iter, err := temporalClient.ScheduleClient().List(ctx, client.ScheduleListOptions{
				PageSize: 1000,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			schedules := make(map[string]bool)
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				if strings.HasPrefix(schedule.ID, schedulePrefix) {
					schedules[schedule.ID] = true
				}
			}

			registered := make(map[string]bool, len(wallets))
			var missing []string
			for _, w := range wallets {
				registered[w.Address] = true
				if !schedules[schedulePrefix+w.Address] {
					missing = append(missing, w.Address)
				}
			}

			var orphaned []string
			for scheduleID := range schedules {
				if !registered[strings.TrimPrefix(scheduleID, schedulePrefix)] {
					orphaned = append(orphaned, scheduleID)
				}
			}

			fmt.Printf("Reconciliation Report:\n")
			fmt.Printf("  Active wallets:        %d\n", len(wallets))
			fmt.Printf("  Schedules in Temporal: %d\n\n", len(schedules))

			if len(missing) > 0 {
				fmt.Printf("Wallets missing schedules (%d):\n", len(missing))
				for _, addr := range missing {
					fmt.Printf("  - %s\n", addr)
				}
			} else {
				fmt.Printf("All active wallets have schedules\n")
			}

			if len(orphaned) > 0 {
				fmt.Printf("\nOrphaned schedules (%d):\n", len(orphaned))
				for _, id := range orphaned {
					fmt.Printf("  - %s\n", id)
				}
			} else {
				fmt.Printf("No orphaned schedules\n")
			}

			if !c.Bool("fix") {
				if len(missing) > 0 || len(orphaned) > 0 {
					fmt.Printf("\nTo fix these issues, run: soltrace temporal reconcile --fix\n")
				}
				return nil
			}

			if len(missing) == 0 && len(orphaned) == 0 {
				return nil
			}

			fmt.Printf("\nFixing inconsistencies...\n")
			for _, addr := range missing {
				wallet, err := store.GetWallet(ctx, addr)
				if err != nil {
					fmt.Printf("  failed to load wallet %s: %v\n", addr, err)
					continue
				}

				_, err = temporalClient.ScheduleClient().Create(ctx, client.ScheduleOptions{
					ID: schedulePrefix + addr,
					Spec: client.ScheduleSpec{
						Intervals: []client.ScheduleIntervalSpec{
							{Every: wallet.PollInterval},
						},
					},
					Action: &client.ScheduleWorkflowAction{
						ID:        schedulePrefix + addr,
						Workflow:  "PollWalletWorkflow",
						TaskQueue: c.String("task-queue"),
						Args:      []interface{}{temporal.PollWalletInput{WalletAddress: addr}},
					},
					Memo: map[string]interface{}{
						"wallet_address": addr,
						"created_by":     "soltrace-cli-reconcile",
					},
				})
				if err != nil {
					fmt.Printf("  failed to create schedule for %s: %v\n", addr, err)
					continue
				}
				fmt.Printf("  created schedule for %s (every %v)\n", addr, wallet.PollInterval)
			}

			for _, id := range orphaned {
				handle := temporalClient.ScheduleClient().GetHandle(ctx, id)
				if err := handle.Delete(ctx); err != nil {
					fmt.Printf("  failed to delete schedule %s: %v\n", id, err)
					continue
				}
				fmt.Printf("  deleted orphaned schedule %s\n", id)
			}

			fmt.Printf("Reconciliation complete\n")
			return nil
		},
	}
}

// Helper function to connect to Temporal
func getTemporalClient(c *cli.Context) (client.Client, error) {
	temporalClient, err := client.Dial(client.Options{
		HostPort:  c.String("temporal-host"),
		Namespace: c.String("temporal-namespace"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}
	return temporalClient, nil
}
