package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	natspkg "github.com/soltrace/soltrace/service/nats"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes to classification events for a wallet.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to classification events for a wallet",
		ArgsUsage: "[wallet_address]",
		Description: `Subscribe to real-time classification events published to NATS JetStream.

Events are published to the subject: classified.{wallet_address}
Omit the wallet address to stream events for all wallets.

Example:
  soltrace nats subscribe DYw8jCTfwHNRJhhmFcbXvVDTqWMEVFBX6ZKUmG5CNSKK --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "soltrace-cli",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if c.NArg() > 0 {
				subject = fmt.Sprintf("classified.%s", c.Args().Get(0))
			}

			natsURL := c.String("nats-url")
			jsonOutput := c.Bool("json")

			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Subscribing to %s on %s\n", subject, natsURL)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg := jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
			}
			if c.Bool("durable") {
				cfg.Durable = c.String("consumer-name")
			}

			cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, cfg)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			consume, err := cons.Consume(func(msg jetstream.Msg) {
				defer msg.Ack()

				var event natspkg.ClassificationEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
					return
				}

				if jsonOutput {
					data, _ := json.Marshal(event)
					fmt.Println(string(data))
					return
				}

				printClassificationEvent(&event)
			})
			if err != nil {
				return fmt.Errorf("failed to start consuming: %w", err)
			}
			defer consume.Stop()

			// Block until interrupted
			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
			<-shutdown

			if !jsonOutput {
				fmt.Fprintln(os.Stderr, "\nDone")
			}
			return nil
		},
	}
}

// inspectStreamCommand shows the state of the classification stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Show the state of the classification stream",
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")

			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream %s: %w", natspkg.StreamName, err)
			}

			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(info)
			}

			fmt.Printf("Stream:       %s\n", info.Config.Name)
			fmt.Printf("Subjects:     %v\n", info.Config.Subjects)
			fmt.Printf("Messages:     %d\n", info.State.Msgs)
			fmt.Printf("Bytes:        %d\n", info.State.Bytes)
			fmt.Printf("First Seq:    %d\n", info.State.FirstSeq)
			fmt.Printf("Last Seq:     %d\n", info.State.LastSeq)
			fmt.Printf("Consumers:    %d\n", info.State.Consumers)
			fmt.Printf("Max Age:      %v\n", info.Config.MaxAge)

			return nil
		},
	}
}

func printClassificationEvent(event *natspkg.ClassificationEvent) {
	fmt.Println("------------------------------------------------------------------------")
	fmt.Printf("Signature:  %s\n", event.Signature)
	fmt.Printf("Wallet:     %s\n", event.WalletAddress)
	fmt.Printf("Type:       %s\n", event.TxType)
	if event.Direction != "" {
		fmt.Printf("Direction:  %s\n", event.Direction)
	}
	fmt.Printf("Confidence: %.2f\n", event.Confidence)
	if event.Protocol != "" {
		fmt.Printf("Protocol:   %s\n", event.Protocol)
	}
	if event.PrimaryAmountUI != 0 {
		symbol := event.PrimarySymbol
		if symbol == "" {
			symbol = event.PrimaryMint
		}
		fmt.Printf("Amount:     %g %s\n", event.PrimaryAmountUI, symbol)
	}
	if event.Failed {
		fmt.Printf("Status:     FAILED\n")
	}
	if event.BlockTime != nil {
		fmt.Printf("Block Time: %s\n", event.BlockTime.Format(time.RFC3339))
	}
}
