// Command chat sends one message to a running agentkitd and prints the
// streamed frames.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"AgentKit-Chat/sdk/go/agentkit"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8000/api", "API base URL")
	flag.Parse()

	message := strings.Join(flag.Args(), " ")
	if message == "" {
		message = "What is my wallet address?"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := agentkit.NewClient(*baseURL, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	info, err := client.Wallet(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if info.Address != nil {
		fmt.Printf("wallet %s on %s\n", *info.Address, *info.NetworkID)
	} else {
		fmt.Printf("wallet status: %s\n", info.Status)
	}

	err = client.Stream(ctx, message, func(f agentkit.Frame) error {
		switch f.Type {
		case agentkit.FrameToolCall:
			fmt.Printf("-> %s %s\n", f.Name, f.Arguments)
		case agentkit.FrameToolOutput:
			fmt.Printf("<- %s %s\n", f.Name, f.Output)
		case agentkit.FrameMessage:
			fmt.Println(f.Content)
		case agentkit.FrameStatus:
			fmt.Printf("(%s)\n", f.Content)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
