package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/docsync/internal/client"
)

var healthAddr string

func defaultHealthAddr() string {
	if s := os.Getenv("DOCSYNC_GRPC_ADDR"); s != "" {
		if strings.HasPrefix(s, ":") {
			return "localhost" + s
		}
		return s
	}
	return "localhost:9090"
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of a running worker",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.NewGRPCClient(healthAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to worker: %w", err)
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		status, err := c.Health(ctx)
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}

		if status != "SERVING" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "server", defaultHealthAddr(), "worker gRPC address")
}
