// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/cmd/intent"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/cmd/serve"
)

func main() {
	cmd := &cobra.Command{
		Use:          "leasevm",
		Short:        "Runs and drives the lease VM",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		serve.Command(),
		intent.Command(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "leasevm: %s\n", err)
		os.Exit(1)
	}
}
