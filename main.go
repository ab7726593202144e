// Package main is the entry point for the Argus security auditing service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"argus/bootstrap"
	"argus/cmd"
)

// run initializes and starts the auditing service.
func run(configPath string) error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()

	return nil
}

func main() {
	// CLI subcommand dispatch; everything else runs the server.
	if len(os.Args) > 1 && os.Args[1] == "baselines" {
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

		baselinesCmd := cmd.NewBaselinesCmd()
		if err := baselinesCmd.Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
