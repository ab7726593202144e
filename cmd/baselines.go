// Package cmd holds the operator CLI for inspecting persisted actor
// baselines.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"argus/config"
	"argus/core"
	"argus/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

var (
	outputJSON bool
	configFile string
	noColor    bool
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// NewBaselinesCmd creates the baselines CLI command tree.
func NewBaselinesCmd() *cobra.Command {
	baselinesCmd := &cobra.Command{
		Use:   "baselines",
		Short: "Inspect persisted actor behavior baselines",
		Long: `Inspect the behavior baselines learned per actor: known addresses,
locations and agents, activity histograms, and current risk scores.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	baselinesCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	baselinesCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path")
	baselinesCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	baselinesCmd.AddCommand(newListCmd())
	baselinesCmd.AddCommand(newShowCmd())
	baselinesCmd.AddCommand(newExportCmd())

	return baselinesCmd
}

// openStore opens the baseline store from the configured path.
func openStore() (*storage.SQLiteBaselineStore, func(), error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.SQLitePath == "" {
		return nil, nil, fmt.Errorf("no baseline storage path configured")
	}

	store, err := storage.NewSQLiteBaselineStore(cfg.Storage.SQLitePath, cfg.Storage.BaselineCacheSize, zap.NewNop().Sugar())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open baseline store: %w", err)
	}
	cleanup := func() {
		_ = store.Close()
	}
	return store, cleanup, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all actors with persisted baselines",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			store, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			baselines, err := store.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load baselines: %w", err)
			}

			sorted := make([]*core.UserBehaviorBaseline, 0, len(baselines))
			for _, b := range baselines {
				sorted = append(sorted, b)
			}
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i].ActorID < sorted[j].ActorID
			})

			if outputJSON {
				return outputAsJSON(sorted)
			}

			headerColor.Printf("%-36s %10s %8s %8s %s\n", "ACTOR", "RISK", "ADDRS", "AGENTS", "LAST ACTIVITY")
			for _, b := range sorted {
				riskColor := successColor
				if b.RiskScore >= 60 {
					riskColor = errorColor
				} else if b.RiskScore >= 40 {
					riskColor = infoColor
				}
				fmt.Printf("%-36s %s %8d %8d %s\n",
					b.ActorID,
					riskColor.Sprintf("%10.1f", b.RiskScore),
					len(b.KnownAddresses),
					len(b.KnownAgents),
					formatTime(b.LastActivityAt))
			}
			infoColor.Printf("\n%d baseline(s)\n", len(sorted))
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <actor-id>",
		Short: "Show one actor's full baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			store, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			b, err := store.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get baseline: %w", err)
			}
			if b == nil {
				errorColor.Printf("No baseline for actor %s\n", args[0])
				return nil
			}

			if outputJSON {
				return outputAsJSON(b)
			}

			headerColor.Printf("Actor %s\n", b.ActorID)
			fmt.Printf("  Risk score:      %.1f\n", b.RiskScore)
			fmt.Printf("  Trust level:     %s\n", b.TrustLevel)
			fmt.Printf("  Last activity:   %s\n", formatTime(b.LastActivityAt))
			fmt.Printf("  Known addresses: %v\n", b.KnownAddresses)
			fmt.Printf("  Known locations: %v\n", b.KnownLocations)
			fmt.Printf("  Known agents:    %v\n", b.KnownAgents)

			headerColor.Println("  Actions:")
			printFrequency(b.ActionFrequency)
			headerColor.Println("  Resources:")
			printFrequency(b.ResourceFrequency)
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export all baselines to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			store, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			baselines, err := store.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load baselines: %w", err)
			}

			data, err := json.MarshalIndent(baselines, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode baselines: %w", err)
			}
			if err := os.WriteFile(args[0], data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[0], err)
			}

			successColor.Printf("Exported %d baseline(s) to %s\n", len(baselines), args[0])
			return nil
		},
	}
}

func outputAsJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printFrequency(freq map[string]int64) {
	keys := make([]string, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("    %-30s %d\n", k, freq[k])
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
