package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"autosocioly/internal/config"
	"autosocioly/internal/exposure"
	"autosocioly/internal/getlate"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your AutoSocioly installation",
		Long: `Verifies that AutoSocioly's configuration, posting API credentials,
tunnel agent, and working directories are correctly set up. Reports
pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("AutoSocioly Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'autosocioly init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\nResults: %d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			// 3. Posting API credentials
			if cfg.GetLate.APIKey == "" {
				printWarn("Posting API", "no API key configured")
				warned++
			} else {
				client := getlate.NewClient(getlate.ClientConfig{
					APIKey:  cfg.GetLate.APIKey,
					BaseURL: cfg.GetLate.BaseURL,
					Timeout: 10 * time.Second,
					Logger:  logger,
				})
				if accounts, err := client.GetAccounts(ctx); err != nil {
					printFail("Posting API", err.Error())
					failed++
				} else {
					printPass("Posting API", fmt.Sprintf("%d connected account(s)", len(accounts)))
					passed++
				}
			}

			// 4. Drafting credentials
			if cfg.Drafting.APIKey == "" {
				printWarn("Drafting provider", "no API key configured, drafts will use the fallback")
				warned++
			} else {
				printPass("Drafting provider", cfg.Drafting.Model)
				passed++
			}

			// 5. Tunnel agent (optional, static fallback covers its absence)
			tunnels := exposure.NewAgentTunnelService(cfg.Exposure.TunnelAPIURL)
			if eps, err := tunnels.ListActiveEndpoints(ctx); err != nil {
				printWarn("Tunnel agent", "not reachable, media will use the local static URL")
				warned++
			} else {
				printPass("Tunnel agent", fmt.Sprintf("%d active endpoint(s)", len(eps)))
				passed++
			}

			// 6. Working directories writable
			for _, check := range []struct{ name, dir string }{
				{"Image dir", cfg.Drafting.ImageDir},
				{"Static dir", cfg.Exposure.StaticDir},
			} {
				if err := checkWritableDir(check.dir); err != nil {
					printFail(check.name, err.Error())
					failed++
				} else {
					printPass(check.name, check.dir)
					passed++
				}
			}

			// 7. Server port
			if err := checkPort(cfg.Server.Port); err != nil {
				printWarn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running AutoSocioly.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nAutoSocioly should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! AutoSocioly is ready to run.\n")
			}
			return nil
		},
	}
}

func checkWritableDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
