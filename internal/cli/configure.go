package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atelierhq/atelier/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file if none exists. Edit the file to add
AI provider profiles and enable the autonomous scheduler, then run
"atelier start".`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	path, err := loader.Path()
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Configuration already exists at: %s\n", path)
		return nil
	}

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to build default configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("Configuration saved to: %s\n", path)
	fmt.Println("Add an AI provider profile under ai.profiles, then run: atelier start")

	return nil
}
