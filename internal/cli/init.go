package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fleetflow/freight-ai/internal/config"
	log "github.com/fleetflow/freight-ai/internal/logging"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a commented starter configuration to the config path.

Refuses to overwrite an existing file unless --force is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		path := cfgFile
		if path == "" {
			wd, err := os.Getwd()
			if err != nil {
				log.Fatalf("Init failed: %v", err)
			}
			path = filepath.Join(wd, "config.yaml")
		}
		if err := writeStarterConfig(path, forceInit); err != nil {
			log.Fatalf("Init failed: %v", err)
		}
		fmt.Printf("wrote %s\n", path)
	},
}

func writeStarterConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, config.GenerateDefaultConfigYAML(), 0o600)
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
