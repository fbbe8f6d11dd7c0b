package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CfKu/Hotify/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print the environment table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			// Registry construction catches what Validate alone cannot:
			// invalid glob patterns and duplicate names after overrides.
			if _, err := buildRegistry(cfg); err != nil {
				return err
			}
			for _, warning := range cfg.Warnings() {
				fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
			}

			s := newStyles()
			fmt.Printf("Configuration OK: %d environment(s), settle delay %ds, cleanup %v\n",
				len(cfg.Environments), cfg.SettleDelay, cfg.CleanupInputs)
			for _, ec := range cfg.Environments {
				mode := "single"
				for _, t := range ec.Trigger {
					if referencesInFiles(t) {
						mode = "batch"
						break
					}
				}
				fmt.Printf("  %s\n", s.render(s.env, ec.Name))
				fmt.Printf("    patterns: %v\n", []string(ec.Patterns))
				fmt.Printf("    mode:     %s\n", mode)
				for i, t := range ec.Trigger {
					fmt.Printf("    step %d:   %s\n", i+1, t)
				}
			}
			return nil
		},
	}
}
