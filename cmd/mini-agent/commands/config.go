package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jholhewres/mini-agent/pkg/miniagent/agent"
)

// newConfigCmd creates the `mini-agent config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}
	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
		newConfigDeleteKeyCmd(),
	)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			workspace, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, workspace)
			if err != nil {
				return err
			}

			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = agent.FindConfigFile(workspace)
			}
			if path == "" {
				fmt.Println("config file: (none, using defaults)")
			} else {
				fmt.Printf("config file: %s\n", path)
			}
			fmt.Printf("agent id:    %s\n", cfg.Agent.ID)
			fmt.Printf("model:       %s\n", cfg.Agent.Model)
			fmt.Printf("max turns:   %d\n", cfg.Agent.MaxTurns)
			fmt.Printf("budget:      %d tokens\n", cfg.Agent.TokenBudget)
			fmt.Printf("heartbeat:   enabled=%v interval=%s task_file=%s\n",
				cfg.Heartbeat.Enabled, cfg.Heartbeat.IntervalDuration(), cfg.Heartbeat.TaskFile)
			fmt.Printf("tools:       write=%v exec=%v\n", cfg.Tools.AllowWrite, cfg.Tools.AllowExec)
			fmt.Printf("audit:       enabled=%v path=%s\n", cfg.Audit.Enabled, cfg.Audit.Path)
			fmt.Printf("keyring:     available=%v\n", agent.KeyringAvailable())
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the API key in the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			key, err := agent.ReadPassword("API key: ")
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("empty key")
			}
			if err := agent.StoreAPIKey(key); err != nil {
				return err
			}
			fmt.Println("API key stored in the OS keyring.")
			return nil
		},
	}
}

func newConfigDeleteKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key",
		Short: "Remove the API key from the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := agent.DeleteKeyring("api_key"); err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			fmt.Println("API key removed from the OS keyring.")
			return nil
		},
	}
}
