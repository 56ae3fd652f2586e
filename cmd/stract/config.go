package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"stract/internal/config"
	"stract/internal/errors"
	"stract/internal/paths"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stract configuration",
	Long:  "View and manage the client configuration stored in ~/.stract/config.toml",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after defaults, the config file and
STRACT_* environment overrides have been applied.

Examples:
  stract config show
  stract config show --format json
  STRACT_BACKEND_BASEURL=http://localhost:3000 stract config show`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	ConfigPath string         `json:"configPath"`
	FileExists bool           `json:"fileExists"`
	Config     *config.Config `json:"config"`
}

// Human renders the configuration as the TOML it would be saved as.
func (r ConfigShowResponse) Human() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s", r.ConfigPath)
	if !r.FileExists {
		b.WriteString(" (not found, showing defaults)")
	}
	b.WriteString("\n")

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(r.Config); err != nil {
		fmt.Fprintf(&b, "# failed to encode: %v\n", err)
		return b.String()
	}
	b.Write(buf.Bytes())
	return strings.TrimRight(b.String(), "\n")
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return paths.GetConfigPath()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	return printResponse(cmd, ConfigShowResponse{ConfigPath: path, FileExists: statErr == nil, Config: cfg})
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return errors.New(errors.ConfigInvalid, fmt.Sprintf("config file %s already exists", path), nil)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
	return nil
}
