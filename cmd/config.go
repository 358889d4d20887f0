package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fedres/fluidloom-sub000/mesh"
)

var configFilePath string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective mesh configuration as YAML",
	Long:  "With no flags, prints the spec-documented defaults. With --file, loads and validates a config file and prints the merged result.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mesh.DefaultConfig()
		if configFilePath != "" {
			loaded, err := mesh.LoadConfigFile(configFilePath)
			if err != nil {
				logrus.Fatalf("config load failed: %v", err)
			}
			cfg = loaded
		} else if err := cfg.Validate(); err != nil {
			logrus.Fatalf("default config failed validation: %v", err)
		}
		writeConfigToStdout(cfg)
	},
}

func init() {
	configCmd.Flags().StringVar(&configFilePath, "file", "", "Path to a mesh config YAML file to load and validate")
}

// writeConfigToStdout marshals cfg to YAML and writes it to stdout, the
// same pattern the teacher's writeSpecToStdout uses for workload specs.
func writeConfigToStdout(cfg mesh.Config) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		logrus.Fatalf("YAML marshal failed: %v", err)
	}
	fmt.Print(string(data))
}
