package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "persona",
		Short: "Generate evidence-grounded user personas from research data",
		Long: `persona drafts candidate personas with a cheap local model, scores them
against the source research data, and spends a bounded frontier-model budget
refining only the candidates that fail the quality bar.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to YAML config file")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolP("verbose", "v", false, "log to stderr instead of the debug file")

	v := viper.New()
	v.SetEnvPrefix("PERSONA")
	v.AutomaticEnv()
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(newGenerateCommand(v))
	root.AddCommand(newPresetsCommand())
	return root
}
