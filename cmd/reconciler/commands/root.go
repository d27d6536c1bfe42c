package commands

import (
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand returns the reconciler CLI.
func NewRootCommand(log logr.Logger) *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "reconciler",
		Short: "GitOps reconciliation controller for declarative manifest stores",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(configFile)
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "path to the controller config file")
	cmd.PersistentFlags().String("registry", "applications.yaml", "path to the application registry file")
	_ = viper.BindPFlag("registry", cmd.PersistentFlags().Lookup("registry"))

	cmd.AddCommand(NewRunCommand(log))
	cmd.AddCommand(NewAppCommand(log))
	return cmd
}

func loadConfig(configFile string) error {
	viper.SetEnvPrefix("RECONCILER")
	viper.AutomaticEnv()
	if configFile == "" {
		return nil
	}
	viper.SetConfigFile(configFile)
	return viper.ReadInConfig()
}
