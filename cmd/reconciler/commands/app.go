package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/namix-io/reconciler/pkg/registry"
)

// NewAppCommand manages application records in the registry file. The running
// controller picks changes up on its next startup; live registration goes
// through the engine's control surface.
func NewAppCommand(log logr.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage registered applications",
	}
	cmd.AddCommand(newAppRegisterCommand(log))
	cmd.AddCommand(newAppDeregisterCommand(log))
	cmd.AddCommand(newAppListCommand(log))
	return cmd
}

func openRegistry(log logr.Logger) (registry.Registry, error) {
	return registry.NewFileRegistry(viper.GetString("registry"), log)
}

func newAppRegisterCommand(log logr.Logger) *cobra.Command {
	var app registry.Application
	cmd := &cobra.Command{
		Use:   "register NAME",
		Short: "Register an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Name = args[0]
			reg, err := openRegistry(log)
			if err != nil {
				return err
			}
			if err := reg.Register(&app); err != nil {
				return err
			}
			log.Info("Application registered", "application", app.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&app.Source.Location, "location", "", "manifest store location")
	cmd.Flags().StringVar(&app.Source.Revision, "revision", "main", "branch, tag or revision pin")
	cmd.Flags().StringVar(&app.Source.Path, "path", "", "sub-path within the store")
	cmd.Flags().StringVar(&app.Destination.Namespace, "namespace", "default", "destination namespace")
	cmd.Flags().BoolVar(&app.SyncPolicy.Automated, "automated", false, "sync automatically on revision changes")
	cmd.Flags().BoolVar(&app.SyncPolicy.Prune, "prune", false, "delete resources removed from the desired state (requires --automated)")
	cmd.Flags().BoolVar(&app.SyncPolicy.SelfHeal, "self-heal", false, "sync automatically on detected drift")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func newAppDeregisterCommand(log logr.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deregister NAME",
		Short: "Remove an application from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(log)
			if err != nil {
				return err
			}
			if err := reg.Deregister(args[0]); err != nil {
				return err
			}
			log.Info("Application deregistered", "application", args[0])
			return nil
		},
	}
	return cmd
}

func newAppListCommand(log logr.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered applications and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(log)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tLOCATION\tREVISION\tSTATE\tSYNC\tHEALTH")
			for _, app := range reg.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					app.Name, app.Source.Location, app.Source.Revision,
					app.Status.State, app.Status.Sync, app.Status.Health)
			}
			return w.Flush()
		},
	}
}
