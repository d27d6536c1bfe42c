package commands

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/namix-io/reconciler/pkg/cluster"
	"github.com/namix-io/reconciler/pkg/engine"
	"github.com/namix-io/reconciler/pkg/registry"
	"github.com/namix-io/reconciler/pkg/source"
	"github.com/namix-io/reconciler/pkg/utils/tracing"
)

// NewRunCommand starts the reconciliation engine and the webhook listener.
func NewRunCommand(log logr.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reconciliation controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg, err := registry.NewFileRegistry(viper.GetString("registry"), log)
			if err != nil {
				return err
			}
			restConfig, err := clientcmd.BuildConfigFromFlags("", viper.GetString("kubeconfig"))
			if err != nil {
				return err
			}
			clusterIf, err := cluster.New(restConfig, log)
			if err != nil {
				return err
			}

			eng := engine.New(engine.Config{
				PollInterval:      viper.GetDuration("pollInterval"),
				CycleTimeout:      viper.GetDuration("cycleTimeout"),
				DegradedThreshold: viper.GetInt("degradedThreshold"),
				SelfHealCooldown:  viper.GetDuration("selfHealCooldown"),
			}, reg, source.NewRefStoreFetcher(log), clusterIf,
				engine.WithLogr(log),
				engine.WithTracer(tracing.NewLoggingTracer(log)),
			)

			webhookAddr := viper.GetString("webhookAddr")
			if webhookAddr == "" {
				webhookAddr = ":8090"
			}
			server := &http.Server{Addr: webhookAddr, Handler: eng.WebhookHandler()}
			go func() {
				log.Info("Webhook listener started", "addr", webhookAddr)
				if err := server.ListenAndServe(); err != http.ErrServerClosed {
					log.Error(err, "Webhook listener failed")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			return eng.Run(ctx)
		},
	}
	cmd.Flags().String("kubeconfig", "", "path to the kubeconfig of the target cluster")
	_ = viper.BindPFlag("kubeconfig", cmd.Flags().Lookup("kubeconfig"))
	cmd.Flags().Duration("poll-interval", 3*time.Minute, "interval between periodic reconciliation cycles")
	_ = viper.BindPFlag("pollInterval", cmd.Flags().Lookup("poll-interval"))
	cmd.Flags().Duration("cycle-timeout", 5*time.Minute, "hard wall-clock budget of one reconciliation cycle")
	_ = viper.BindPFlag("cycleTimeout", cmd.Flags().Lookup("cycle-timeout"))
	cmd.Flags().Int("degraded-threshold", 5, "consecutive failures before an application is marked Degraded")
	_ = viper.BindPFlag("degradedThreshold", cmd.Flags().Lookup("degraded-threshold"))
	cmd.Flags().Duration("self-heal-cooldown", 5*time.Second, "minimum interval between drift triggered syncs")
	_ = viper.BindPFlag("selfHealCooldown", cmd.Flags().Lookup("self-heal-cooldown"))
	cmd.Flags().String("webhook-addr", ":8090", "listen address of the revision webhook")
	_ = viper.BindPFlag("webhookAddr", cmd.Flags().Lookup("webhook-addr"))
	return cmd
}
