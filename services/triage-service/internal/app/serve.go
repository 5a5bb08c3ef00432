package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stoik/triage/services/triage-service/internal/classifier"
	"github.com/stoik/triage/services/triage-service/internal/config"
	"github.com/stoik/triage/services/triage-service/internal/metrics"
	"github.com/stoik/triage/services/triage-service/internal/pipeline"
	"github.com/stoik/triage/services/triage-service/internal/redaction"
	"github.com/stoik/triage/services/triage-service/internal/server"
	"github.com/stoik/triage/services/triage-service/internal/subscription"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and admin HTTP server",
	Long:  "Serves the webhook endpoint, the admin API and the daily subscription renewal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if err := cfg.RequireMailbox(); err != nil {
			return err
		}
		if cfg.LLM.APIKey == "" {
			return errors.New("llm.api_key not configured")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		m := metrics.New()
		graph := newGraphProvider(cfg, logger)

		redactor := redaction.New(redaction.Options{
			Enabled:        cfg.Redaction.Enabled,
			AnalyzerURL:    cfg.Redaction.AnalyzerURL,
			AnonymizerURL:  cfg.Redaction.AnonymizerURL,
			ScoreThreshold: cfg.Redaction.ScoreThreshold,
			Entities:       cfg.Redaction.Entities,
			TrustedDomains: cfg.Redaction.TrustedDomains,
			Logger:         logger,
		})

		cls := classifier.New(classifier.Options{
			APIKey:     cfg.LLM.APIKey,
			APIURL:     cfg.LLM.APIURL,
			Model:      cfg.LLM.Model,
			Tags:       classifierTags(cfg.LLM.Tags),
			HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
			Logger:     logger,
		})

		svc := pipeline.NewService(pipeline.Options{
			Store:       st,
			Mailbox:     graph,
			Redactor:    redactor,
			Classifier:  cls,
			ClientState: cfg.Webhook.ClientState,
			Metrics:     m,
			Logger:      logger,
		})

		manager := subscription.NewManager(graph, m, logger)
		scheduler, err := subscription.NewScheduler(manager, cfg.Subscription.RenewSchedule)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			scheduler.Stop(stopCtx)
		}()

		logger.Info("Inbox triage starting",
			zap.String("addr", cfg.Server.Addr),
			zap.String("database", cfg.Database.Driver),
			zap.String("model", cls.Model()),
			zap.Bool("redaction", redactor.Enabled()),
			zap.Time("next_renewal", scheduler.Next()),
		)

		srv := server.New(server.Options{
			Notifications: svc,
			Subscriptions: manager,
			Store:         st,
			Redaction:     redactor,
			Metrics:       m,
			Logger:        logger,
		})
		if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		logger.Info("Shut down gracefully")
		return nil
	},
}

// classifierTags maps llm.tags onto the classifier; nil keeps the built-in set
func classifierTags(tags []config.TagConfig) []classifier.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]classifier.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, classifier.Tag{
			Name:        strings.TrimSpace(t.Name),
			Description: t.Description,
			Examples:    t.Examples,
		})
	}
	return out
}

func init() {
	serveCmd.Flags().String("server.addr", ":8080", "HTTP listen address")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("server.addr"))

	rootCmd.AddCommand(serveCmd)
}
