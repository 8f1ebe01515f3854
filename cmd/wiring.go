package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/salusworks/recall-cli/internal/lock"
	"github.com/salusworks/recall-cli/internal/notify"
	"github.com/salusworks/recall-cli/internal/pipeline"
	"github.com/salusworks/recall-cli/internal/report"
	"github.com/salusworks/recall-cli/internal/store"
	"github.com/salusworks/recall-cli/pkg/soc"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "recall.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSOCClient() (soc.Client, error) {
	if cfg.SOC.BaseURL == "" {
		return nil, eris.New("soc base URL is required (RECALL_SOC_BASE_URL)")
	}
	if cfg.SOC.Username == "" || cfg.SOC.Password == "" {
		return nil, eris.New("soc credentials are required (RECALL_SOC_USERNAME / RECALL_SOC_PASSWORD)")
	}

	opts := []soc.Option{}
	if cfg.SOC.RequestsPerSec > 0 {
		opts = append(opts, soc.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.SOC.RequestsPerSec), 1)))
	}
	creds := soc.Credentials{
		Username:    cfg.SOC.Username,
		Password:    cfg.SOC.Password,
		TokenWindow: time.Duration(cfg.SOC.TokenWindowMins) * time.Minute,
	}
	return soc.NewClient(cfg.SOC.BaseURL, creds, opts...), nil
}

func initLocks(st store.Store) *lock.Service {
	return lock.New(st, lock.WithLease(cfg.Lock.Lease()))
}

func initDispatcher(st store.Store) *notify.Dispatcher {
	transport := notify.NewSMTPTransport(notify.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})
	return notify.NewDispatcher(transport, st)
}

func pipelineConfig(includeDeck bool) pipeline.Config {
	return pipeline.Config{
		IncludeDeck:      includeDeck,
		MailMaxAttempts:  cfg.Mail.MaxAttempts,
		MailRetryDelay:   cfg.Mail.RetryDelay(),
		OperatorContacts: cfg.Mail.OperatorContacts,
	}
}

func initOrchestrator(st store.Store, includeDeck bool) *pipeline.Orchestrator {
	builder := report.NewBuilder(cfg.Report.OutDir,
		report.WithDeckTrigger(cfg.Report.DeckTrigger))
	return pipeline.NewOrchestrator(st, builder, initDispatcher(st), pipelineConfig(includeDeck))
}
