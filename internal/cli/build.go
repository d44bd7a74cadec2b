package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/orderdesk/sheetsync/internal/config"
	"github.com/orderdesk/sheetsync/internal/extract"
	"github.com/orderdesk/sheetsync/internal/runlog"
	"github.com/orderdesk/sheetsync/internal/sheet"
	"github.com/orderdesk/sheetsync/internal/source"
	"github.com/orderdesk/sheetsync/internal/syncer"
	"github.com/orderdesk/sheetsync/internal/transform"
)

// app is a fully wired sync stack built from one config.
type app struct {
	cfg     *config.Config
	history runlog.Store
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	history, err := runlog.BuildStoreFromDSN(cfg.HistoryDSN)
	if err != nil {
		return nil, fmt.Errorf("run history backend: %w", err)
	}
	return &app{cfg: cfg, history: history}, nil
}

func (a *app) close() {
	if err := a.history.Close(); err != nil {
		slog.Warn("closing run history failed", "error", err)
	}
}

// orchestrator wires a fresh orchestrator against the current config. Events
// may be nil.
func (a *app) orchestrator(events syncer.Sink) (*syncer.Orchestrator, error) {
	return newOrchestrator(a.cfg, a.history, events)
}

func newOrchestrator(cfg *config.Config, history runlog.Store, events syncer.Sink) (*syncer.Orchestrator, error) {
	logger := slog.Default()
	httpClient := &http.Client{Timeout: 60 * time.Second}

	extractor := extract.NewExtractor(source.NewHTTPClient(httpClient, logger), extract.Options{
		InitialPageSize: cfg.Tuning.InitialPageSize,
		MinPageSize:     cfg.Tuning.MinPageSize,
		Logger:          logger,
	})

	tableClient := sheet.NewHTTPTableClient(cfg.Sheet.BaseURL, cfg.Sheet.Token, httpClient)
	reader := sheet.NewReader(tableClient, sheet.ReaderOptions{Logger: logger})
	writer := sheet.NewWriter(tableClient, sheet.WriterOptions{Logger: logger})

	return syncer.NewOrchestrator(syncer.Options{
		Accounts:            sourceAccounts(cfg),
		TableID:             cfg.OrdersTableID(),
		Extractor:           extractor,
		Transformer:         transform.NewTransformer(),
		Reader:              reader,
		Writer:              writer,
		History:             history,
		Events:              events,
		Logger:              logger,
		MaxAccountsInFlight: cfg.Tuning.MaxAccountsInFlight,
		WindowCooldown:      cfg.Tuning.BackfillCooldown(),
		IncrementalDays:     cfg.Tuning.IncrementalDays,
		BackfillChunkMonths: cfg.Tuning.BackfillChunkMonths,
	})
}

func sourceAccounts(cfg *config.Config) []source.Account {
	accounts := make([]source.Account, 0, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		accounts = append(accounts, source.Account{
			Key:        account.Key,
			Name:       account.Name,
			ShopURL:    account.ShopURL,
			Token:      account.Token,
			APIVersion: account.APIVersion,
		})
	}
	return accounts
}
