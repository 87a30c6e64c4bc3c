package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/owcee/sitepulse/internal/adapters/firebaseapp"
	"github.com/owcee/sitepulse/internal/adapters/notify"
	"github.com/owcee/sitepulse/internal/adapters/predictor"
	firestorestore "github.com/owcee/sitepulse/internal/adapters/storage/firestore"
	"github.com/owcee/sitepulse/internal/adapters/storage/sqlite"
	"github.com/owcee/sitepulse/internal/app"
	"github.com/owcee/sitepulse/internal/config"
)

// pinger is implemented by storage backends that can report readiness.
type pinger interface {
	Ping(context.Context) error
}

// backends owns the storage, predictor, and optional Firebase app for one process.
type backends struct {
	cfg       config.Config
	logger    *runtimeLogger
	repo      app.Repository
	predictor app.Predictor
	firebase  *firebaseapp.App
	closers   []func() error
}

// openBackends opens the configured storage backend and predictor client.
func openBackends(ctx context.Context, cfg config.Config, logger *runtimeLogger) (*backends, error) {
	be := &backends{cfg: cfg, logger: logger}
	switch cfg.Storage.Backend {
	case config.StorageFirestore:
		fb, err := be.firebaseApp(ctx)
		if err != nil {
			return nil, err
		}
		client, err := fb.Firestore(ctx)
		if err != nil {
			logger.Error("firestore open failed", "project_id", cfg.Firebase.ProjectID, "err", err)
			return nil, fmt.Errorf("open firestore repository: %w", err)
		}
		repo := firestorestore.New(client)
		be.repo = repo
		be.closers = append(be.closers, repo.Close)
		logger.Info("firestore repository ready", "project_id", cfg.Firebase.ProjectID)
	default:
		logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
		repo, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
			return nil, fmt.Errorf("open sqlite repository: %w", err)
		}
		be.repo = repo
		be.closers = append(be.closers, repo.Close)
		logger.Info("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")
	}

	if cfg.Predictor.BaseURL == "" {
		logger.Warn("predictor base url not configured; submissions and risk refresh are unavailable")
		return be, nil
	}
	timeout, err := cfg.PredictorTimeout()
	if err != nil {
		_ = be.Close()
		return nil, err
	}
	client, err := predictor.New(predictor.Config{
		BaseURL:         cfg.Predictor.BaseURL,
		SubmitFunction:  cfg.Predictor.SubmitFunction,
		PredictFunction: cfg.Predictor.PredictFunction,
		Token:           cfg.Predictor.Token,
		Timeout:         timeout,
	})
	if err != nil {
		_ = be.Close()
		return nil, fmt.Errorf("configure predictor: %w", err)
	}
	be.predictor = client
	logger.Debug("predictor client configured", "base_url", cfg.Predictor.BaseURL, "timeout", timeout.String())
	return be, nil
}

// firebaseApp lazily initializes the shared Firebase app.
func (b *backends) firebaseApp(ctx context.Context) (*firebaseapp.App, error) {
	if b.firebase != nil {
		return b.firebase, nil
	}
	fb, err := firebaseapp.New(ctx, firebaseapp.Config{
		ProjectID:       b.cfg.Firebase.ProjectID,
		CredentialsFile: b.cfg.Firebase.CredentialsFile,
	})
	if err != nil {
		b.logger.Error("firebase init failed", "project_id", b.cfg.Firebase.ProjectID, "err", err)
		return nil, err
	}
	b.firebase = fb
	return fb, nil
}

// notifier builds the configured push notifier.
func (b *backends) notifier(ctx context.Context) (app.Notifier, error) {
	switch b.cfg.Notifications.Backend {
	case config.NotifierFCM:
		fb, err := b.firebaseApp(ctx)
		if err != nil {
			return nil, err
		}
		client, err := fb.Messaging(ctx)
		if err != nil {
			return nil, err
		}
		b.logger.Info("fcm notifier ready", "project_id", b.cfg.Firebase.ProjectID)
		return notify.NewFCM(client, b.logger), nil
	default:
		return notify.NewLog(b.logger), nil
	}
}

// ready reports storage readiness when the backend supports it.
func (b *backends) ready(ctx context.Context) error {
	if p, ok := b.repo.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close closes every opened resource in reverse order.
func (b *backends) Close() error {
	if b == nil {
		return nil
	}
	var errs []error
	for _, closeFn := range slices.Backward(b.closers) {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// subscriptions converts configured reminder subscriptions.
func subscriptions(cfg config.Config) []app.Subscription {
	out := make([]app.Subscription, 0, len(cfg.Reminders.Subscriptions))
	for _, sub := range cfg.Reminders.Subscriptions {
		out = append(out, app.Subscription{
			UserID:      sub.UserID,
			ProjectID:   sub.ProjectID,
			ProjectName: sub.ProjectName,
			DeviceToken: sub.DeviceToken,
		})
	}
	return out
}
