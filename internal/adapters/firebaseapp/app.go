// Package firebaseapp bootstraps the Firebase Admin SDK shared by the
// Firestore store and push notifications.
package firebaseapp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Config selects the Firebase project and credentials.
type Config struct {
	ProjectID       string
	CredentialsFile string
}

// App wraps an initialized Firebase app.
type App struct {
	app *firebase.App
}

// New initializes the Firebase app. An empty credentials file falls back to
// application default credentials.
func New(ctx context.Context, cfg Config) (*App, error) {
	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	var fbCfg *firebase.Config
	if projectID := strings.TrimSpace(cfg.ProjectID); projectID != "" {
		fbCfg = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	return &App{app: app}, nil
}

// Firestore returns a Firestore client; callers close it.
func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	client, err := a.app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("get firestore client: %w", err)
	}
	return client, nil
}

// Messaging returns a Cloud Messaging client.
func (a *App) Messaging(ctx context.Context) (*messaging.Client, error) {
	client, err := a.app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}
	return client, nil
}
