// Package app wires the directory components for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/Kapral67/FamilyDirectory-sub001/api"
	"github.com/Kapral67/FamilyDirectory-sub001/chain"
	"github.com/Kapral67/FamilyDirectory-sub001/config"
	"github.com/Kapral67/FamilyDirectory-sub001/engine"
	"github.com/Kapral67/FamilyDirectory-sub001/identity"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
	"github.com/Kapral67/FamilyDirectory-sub001/stream"
)

// App holds the wired components shared by the binaries.
type App struct {
	Config      config.Config
	Logger      *slog.Logger
	Store       *store.Store
	Chain       *chain.Chain
	Bindings    *identity.DynamoBindings
	DeadLetters *identity.DynamoDeadLetters
	Janitor     *identity.Janitor
	Engine      *engine.Engine
}

// New connects to DynamoDB and builds every component over it.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	client, err := NewDynamoClient(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	return Build(client, cfg, logger), nil
}

// NewDynamoClient loads the default AWS configuration for cfg.
func NewDynamoClient(ctx context.Context, cfg config.AWSConfig) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
		}
	}), nil
}

// DynamoClient is everything the components need from DynamoDB.
type DynamoClient interface {
	store.Client
	identity.Client
}

// Build assembles the components over client.
func Build(client DynamoClient, cfg config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	s := store.New(client, cfg.Store)
	c := chain.New(s, cfg.Chain, logger.With("component", "chain"))
	bindings := identity.NewDynamoBindings(client, cfg.Identity)
	dead := identity.NewDynamoDeadLetters(client, cfg.Identity)
	janitor := identity.NewJanitor(bindings, dead, cfg.Janitor, logger.With("component", "janitor"))

	opts := []engine.Option{engine.WithUnbinder(janitor)}
	if cfg.DirectAppend {
		opts = append(opts, engine.WithNotifier(c))
	}
	e := engine.New(s, cfg.Engine, logger.With("component", "engine"), opts...)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       s,
		Chain:       c,
		Bindings:    bindings,
		DeadLetters: dead,
		Janitor:     janitor,
		Engine:      e,
	}
}

// HTTPServer returns the API server.
func (a *App) HTTPServer() *http.Server {
	handlers := api.NewHandlers(a.Engine, a.Store, a.Chain, a.Logger.With("component", "api"))
	auth := api.NewAuthenticator(a.Bindings, a.Store, a.Config.HTTP.SubjectHeader, a.Logger)
	router := api.NewRouter(handlers, auth, a.Config.HTTP.RequestTimeout)
	return api.NewServer(a.Config.HTTPPort, router)
}

// StreamHandler returns the Members table stream handler.
func (a *App) StreamHandler() *stream.Handler {
	return stream.NewHandler(a.Chain, a.Logger.With("component", "stream"))
}
