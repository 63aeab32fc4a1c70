package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/splitchat/pkg/chat"
	"github.com/go-go-golems/splitchat/pkg/config"
	"github.com/go-go-golems/splitchat/pkg/events"
	"github.com/go-go-golems/splitchat/pkg/identity"
	"github.com/go-go-golems/splitchat/pkg/scheduler"
	"github.com/go-go-golems/splitchat/pkg/store"
)

// app bundles the wired-up engine for one CLI invocation. The job runner and
// the event router run for the whole invocation; Close tears everything down
// and waits for them to drain.
type app struct {
	cfg     *config.Config
	store   store.Store
	service *chat.Service
	jobs    *scheduler.JobRunner
	events  *events.EventRouter

	group  *errgroup.Group
	cancel context.CancelFunc
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.FromViper()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open store")
	}

	jobs, err := scheduler.NewJobRunner()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	router, err := events.NewEventRouter()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	svc := chat.NewService(
		st,
		&identity.Static{Subject: cfg.UserSubject},
		chat.DefaultProviderFactory(&cfg.Providers),
		jobs,
		chat.WithSink(router.Sink()),
		chat.WithMaxContextMessages(cfg.MaxContextMessages),
		chat.WithTitleDelay(cfg.TitleDelay),
		chat.WithUtilityModel(cfg.TitleModelID),
	)
	svc.RegisterJobs(jobs)

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return jobs.Run(groupCtx)
	})
	<-jobs.Running()

	return &app{
		cfg:     cfg,
		store:   st,
		service: svc,
		jobs:    jobs,
		events:  router,
		group:   group,
		cancel:  cancel,
	}, nil
}

// runEvents starts the event router; only commands that stream output need it.
// Handlers must be registered before calling this.
func (a *app) runEvents(ctx context.Context) {
	a.group.Go(func() error {
		return a.events.Run(ctx)
	})
	<-a.events.Running()
}

func (a *app) Close() {
	a.cancel()
	if err := a.events.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close event router")
	}
	if err := a.jobs.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close job runner")
	}
	if err := a.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("router shutdown")
	}
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close store")
	}
}
