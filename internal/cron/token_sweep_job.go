package cron

import (
	"context"
	"fmt"

	"github.com/bureaudocs/filedepot-backend/pkg/logger"
)

type tokenSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// TokenSweepJobParams configure the expired-token sweeper.
type TokenSweepJobParams struct {
	Logger *logger.Logger
	Tokens tokenSweeper
}

// NewTokenSweepJob deletes expired capability tokens.
func NewTokenSweepJob(params TokenSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token service required")
	}
	return &tokenSweepJob{logg: params.Logger, tokens: params.Tokens}, nil
}

type tokenSweepJob struct {
	logg   *logger.Logger
	tokens tokenSweeper
}

func (j *tokenSweepJob) Name() string { return "token-sweep" }

func (j *tokenSweepJob) Run(ctx context.Context) error {
	removed, err := j.tokens.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("token sweep: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "removed", removed)
	j.logg.Info(logCtx, "token sweep complete")
	return nil
}
