package service

import (
	"context"

	"github.com/Leganyst/clinic-scheduling/internal/propagation"
)

// ChangePublisher принимает сигналы об изменении записей и расписаний.
type ChangePublisher interface {
	Publish(ctx context.Context, c propagation.Change) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, propagation.Change) error { return nil }
