package outbox

import (
	"context"
	"log/slog"
)

// LogExecutor records transfers without moving anything. It is the default for
// development deployments that have no custody backend.
type LogExecutor struct {
	Logger *slog.Logger
}

func (e LogExecutor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e LogExecutor) TransferFunds(ctx context.Context, job Job) error {
	e.logger().InfoContext(ctx, "transfer funds",
		slog.String("job_id", job.ID.String()),
		slog.String("action", job.Action),
		slog.Int("offer_id", job.OfferID),
		slog.String("from", job.FromAddress),
		slog.String("to", job.ToAddress),
		slog.String("amount", job.Amount),
		slog.String("denom", job.Denom))
	return nil
}

func (e LogExecutor) TransferAsset(ctx context.Context, job Job) error {
	e.logger().InfoContext(ctx, "transfer asset",
		slog.String("job_id", job.ID.String()),
		slog.String("action", job.Action),
		slog.Int("offer_id", job.OfferID),
		slog.String("contract", job.Contract),
		slog.String("from", job.FromAddress),
		slog.String("to", job.ToAddress),
		slog.String("token_id", job.TokenID))
	return nil
}
