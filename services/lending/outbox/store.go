package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"foxylend/crypto"
	"foxylend/native/lending"
)

// BatchAttribute is the result attribute carrying the outbox batch id.
const BatchAttribute = "outbox_batch"

// Store persists transfer instructions. It implements lending.EffectSink,
// lending.EffectConfirmer and lending.EffectRevoker: jobs are written staged
// and only become claimable once the ledger commit is confirmed.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var (
	_ lending.EffectSink      = (*Store)(nil)
	_ lending.EffectConfirmer = (*Store)(nil)
	_ lending.EffectRevoker   = (*Store)(nil)
)

// NewStore wraps an already migrated database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func addressColumn(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

// Enqueue stores every transfer of res as staged jobs in one database
// transaction and tags res with the batch id.
func (s *Store) Enqueue(res *lending.Result) error {
	if res == nil || len(res.Transfers) == 0 {
		return nil
	}
	batch := uuid.New()
	now := s.now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var last int64
		if err := tx.Model(&Job{}).Select("COALESCE(MAX(position), 0)").Scan(&last).Error; err != nil {
			return err
		}
		jobs := make([]Job, 0, len(res.Transfers))
		for i, tr := range res.Transfers {
			amount := ""
			if tr.Amount != nil {
				amount = tr.Amount.Dec()
			}
			jobs = append(jobs, Job{
				ID:          uuid.New(),
				BatchID:     batch,
				Position:    last + int64(i) + 1,
				Sequence:    i,
				OfferID:     int(res.OfferID),
				Action:      res.Action,
				Kind:        string(tr.Kind),
				Contract:    addressColumn(tr.Contract),
				FromAddress: addressColumn(tr.From),
				ToAddress:   addressColumn(tr.To),
				TokenID:     tr.TokenID,
				Amount:      amount,
				Denom:       tr.Denom,
				Status:      StatusStaged,
				AvailableAt: now,
			})
		}
		return tx.Create(&jobs).Error
	})
	if err != nil {
		return fmt.Errorf("outbox: enqueue: %w", err)
	}
	if res.Attributes == nil {
		res.Attributes = make(map[string]string)
	}
	res.Attributes[BatchAttribute] = batch.String()
	return nil
}

// Confirm releases the staged jobs of the batch recorded on res to the worker.
func (s *Store) Confirm(res *lending.Result) error {
	batch, ok, err := batchOf(res)
	if err != nil || !ok {
		return err
	}
	now := s.now()
	result := s.db.Model(&Job{}).
		Where("batch_id = ? AND status = ?", batch, StatusStaged).
		Updates(map[string]any{
			"status":       StatusPending,
			"available_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("outbox: confirm: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("outbox: confirm batch %s: %w", batch, ErrJobNotFound)
	}
	return nil
}

// Revoke deletes the staged jobs of the batch recorded on res.
func (s *Store) Revoke(res *lending.Result) error {
	batch, ok, err := batchOf(res)
	if err != nil || !ok {
		return err
	}
	return s.db.Where("batch_id = ? AND status = ?", batch, StatusStaged).Delete(&Job{}).Error
}

func batchOf(res *lending.Result) (uuid.UUID, bool, error) {
	if res == nil || res.Attributes[BatchAttribute] == "" {
		return uuid.Nil, false, nil
	}
	batch, err := uuid.Parse(res.Attributes[BatchAttribute])
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("outbox: batch id: %w", err)
	}
	return batch, true, nil
}

// ClaimPending returns up to limit pending jobs in position order. Jobs whose
// retry time lies in the future are included so callers can preserve order.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	var jobs []Job
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("position ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkDone records a successful execution.
func (s *Store) MarkDone(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, id, map[string]any{
		"status":     StatusDone,
		"last_error": "",
		"updated_at": s.now(),
	})
}

// MarkRetry schedules another attempt at next.
func (s *Store) MarkRetry(ctx context.Context, id uuid.UUID, next time.Time, lastError string) error {
	return s.update(ctx, id, map[string]any{
		"attempts":     gorm.Expr("attempts + 1"),
		"available_at": next,
		"last_error":   truncate(lastError),
		"updated_at":   s.now(),
	})
}

// MarkFailed gives up on a job and on every pending job after it in the same
// batch.
func (s *Store) MarkFailed(ctx context.Context, job Job, lastError string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]any{
			"status":     StatusFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": truncate(lastError),
			"updated_at": s.now(),
		}).Error; err != nil {
			return err
		}
		return tx.Model(&Job{}).
			Where("batch_id = ? AND sequence > ? AND status = ?", job.BatchID, job.Sequence, StatusPending).
			Updates(map[string]any{
				"status":     StatusFailed,
				"last_error": "aborted: earlier transfer in batch failed",
				"updated_at": s.now(),
			}).Error
	})
}

// List returns jobs in position order, optionally filtered by status.
func (s *Store) List(ctx context.Context, status JobStatus, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.db.WithContext(ctx).Order("position ASC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var jobs []Job
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Get loads one job.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ErrJobNotFound is returned by Get for unknown ids.
var ErrJobNotFound = errors.New("outbox: job not found")

func (s *Store) update(ctx context.Context, id uuid.UUID, values map[string]any) error {
	result := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func truncate(msg string) string {
	const max = 512
	if len(msg) <= max {
		return msg
	}
	return msg[:max]
}
