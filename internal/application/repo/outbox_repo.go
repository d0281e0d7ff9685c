package repo

import (
	"context"
	"errors"
	"fmt"
	"outreach/internal/appers"
	"outreach/internal/application/common"
	"outreach/internal/application/entity"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
)

func (r *RepoImpl) InsertEvent(ctx context.Context, e *entity.Event) error {
	r.logger.Debugf("[event: %s] InsertEvent started", e.ID)

	metadata := e.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	var insertedID uuid.UUID
	err := r.db.QueryRow(ctx, insertEventQuery,
		e.ID, string(e.Type), []byte(e.Payload), []byte(metadata), string(entity.EventPending),
	).Scan(&insertedID)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

// ClaimEventBatch atomically moves up to limit PENDING events to
// PROCESSING (oldest first, SKIP LOCKED) and stamps a lease so a crashed
// worker's claim expires instead of wedging the batch.
func (r *RepoImpl) ClaimEventBatch(ctx context.Context, lease time.Duration, limit int) ([]entity.Event, error) {
	r.logger.Debugf("[lease: %s, limit: %d] ClaimEventBatch started", lease, limit)

	rows, err := r.db.Query(ctx, claimEventBatchSQL, common.PgInterval(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("claim event batch: %w", err)
	}
	defer rows.Close()

	var res []entity.Event
	for rows.Next() {
		var e entity.Event
		var typ, status string
		if err := rows.Scan(
			&e.ID, &typ, &e.Payload, &e.Metadata, &status,
			&e.LastError, &e.Attempts, &e.LeaseUntil, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan claimed event: %w", err)
		}
		e.Type = entity.EventType(typ)
		e.Status = entity.EventStatus(status)
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim rows err: %w", err)
	}

	return res, nil
}

func (r *RepoImpl) MarkEventProcessed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, markEventProcessedSQL, id, string(entity.EventProcessed))
	if err != nil {
		return fmt.Errorf("event mark processed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("[ID %s] event not found", id)
	}
	return nil
}

func (r *RepoImpl) MarkEventFailed(ctx context.Context, id uuid.UUID, lastErr string) error {
	_, err := r.db.Exec(ctx, markEventFailedSQL, id, string(entity.EventFailed), lastErr)
	if err != nil {
		return fmt.Errorf("event mark failed: %w", err)
	}
	return nil
}

func (r *RepoImpl) ReclaimExpiredLeases(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, reclaimExpiredLeasesSQL)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *RepoImpl) InsertDelivery(ctx context.Context, d *entity.EmailDelivery) error {
	r.logger.Debugf("[delivery: %s] InsertDelivery started", d.ProviderMessageID)

	_, err := r.db.Exec(ctx, insertDeliveryQuery,
		d.ID, d.ProviderMessageID, d.CampaignID, d.StepID, d.LeadID, string(d.Status), d.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (r *RepoImpl) GetDeliveryByProviderID(ctx context.Context, providerMessageID string) (*entity.EmailDelivery, error) {
	var d entity.EmailDelivery
	var status string
	err := r.db.QueryRow(ctx, getDeliveryByProviderIDQuery, providerMessageID).Scan(
		&d.ID, &d.ProviderMessageID, &d.CampaignID, &d.StepID, &d.LeadID,
		&status, &d.SentAt, &d.UpdatedAt,
	)
	switch {
	case err == nil:
		d.Status = entity.DeliveryStatus(status)
		return &d, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, appers.ErrDeliveryNotFound
	default:
		return nil, fmt.Errorf("get delivery: %w", err)
	}
}

func (r *RepoImpl) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status entity.DeliveryStatus) error {
	_, err := r.db.Exec(ctx, updateDeliveryStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	return nil
}

func (r *RepoImpl) InsertOutreachEvent(ctx context.Context, e *entity.OutreachEvent) error {
	metadata := e.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	_, err := r.db.Exec(ctx, insertOutreachEventQuery,
		e.ID, string(e.Type), e.CampaignID, e.StepID, e.LeadID, e.OccurredAt, []byte(metadata),
	)
	if err != nil {
		return fmt.Errorf("insert outreach event: %w", err)
	}
	return nil
}

func (r *RepoImpl) CountOutreachEventsByType(ctx context.Context, campaignID uuid.UUID) (map[entity.OutreachEventType]int, error) {
	rows, err := r.db.Query(ctx, countOutreachEventsByTypeQuery, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count outreach events: %w", err)
	}
	defer rows.Close()

	counts := make(map[entity.OutreachEventType]int)
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("scan outreach event count: %w", err)
		}
		counts[entity.OutreachEventType(typ)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count rows err: %w", err)
	}

	return counts, nil
}
