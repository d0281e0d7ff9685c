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

func (r *RepoImpl) InsertCampaign(ctx context.Context, c *entity.Campaign) error {
	r.logger.Debugf("[campaign: %s] start inserting into DB", c.ID)

	_, err := r.db.Exec(ctx, insertCampaignQuery,
		c.ID, c.Name, c.Type, string(c.Status), c.SendingProfileID,
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

func (r *RepoImpl) GetCampaign(ctx context.Context, id uuid.UUID) (*entity.Campaign, error) {
	var c entity.Campaign
	var status string
	err := r.db.QueryRow(ctx, getCampaignQuery, id).Scan(
		&c.ID, &c.Name, &c.Type, &status, &c.SendingProfileID, &c.CreatedAt, &c.UpdatedAt,
	)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, appers.ErrCampaignNotFound
	case err != nil:
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	c.Status = entity.CampaignStatus(status)

	steps, err := r.GetSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Steps = steps

	return &c, nil
}

func (r *RepoImpl) UpdateCampaign(ctx context.Context, id uuid.UUID, name string, status entity.CampaignStatus) error {
	result, err := r.db.Exec(ctx, updateCampaignSQL, id, name, string(status))
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if result.RowsAffected() == 0 {
		return appers.ErrCampaignNotFound
	}
	return nil
}

func (r *RepoImpl) InsertSteps(ctx context.Context, steps []entity.CampaignStep) error {
	for i := range steps {
		s := &steps[i]
		_, err := r.db.Exec(ctx, insertStepQuery,
			s.ID, s.CampaignID, s.Order, s.Subject, s.Body, int(s.Delay/time.Minute),
		)
		if err != nil {
			return fmt.Errorf("insert step %d: %w", s.Order, err)
		}
	}
	return nil
}

func (r *RepoImpl) DeleteSteps(ctx context.Context, campaignID uuid.UUID) error {
	_, err := r.db.Exec(ctx, deleteStepsSQL, campaignID)
	if err != nil {
		return fmt.Errorf("delete steps: %w", err)
	}
	return nil
}

func (r *RepoImpl) GetSteps(ctx context.Context, campaignID uuid.UUID) ([]entity.CampaignStep, error) {
	rows, err := r.db.Query(ctx, getStepsQuery, campaignID)
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	defer rows.Close()

	steps := make([]entity.CampaignStep, 0)
	for rows.Next() {
		var s entity.CampaignStep
		var delayMinutes int
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.Order, &s.Subject, &s.Body, &delayMinutes); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		s.Delay = time.Duration(delayMinutes) * time.Minute
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("steps rows err: %w", err)
	}

	return steps, nil
}

func (r *RepoImpl) GetFirstSender(ctx context.Context, profileID uuid.UUID) (*entity.Sender, error) {
	var s entity.Sender
	err := r.db.QueryRow(ctx, getFirstSenderQuery, profileID).Scan(
		&s.ID, &s.SendingProfileID, &s.FromName, &s.FromEmail, &s.Position,
	)
	switch {
	case err == nil:
		return &s, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("no sender bound to profile %s", profileID)
	default:
		return nil, fmt.Errorf("get sender: %w", err)
	}
}

// InsertEnrollment returns false when the (campaign, lead) pair already
// exists; bulk-enroll treats that as a silent skip.
func (r *RepoImpl) InsertEnrollment(ctx context.Context, e *entity.CampaignEnrollment) (bool, error) {
	result, err := r.db.Exec(ctx, insertEnrollmentQuery,
		e.ID, e.CampaignID, e.LeadID, string(e.Status), e.CurrentStep, e.NextSendAt,
	)
	switch {
	case err == nil:
		return result.RowsAffected() > 0, nil
	case isDuplicateKeyError(err):
		return false, nil
	default:
		return false, fmt.Errorf("insert enrollment: %w", err)
	}
}

// ClaimEnrollmentBatch reserves due enrollments of RUNNING campaigns with
// SKIP LOCKED, pushing next_send_at forward by the lease so overlapping
// scheduler invocations cannot double-send.
func (r *RepoImpl) ClaimEnrollmentBatch(ctx context.Context, lease time.Duration, limit int) ([]entity.CampaignEnrollment, error) {
	r.logger.Debugf("[lease: %s, limit: %d] ClaimEnrollmentBatch started", lease, limit)

	rows, err := r.db.Query(ctx, claimEnrollmentBatchSQL, common.PgInterval(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("claim enrollment batch: %w", err)
	}
	defer rows.Close()

	var res []entity.CampaignEnrollment
	for rows.Next() {
		var e entity.CampaignEnrollment
		var status string
		if err := rows.Scan(
			&e.ID, &e.CampaignID, &e.LeadID, &status, &e.CurrentStep,
			&e.NextSendAt, &e.Attempts, &e.StartedAt, &e.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan claimed enrollment: %w", err)
		}
		e.Status = entity.EnrollmentStatus(status)
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim rows err: %w", err)
	}

	return res, nil
}

func (r *RepoImpl) AdvanceEnrollment(ctx context.Context, id uuid.UUID, currentStep int, nextSendAt time.Time) error {
	_, err := r.db.Exec(ctx, advanceEnrollmentSQL, id, currentStep, nextSendAt)
	if err != nil {
		return fmt.Errorf("advance enrollment: %w", err)
	}
	return nil
}

func (r *RepoImpl) CompleteEnrollment(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	_, err := r.db.Exec(ctx, completeEnrollmentSQL, id, string(entity.EnrollmentCompleted), completedAt)
	if err != nil {
		return fmt.Errorf("complete enrollment: %w", err)
	}
	return nil
}

func (r *RepoImpl) RetryEnrollment(ctx context.Context, id uuid.UUID, attempts int, nextSendAt time.Time) error {
	_, err := r.db.Exec(ctx, retryEnrollmentSQL, id, attempts, nextSendAt)
	if err != nil {
		return fmt.Errorf("retry enrollment: %w", err)
	}
	return nil
}

func (r *RepoImpl) MarkEnrollmentNeedsAttention(ctx context.Context, id uuid.UUID, attempts int) error {
	_, err := r.db.Exec(ctx, markEnrollmentAttentionSQL, id, string(entity.EnrollmentNeedsAttention), attempts)
	if err != nil {
		return fmt.Errorf("enrollment mark needs_attention: %w", err)
	}
	return nil
}

func (r *RepoImpl) CountEnrollmentsByStatus(ctx context.Context, campaignID uuid.UUID) (map[entity.EnrollmentStatus]int, error) {
	rows, err := r.db.Query(ctx, countEnrollmentsByStatusQuery, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	defer rows.Close()

	counts := make(map[entity.EnrollmentStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan enrollment count: %w", err)
		}
		counts[entity.EnrollmentStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count rows err: %w", err)
	}

	return counts, nil
}
