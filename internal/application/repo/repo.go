package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"outreach/internal/appers"
	"outreach/internal/application/entity"
	"outreach/pkg/db"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type Repo interface {
	// outbox
	InsertEvent(ctx context.Context, e *entity.Event) error
	ClaimEventBatch(ctx context.Context, lease time.Duration, limit int) ([]entity.Event, error)
	MarkEventProcessed(ctx context.Context, id uuid.UUID) error
	MarkEventFailed(ctx context.Context, id uuid.UUID, lastErr string) error
	ReclaimExpiredLeases(ctx context.Context) (int64, error)

	// deliveries + audit trail
	InsertDelivery(ctx context.Context, d *entity.EmailDelivery) error
	GetDeliveryByProviderID(ctx context.Context, providerMessageID string) (*entity.EmailDelivery, error)
	UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status entity.DeliveryStatus) error
	InsertOutreachEvent(ctx context.Context, e *entity.OutreachEvent) error
	CountOutreachEventsByType(ctx context.Context, campaignID uuid.UUID) (map[entity.OutreachEventType]int, error)

	// leads
	GetLead(ctx context.Context, id uuid.UUID) (*entity.Lead, error)
	ApplyScoreDelta(ctx context.Context, leadID uuid.UUID, delta int) error
	UpdateLeadStage(ctx context.Context, leadID uuid.UUID, stage entity.AwarenessStage) error
	FindPipelineStage(ctx context.Context, workspaceID uuid.UUID, name string) (*entity.PipelineStage, error)
	AssignPipelineStage(ctx context.Context, leadID, stageID uuid.UUID) error

	// campaigns
	InsertCampaign(ctx context.Context, c *entity.Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*entity.Campaign, error)
	UpdateCampaign(ctx context.Context, id uuid.UUID, name string, status entity.CampaignStatus) error
	InsertSteps(ctx context.Context, steps []entity.CampaignStep) error
	DeleteSteps(ctx context.Context, campaignID uuid.UUID) error
	GetSteps(ctx context.Context, campaignID uuid.UUID) ([]entity.CampaignStep, error)
	GetFirstSender(ctx context.Context, profileID uuid.UUID) (*entity.Sender, error)

	// enrollments
	InsertEnrollment(ctx context.Context, e *entity.CampaignEnrollment) (bool, error)
	ClaimEnrollmentBatch(ctx context.Context, lease time.Duration, limit int) ([]entity.CampaignEnrollment, error)
	AdvanceEnrollment(ctx context.Context, id uuid.UUID, currentStep int, nextSendAt time.Time) error
	CompleteEnrollment(ctx context.Context, id uuid.UUID, completedAt time.Time) error
	RetryEnrollment(ctx context.Context, id uuid.UUID, attempts int, nextSendAt time.Time) error
	MarkEnrollmentNeedsAttention(ctx context.Context, id uuid.UUID, attempts int) error
	CountEnrollmentsByStatus(ctx context.Context, campaignID uuid.UUID) (map[entity.EnrollmentStatus]int, error)

	HealthCheck(ctx context.Context) error
}

type RepoImpl struct {
	db     db.DB
	logger *zap.SugaredLogger
}

func NewRepo(db db.DB, logger *zap.SugaredLogger) *RepoImpl {
	return &RepoImpl{db: db, logger: logger}
}

func (r *RepoImpl) HealthCheck(ctx context.Context) error {
	var result int
	err := r.db.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (r *RepoImpl) GetLead(ctx context.Context, id uuid.UUID) (*entity.Lead, error) {
	r.logger.Debugf("[lead: %s] start getting from DB", id)

	var l entity.Lead
	err := r.db.QueryRow(ctx, getLeadQuery, id).Scan(
		&l.ID, &l.WorkspaceID, &l.Email, &l.FirstName, &l.LastName,
		&l.Company, &l.Score, &l.AwarenessStage, &l.PipelineStageID,
	)
	switch {
	case err == nil:
		return &l, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, appersNotFound("lead", id.String())
	default:
		return nil, fmt.Errorf("get lead: %w", err)
	}
}

func (r *RepoImpl) ApplyScoreDelta(ctx context.Context, leadID uuid.UUID, delta int) error {
	result, err := r.db.Exec(ctx, applyScoreDeltaSQL, leadID, delta)
	if err != nil {
		return fmt.Errorf("apply score delta: %w", err)
	}
	if result.RowsAffected() == 0 {
		return appersNotFound("lead", leadID.String())
	}
	return nil
}

func (r *RepoImpl) UpdateLeadStage(ctx context.Context, leadID uuid.UUID, stage entity.AwarenessStage) error {
	result, err := r.db.Exec(ctx, updateLeadStageSQL, leadID, string(stage))
	if err != nil {
		return fmt.Errorf("update lead stage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return appersNotFound("lead", leadID.String())
	}
	return nil
}

func (r *RepoImpl) FindPipelineStage(ctx context.Context, workspaceID uuid.UUID, name string) (*entity.PipelineStage, error) {
	var s entity.PipelineStage
	err := r.db.QueryRow(ctx, findPipelineStageQuery, workspaceID, name).Scan(&s.ID, &s.WorkspaceID, &s.Name)
	switch {
	case err == nil:
		return &s, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	default:
		return nil, fmt.Errorf("find pipeline stage: %w", err)
	}
}

func (r *RepoImpl) AssignPipelineStage(ctx context.Context, leadID, stageID uuid.UUID) error {
	_, err := r.db.Exec(ctx, assignPipelineStageSQL, leadID, stageID)
	if err != nil {
		return fmt.Errorf("assign pipeline stage: %w", err)
	}
	return nil
}

// isDuplicateKeyError reports whether err is a unique violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func appersNotFound(kind, id string) error {
	return appers.ErrorResp{
		StatusCode: http.StatusNotFound,
		StatusDesc: fmt.Sprintf("%s %s not found", kind, id),
	}
}
