package use_cases

import (
	"context"
	"outreach/internal/application/entity"
	"outreach/internal/application/service"
	"outreach/pkg/config"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

type UseCaser interface {
	// campaign management
	CreateCampaign(ctx context.Context, req entity.CampaignRequest) (*entity.Campaign, error)
	UpdateCampaign(ctx context.Context, id uuid.UUID, req entity.CampaignUpdateRequest) (*entity.Campaign, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*entity.Campaign, error)
	GetCampaignAnalytics(ctx context.Context, id uuid.UUID) (*entity.CampaignAnalytics, error)
	AddLeadsToCampaign(ctx context.Context, campaignID uuid.UUID, leadIDs []uuid.UUID) (int, error)

	// provider notifications
	IngestProviderNotification(ctx context.Context, n entity.ProviderNotification) (uuid.UUID, error)

	// background jobs
	DispatchEvents(ctx context.Context)
	RunOutreachQueue(ctx context.Context)
	ReclaimLeases(ctx context.Context)

	HealthCheck(ctx context.Context) (dbHealthy bool, kafkaHealthy bool, err error)
}

type UseCase struct {
	service service.Service
	logger  *zap.SugaredLogger
	conf    *config.Config
}

func NewUseCase(service service.Service, logger *zap.SugaredLogger, conf *config.Config) *UseCase {
	return &UseCase{
		service: service,
		logger:  logger,
		conf:    conf,
	}
}

func (u *UseCase) HealthCheck(ctx context.Context) (dbHealthy bool, kafkaHealthy bool, err error) {
	return u.service.HealthCheck(ctx)
}

func (u *UseCase) CreateCampaign(ctx context.Context, req entity.CampaignRequest) (*entity.Campaign, error) {
	u.logger.Debugf("[campaign: %s] CreateCampaign started", req.Name)
	return u.service.CreateCampaign(ctx, req)
}

func (u *UseCase) UpdateCampaign(ctx context.Context, id uuid.UUID, req entity.CampaignUpdateRequest) (*entity.Campaign, error) {
	u.logger.Debugf("[campaign: %s] UpdateCampaign started", id)
	return u.service.UpdateCampaign(ctx, id, req)
}

func (u *UseCase) GetCampaign(ctx context.Context, id uuid.UUID) (*entity.Campaign, error) {
	u.logger.Debugf("[campaign: %s] GetCampaign started", id)
	return u.service.GetCampaign(ctx, id)
}

func (u *UseCase) GetCampaignAnalytics(ctx context.Context, id uuid.UUID) (*entity.CampaignAnalytics, error) {
	u.logger.Debugf("[campaign: %s] GetCampaignAnalytics started", id)
	return u.service.GetCampaignAnalytics(ctx, id)
}

func (u *UseCase) AddLeadsToCampaign(ctx context.Context, campaignID uuid.UUID, leadIDs []uuid.UUID) (int, error) {
	u.logger.Debugf("[campaign: %s] AddLeadsToCampaign started with %d leads", campaignID, len(leadIDs))
	return u.service.AddLeadsToCampaign(ctx, campaignID, leadIDs)
}

func (u *UseCase) IngestProviderNotification(ctx context.Context, n entity.ProviderNotification) (uuid.UUID, error) {
	u.logger.Debugf("[message: %s] IngestProviderNotification started type=%s", n.MessageID, n.Type)
	return u.service.IngestProviderNotification(ctx, n)
}

func (u *UseCase) DispatchEvents(ctx context.Context) {
	if err := u.service.ProcessEvents(ctx); err != nil {
		u.logger.Errorw("dispatch pass failed", "err", err)
	}
}

func (u *UseCase) RunOutreachQueue(ctx context.Context) {
	res, err := u.service.ProcessOutreachQueue(ctx)
	if err != nil {
		u.logger.Errorw("outreach queue pass failed", "err", err)
		return
	}
	if res.Processed > 0 || res.Errors > 0 {
		u.logger.Infof("outreach queue pass: processed=%d errors=%d", res.Processed, res.Errors)
	}
}

func (u *UseCase) ReclaimLeases(ctx context.Context) {
	if err := u.service.ReclaimLeases(ctx); err != nil {
		u.logger.Errorw("lease reclaim pass failed", "err", err)
	}
}
