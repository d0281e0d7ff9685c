package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"outreach/internal/application/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emitEngagement(t *testing.T, env *testEnv, typ entity.EventType, messageID string) {
	t.Helper()
	_, err := env.svc.Emit(context.Background(), typ, entity.EngagementPayload{
		MessageID:  messageID,
		OccurredAt: testNow,
	}, nil)
	require.NoError(t, err)
}

func TestEmitPersistsPendingEvent(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.svc.Emit(context.Background(), entity.EventEmailOpened,
		entity.EngagementPayload{MessageID: "msg-1"}, map[string]string{"source": "test"})
	require.NoError(t, err)

	stored := env.repo.events[id]
	require.NotNil(t, stored)
	assert.Equal(t, entity.EventPending, stored.Status)
	assert.Equal(t, entity.EventEmailOpened, stored.Type)

	var payload entity.EngagementPayload
	require.NoError(t, json.Unmarshal(stored.Payload, &payload))
	assert.Equal(t, "msg-1", payload.MessageID)
}

func TestProcessEventsDelivered(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, entity.StageUnaware)
	campaign := env.seedCampaign(t)
	env.seedDelivery(t, lead, campaign, "msg-1")

	emitEngagement(t, env, entity.EventEmailDelivered, "msg-1")
	require.NoError(t, env.svc.ProcessEvents(context.Background()))

	for _, e := range env.repo.events {
		assert.Equal(t, entity.EventProcessed, e.Status)
	}
	assert.Equal(t, entity.DeliveryDelivered, env.repo.deliveries["msg-1"].Status)

	require.Len(t, env.repo.outreach, 1)
	assert.Equal(t, entity.OutreachDelivered, env.repo.outreach[0].Type)
	assert.Equal(t, lead.ID, env.repo.outreach[0].LeadID)

	// delivered carries no scoring rule
	assert.Equal(t, 0, env.repo.leads[lead.ID].Score)
}

func TestProcessEventsUnknownTypeFailsAndParks(t *testing.T) {
	env := newTestEnv(t)

	id := mustUUID(t)
	require.NoError(t, env.repo.InsertEvent(context.Background(), &entity.Event{
		ID:      id,
		Type:    "email.unknown",
		Payload: json.RawMessage(`{}`),
		Status:  entity.EventPending,
	}))

	require.NoError(t, env.svc.ProcessEvents(context.Background()))

	stored := env.repo.events[id]
	assert.Equal(t, entity.EventFailed, stored.Status)
	assert.Contains(t, stored.LastError, "no handler")

	require.Len(t, env.parkingLot.parked, 1)
	assert.Equal(t, id, env.parkingLot.parked[0].ID)
}

func TestProcessEventsMalformedPayloadFailsAndParks(t *testing.T) {
	env := newTestEnv(t)

	id := mustUUID(t)
	require.NoError(t, env.repo.InsertEvent(context.Background(), &entity.Event{
		ID:      id,
		Type:    entity.EventEmailOpened,
		Payload: json.RawMessage(`not json`),
		Status:  entity.EventPending,
	}))

	require.NoError(t, env.svc.ProcessEvents(context.Background()))

	assert.Equal(t, entity.EventFailed, env.repo.events[id].Status)
	require.Len(t, env.parkingLot.parked, 1)
}

func TestProcessEventsUnmatchedMessageIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, entity.StageUnaware)

	emitEngagement(t, env, entity.EventEmailOpened, "no-such-message")
	require.NoError(t, env.svc.ProcessEvents(context.Background()))

	// The event completes without side effects.
	for _, e := range env.repo.events {
		assert.Equal(t, entity.EventProcessed, e.Status)
	}
	assert.Empty(t, env.repo.outreach)
	assert.Equal(t, 0, env.repo.leads[lead.ID].Score)
	assert.Empty(t, env.parkingLot.parked)
}

func TestProcessEventsOneBadEventDoesNotBlockOthers(t *testing.T) {
	env := newTestEnv(t)
	lead := env.seedLead(t, entity.StageUnaware)
	campaign := env.seedCampaign(t)
	env.seedDelivery(t, lead, campaign, "msg-1")

	badID := mustUUID(t)
	require.NoError(t, env.repo.InsertEvent(context.Background(), &entity.Event{
		ID:      badID,
		Type:    "email.unknown",
		Payload: json.RawMessage(`{}`),
		Status:  entity.EventPending,
	}))
	emitEngagement(t, env, entity.EventEmailOpened, "msg-1")

	require.NoError(t, env.svc.ProcessEvents(context.Background()))

	assert.Equal(t, entity.EventFailed, env.repo.events[badID].Status)
	require.Len(t, env.repo.outreach, 1)
	assert.Equal(t, entity.OutreachOpened, env.repo.outreach[0].Type)
}

func TestFailedEventsAreNotRetried(t *testing.T) {
	env := newTestEnv(t)

	id := mustUUID(t)
	require.NoError(t, env.repo.InsertEvent(context.Background(), &entity.Event{
		ID:      id,
		Type:    "email.unknown",
		Payload: json.RawMessage(`{}`),
		Status:  entity.EventPending,
	}))

	require.NoError(t, env.svc.ProcessEvents(context.Background()))
	require.NoError(t, env.svc.ProcessEvents(context.Background()))

	// Only the first pass touched the event.
	assert.Equal(t, 1, env.repo.events[id].Attempts)
	assert.Len(t, env.parkingLot.parked, 1)
}

func TestReclaimLeases(t *testing.T) {
	env := newTestEnv(t)

	id := mustUUID(t)
	require.NoError(t, env.repo.InsertEvent(context.Background(), &entity.Event{
		ID:      id,
		Type:    entity.EventEmailOpened,
		Payload: json.RawMessage(`{"messageId":"msg-1"}`),
		Status:  entity.EventPending,
	}))
	env.repo.events[id].Status = entity.EventProcessing
	env.repo.events[id].LeaseUntil = testNow.Add(-time.Minute)

	require.NoError(t, env.svc.ReclaimLeases(context.Background()))

	assert.Equal(t, entity.EventPending, env.repo.events[id].Status)
}
