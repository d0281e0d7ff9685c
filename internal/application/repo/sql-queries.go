package repo

// OUTBOX

const insertEventQuery = `
INSERT INTO events (
  id, type, payload, metadata, status, last_error, attempts, lease_until, created_at
) VALUES ($1, $2, ($3)::jsonb, ($4)::jsonb, $5, '', 0, now(), now())
RETURNING id
`

const claimEventBatchSQL = `
WITH picked AS (
	SELECT id
  	FROM events
  	WHERE status = 'PENDING'
  	ORDER BY created_at
  	FOR UPDATE SKIP LOCKED
	LIMIT $2
)
UPDATE events AS e
SET status = 'PROCESSING', lease_until = now() + $1::interval, attempts = attempts + 1
FROM picked
WHERE e.id = picked.id
RETURNING e.id, e.type, e.payload, e.metadata, e.status, e.last_error, e.attempts, e.lease_until, e.created_at;
`

const markEventProcessedSQL = `
UPDATE events
SET status = $2
WHERE id = $1`

const markEventFailedSQL = `
UPDATE events
SET status = $2, last_error = $3
WHERE id = $1`

// Crash recovery for the claim step: a worker that died mid-batch leaves
// its events PROCESSING until the lease runs out.
const reclaimExpiredLeasesSQL = `
UPDATE events
SET status = 'PENDING'
WHERE status = 'PROCESSING' AND lease_until < now()`

// DELIVERIES

const insertDeliveryQuery = `
INSERT INTO email_deliveries (
  id, provider_message_id, campaign_id, step_id, lead_id, status, sent_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
`

const getDeliveryByProviderIDQuery = `
SELECT id, provider_message_id, campaign_id, step_id, lead_id, status, sent_at, updated_at
FROM email_deliveries
WHERE provider_message_id = $1`

const updateDeliveryStatusSQL = `
UPDATE email_deliveries
SET status = $2, updated_at = now()
WHERE id = $1`

// OUTREACH AUDIT TRAIL (append-only)

const insertOutreachEventQuery = `
INSERT INTO outreach_events (
  id, type, campaign_id, step_id, lead_id, occurred_at, metadata
) VALUES ($1, $2, $3, $4, $5, $6, ($7)::jsonb)
`

const countOutreachEventsByTypeQuery = `
SELECT type, COUNT(*)
FROM outreach_events
WHERE campaign_id = $1
GROUP BY type`

// LEADS

const getLeadQuery = `
SELECT id, workspace_id, email, first_name, last_name, company, score, awareness_stage, pipeline_stage_id
FROM leads
WHERE id = $1`

const applyScoreDeltaSQL = `
UPDATE leads
SET score = score + $2
WHERE id = $1`

const updateLeadStageSQL = `
UPDATE leads
SET awareness_stage = $2
WHERE id = $1`

const findPipelineStageQuery = `
SELECT id, workspace_id, name
FROM pipeline_stages
WHERE workspace_id = $1 AND name = $2`

const assignPipelineStageSQL = `
UPDATE leads
SET pipeline_stage_id = $2
WHERE id = $1`

// CAMPAIGNS

const insertCampaignQuery = `
INSERT INTO campaigns (
  id, name, type, status, sending_profile_id, created_at
) VALUES ($1, $2, $3, $4, $5, now())
`

const getCampaignQuery = `
SELECT id, name, type, status, sending_profile_id, created_at, updated_at
FROM campaigns
WHERE id = $1`

const updateCampaignSQL = `
UPDATE campaigns
SET name = COALESCE(NULLIF($2, ''), name),
    status = COALESCE(NULLIF($3, '')::text, status),
    updated_at = now()
WHERE id = $1`

const insertStepQuery = `
INSERT INTO campaign_steps (
  id, campaign_id, step_order, subject, body, delay_minutes
) VALUES ($1, $2, $3, $4, $5, $6)
`

const deleteStepsSQL = `
DELETE FROM campaign_steps WHERE campaign_id = $1`

const getStepsQuery = `
SELECT id, campaign_id, step_order, subject, body, delay_minutes
FROM campaign_steps
WHERE campaign_id = $1
ORDER BY step_order`

const getFirstSenderQuery = `
SELECT id, sending_profile_id, from_name, from_email, position
FROM senders
WHERE sending_profile_id = $1
ORDER BY position
LIMIT 1`

// ENROLLMENTS

// Duplicate (campaign, lead) pairs are skipped so bulk-enroll is idempotent.
const insertEnrollmentQuery = `
INSERT INTO campaign_enrollments (
  id, campaign_id, lead_id, status, current_step, next_send_at, attempts, started_at
) VALUES ($1, $2, $3, $4, $5, $6, 0, now())
ON CONFLICT (campaign_id, lead_id) DO NOTHING
`

const claimEnrollmentBatchSQL = `
WITH picked AS (
	SELECT ce.id
  	FROM campaign_enrollments ce
  	JOIN campaigns c ON c.id = ce.campaign_id
  	WHERE ce.status = 'ACTIVE'
		AND ce.next_send_at <= now()
		AND c.status = 'RUNNING'
  	ORDER BY ce.next_send_at
  	FOR UPDATE OF ce SKIP LOCKED
	LIMIT $2
)
UPDATE campaign_enrollments AS e
SET next_send_at = now() + $1::interval
FROM picked
WHERE e.id = picked.id
RETURNING e.id, e.campaign_id, e.lead_id, e.status, e.current_step, e.next_send_at, e.attempts, e.started_at, e.completed_at;
`

const advanceEnrollmentSQL = `
UPDATE campaign_enrollments
SET current_step = $2, next_send_at = $3, attempts = 0
WHERE id = $1`

const completeEnrollmentSQL = `
UPDATE campaign_enrollments
SET status = $2, completed_at = $3
WHERE id = $1`

const retryEnrollmentSQL = `
UPDATE campaign_enrollments
SET attempts = $2, next_send_at = $3
WHERE id = $1`

const markEnrollmentAttentionSQL = `
UPDATE campaign_enrollments
SET status = $2, attempts = $3
WHERE id = $1`

const countEnrollmentsByStatusQuery = `
SELECT status, COUNT(*)
FROM campaign_enrollments
WHERE campaign_id = $1
GROUP BY status`
