package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

func TestAuditServiceRecordsWorkflowEvents(t *testing.T) {
	ctx := context.Background()
	pol := testPolicy(t)
	dispatcher := events.NewInMemoryDispatcher(nil)
	audits := &memAuditRepo{}
	audit := NewAuditService(dispatcher, audits, pol, nil)
	audit.RegisterHandlers()

	users := newMemUserRepo()
	requests := NewRequestService(RequestDependencies{
		RequestRepo: newMemRequestRepo(),
		UserRepo:    users,
		Policy:      pol,
		Dispatcher:  dispatcher,
	})
	client := users.add(domain.RoleClient, "c@example.com")
	freelancer := users.add(domain.RoleFreelancer, "f@example.com")
	admin := users.add(domain.RoleSuperAdmin, "root@example.com")

	req, err := requests.Create(ctx, actorOf(client), freelancer.ID)
	require.NoError(t, err)
	_, err = requests.Respond(ctx, actorOf(freelancer), req.ID, true)
	require.NoError(t, err)

	records, err := audit.ListRecent(ctx, actorOf(admin), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, string(events.EventRequestAccepted), records[0].EventType)
	assert.Equal(t, freelancer.ID, records[0].ActorID)
	assert.Equal(t, events.TargetRequest, records[0].TargetType)
	assert.Equal(t, req.ID, records[0].TargetID)
	assert.Equal(t, string(domain.RequestStatusAccepted), records[0].Payload["new_status"])
	assert.False(t, records[0].RecordedAt.IsZero())

	_, err = audit.ListRecent(ctx, actorOf(client), 10)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestAuditFailureDoesNotReachWorkflow(t *testing.T) {
	ctx := context.Background()
	pol := testPolicy(t)
	dispatcher := events.NewInMemoryDispatcher(nil)
	NewAuditService(dispatcher, &memAuditRepo{err: errors.New("audit store down")}, pol, nil).RegisterHandlers()

	users := newMemUserRepo()
	requests := NewRequestService(RequestDependencies{
		RequestRepo: newMemRequestRepo(),
		UserRepo:    users,
		Policy:      pol,
		Dispatcher:  dispatcher,
	})
	client := users.add(domain.RoleClient, "c@example.com")
	freelancer := users.add(domain.RoleFreelancer, "f@example.com")

	req, err := requests.Create(ctx, actorOf(client), freelancer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, req.Status)
}

func TestPayloadMap(t *testing.T) {
	assert.Empty(t, payloadMap(nil))
	m := payloadMap(events.ChatPayload{ClientID: "c", FreelancerID: "f"})
	assert.Equal(t, "c", m["client_id"])
	assert.NotContains(t, m, "message_id")
}
