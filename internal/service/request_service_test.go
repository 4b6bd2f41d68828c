package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

type requestFixture struct {
	users      *memUserRepo
	requests   *memRequestRepo
	dispatcher *recordingDispatcher
	svc        *RequestService
	client     domain.User
	freelancer domain.User
	admin      domain.User
}

func newRequestFixture(t *testing.T) *requestFixture {
	f := &requestFixture{
		users:      newMemUserRepo(),
		requests:   newMemRequestRepo(),
		dispatcher: &recordingDispatcher{},
	}
	f.svc = NewRequestService(RequestDependencies{
		RequestRepo: f.requests,
		UserRepo:    f.users,
		Policy:      testPolicy(t),
		Dispatcher:  f.dispatcher,
	})
	f.client = f.users.add(domain.RoleClient, "c1@example.com")
	f.freelancer = f.users.add(domain.RoleFreelancer, "f1@example.com")
	f.admin = f.users.add(domain.RoleSuperAdmin, "root@example.com")
	return f
}

func TestRequestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)
	other := f.users.add(domain.RoleClient, "c2@example.com")

	_, err := f.svc.Create(ctx, actorOf(f.freelancer), f.freelancer.ID)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	_, err = f.svc.Create(ctx, actorOf(f.client), f.client.ID)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = f.svc.Create(ctx, actorOf(f.client), other.ID)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = f.svc.Create(ctx, actorOf(f.client), "missing")
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}

func TestRequestOnlyOnePendingPerPair(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)

	req, err := f.svc.Create(ctx, actorOf(f.client), f.freelancer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, req.Status)

	_, err = f.svc.Create(ctx, actorOf(f.client), f.freelancer.ID)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))

	_, err = f.svc.Respond(ctx, actorOf(f.freelancer), req.ID, false)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, actorOf(f.client), f.freelancer.ID)
	assert.NoError(t, err)
}

func TestRequestConcurrentCreateYieldsSinglePending(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, conflicts := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, actorOf(f.client), f.freelancer.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if apperrors.IsCode(err, "CONFLICT") {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 7, conflicts)
}

func TestRequestAcceptThenCancelFails(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)

	req, err := f.svc.Create(ctx, actorOf(f.client), f.freelancer.ID)
	require.NoError(t, err)

	accepted, err := f.svc.Respond(ctx, actorOf(f.freelancer), req.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusAccepted, accepted.Status)

	_, err = f.svc.Cancel(ctx, actorOf(f.client), req.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	assert.Contains(t, err.Error(), "Only pending requests can be cancelled")

	stored, err := f.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusAccepted, stored.Status)

	assert.Equal(t, []events.EventType{events.EventRequestCreated, events.EventRequestAccepted}, f.dispatcher.types())
}

func TestRequestTransitionRuleTable(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)
	stranger := f.users.add(domain.RoleFreelancer, "f2@example.com")
	otherClient := f.users.add(domain.RoleClient, "c2@example.com")

	req, err := f.svc.Create(ctx, actorOf(f.client), f.freelancer.ID)
	require.NoError(t, err)

	cases := []struct {
		name string
		call func() error
		code string
	}{
		{"other freelancer responds", func() error { _, err := f.svc.Respond(ctx, actorOf(stranger), req.ID, true); return err }, "FORBIDDEN"},
		{"client responds", func() error { _, err := f.svc.Respond(ctx, actorOf(f.client), req.ID, true); return err }, "FORBIDDEN"},
		{"other client cancels", func() error { _, err := f.svc.Cancel(ctx, actorOf(otherClient), req.ID); return err }, "FORBIDDEN"},
		{"freelancer cancels", func() error { _, err := f.svc.Cancel(ctx, actorOf(f.freelancer), req.ID); return err }, "FORBIDDEN"},
		{"unknown request", func() error { _, err := f.svc.Respond(ctx, actorOf(f.freelancer), "missing", true); return err }, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			assert.True(t, apperrors.IsCode(err, tc.code), "got %v", err)
			stored, getErr := f.requests.GetByID(ctx, req.ID)
			require.NoError(t, getErr)
			assert.Equal(t, domain.RequestStatusPending, stored.Status)
		})
	}

	cancelled, err := f.svc.Cancel(ctx, actorOf(f.client), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusCancelled, cancelled.Status)

	_, err = f.svc.Respond(ctx, actorOf(f.freelancer), req.ID, true)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestRequestListsAndEngagement(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)

	engaged, err := f.svc.HasAcceptedEngagement(ctx, f.client.ID, f.freelancer.ID, actorOf(f.client))
	require.NoError(t, err)
	assert.False(t, engaged)

	engaged, err = f.svc.HasAcceptedEngagement(ctx, f.client.ID, f.freelancer.ID, actorOf(f.admin))
	require.NoError(t, err)
	assert.True(t, engaged)

	req, err := f.svc.Create(ctx, actorOf(f.client), f.freelancer.ID)
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, actorOf(f.freelancer), req.ID, true)
	require.NoError(t, err)

	engaged, err = f.svc.HasAcceptedEngagement(ctx, f.client.ID, f.freelancer.ID, actorOf(f.freelancer))
	require.NoError(t, err)
	assert.True(t, engaged)

	outsider := f.users.add(domain.RoleClient, "c3@example.com")
	engaged, err = f.svc.HasAcceptedEngagement(ctx, f.client.ID, f.freelancer.ID, actorOf(outsider))
	require.NoError(t, err)
	assert.False(t, engaged)

	sent, err := f.svc.ListSent(ctx, actorOf(f.client))
	require.NoError(t, err)
	assert.Len(t, sent, 1)

	received, err := f.svc.ListReceived(ctx, actorOf(f.freelancer))
	require.NoError(t, err)
	assert.Len(t, received, 1)

	_, err = f.svc.ListReceived(ctx, actorOf(f.client))
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestRequestBannedFreelancerIsNotATarget(t *testing.T) {
	ctx := context.Background()
	f := newRequestFixture(t)
	require.NoError(t, f.users.TransitionStatus(ctx, f.freelancer.ID,
		[]domain.UserStatus{domain.UserStatusActive}, domain.UserStatusBanned))

	_, err := f.svc.Create(ctx, actorOf(f.client), f.freelancer.ID)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
	assert.Empty(t, f.dispatcher.types())
}
