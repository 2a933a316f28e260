package notification_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/homeservice-dispatch/internal/memstore"
	"github.com/hackgods/homeservice-dispatch/internal/notification"
)

func TestService_Inbox(t *testing.T) {
	ctx := context.Background()
	svc := notification.NewService(memstore.New().Notifications(), zap.NewNop())
	user, other := uuid.New(), uuid.New()
	appt := uuid.New()

	require.NoError(t, svc.Create(ctx, user, &appt, notification.TypeNewBooking, "  New booking  "))
	require.NoError(t, svc.Create(ctx, user, nil, notification.TypeAccountDeactivated, "deactivated"))
	require.NoError(t, svc.Create(ctx, other, &appt, notification.TypeNewBooking, "for someone else"))

	inbox, err := svc.ListForUser(ctx, user, false, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, notification.TypeAccountDeactivated, inbox[0].Type, "newest first")
	assert.Equal(t, "New booking", inbox[1].Message)
	require.NotNil(t, inbox[1].AppointmentID)
	assert.Equal(t, appt, *inbox[1].AppointmentID)

	require.NoError(t, svc.MarkRead(ctx, user, inbox[0].ID))
	unread, err := svc.ListForUser(ctx, user, true, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, notification.TypeNewBooking, unread[0].Type)

	assert.ErrorIs(t, svc.MarkRead(ctx, other, inbox[1].ID), notification.ErrNotificationNotFound)
}

func TestService_RejectsEmptyRecipient(t *testing.T) {
	svc := notification.NewService(memstore.New().Notifications(), zap.NewNop())
	assert.Error(t, svc.Create(context.Background(), uuid.Nil, nil, notification.TypeConfirmed, "x"))
}
