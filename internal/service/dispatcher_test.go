package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"deadline-planner/internal/model"
	"deadline-planner/internal/service"
)

const chatID = int64(1001)

func TestDispatchSendsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := e.createTask(t, "Report", at(30*time.Minute))

	e.sender.On("Send", mock.Anything, chatID, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "скоро дедлайн") && strings.Contains(text, "Report")
	})).Return(nil)

	ack, err := e.dispatcher.Dispatch(ctx, service.DispatchRequest{TaskID: task.ID, ChatID: chatID})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSent, ack.Outcome)
	assert.Equal(t, 1, ack.Attempts)

	stored := e.reload(t, task.ID)
	assert.True(t, stored.NotificationSent)
	assert.Nil(t, stored.NotifyLeaseUntil)

	ack, err = e.dispatcher.Dispatch(ctx, service.DispatchRequest{TaskID: task.ID, ChatID: chatID})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSkipped, ack.Outcome)

	e.sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := e.createTask(t, "Flaky", at(-time.Minute))

	e.sender.On("Send", mock.Anything, chatID, mock.Anything).Return(errors.New("timeout")).Twice()
	e.sender.On("Send", mock.Anything, chatID, mock.Anything).Return(nil).Once()

	ack, err := e.dispatcher.Dispatch(ctx, service.DispatchRequest{TaskID: task.ID, ChatID: chatID})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSent, ack.Outcome)
	assert.Equal(t, 3, ack.Attempts)
	assert.True(t, e.reload(t, task.ID).NotificationSent)
	e.sender.AssertExpectations(t)
}

func TestDispatchGivesUpAfterMaxAttempts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := e.createTask(t, "Down", at(10*time.Minute))

	e.sender.On("Send", mock.Anything, chatID, mock.Anything).Return(errors.New("503"))

	ack, err := e.dispatcher.Dispatch(ctx, service.DispatchRequest{TaskID: task.ID, ChatID: chatID})
	require.Error(t, err)

	var transient *service.TransientDispatchError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, task.ID, transient.TaskID)
	assert.Equal(t, 3, transient.Attempts)
	assert.Equal(t, 3, ack.Attempts)
	e.sender.AssertNumberOfCalls(t, "Send", 3)

	stored := e.reload(t, task.ID)
	assert.False(t, stored.NotificationSent)
	assert.Nil(t, stored.NotifyLeaseUntil)

	// Eligible again on the next attempt.
	claimed, err := e.tasks.ClaimNotification(ctx, task.ID, "rival", baseTime, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestDispatchStopsOnRejectedRecipient(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := e.createTask(t, "Blocked", at(10*time.Minute))

	e.sender.On("Send", mock.Anything, chatID, mock.Anything).
		Return(fmt.Errorf("telegram 403: %w", service.ErrUndeliverable))

	ack, err := e.dispatcher.Dispatch(ctx, service.DispatchRequest{TaskID: task.ID, ChatID: chatID})
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrUndeliverable)
	assert.Equal(t, 1, ack.Attempts)
	e.sender.AssertNumberOfCalls(t, "Send", 1)
	assert.False(t, e.reload(t, task.ID).NotificationSent)
}

func TestDispatchSkipsTasksThatNoLongerQualify(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	far := e.createTask(t, "Far", at(2*time.Hour))
	closed := e.createTask(t, "Closed", at(-time.Hour))
	_, err := e.taskSvc.Complete(ctx, e.owner.ID, closed.ID)
	require.NoError(t, err)
	gone := e.createTask(t, "Gone", at(time.Minute))
	require.NoError(t, e.taskSvc.DeleteTask(ctx, e.owner.ID, gone.ID))

	for _, id := range []string{far.ID, closed.ID, gone.ID} {
		ack, err := e.dispatcher.Dispatch(ctx, service.DispatchRequest{TaskID: id, ChatID: chatID})
		require.NoError(t, err)
		assert.Equal(t, service.OutcomeSkipped, ack.Outcome)
	}

	e.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	assert.Nil(t, e.reload(t, far.ID).NotifyLeaseUntil)
	assert.False(t, e.reload(t, closed.ID).NotificationSent)
}

func TestDispatchRespectsLiveLease(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := e.createTask(t, "Busy", at(5*time.Minute))

	claimed, err := e.tasks.ClaimNotification(ctx, task.ID, "rival", baseTime, baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	ack, err := e.dispatcher.Dispatch(ctx, service.DispatchRequest{TaskID: task.ID, ChatID: chatID})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSkipped, ack.Outcome)
	e.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)

	// An expired lease is taken over.
	e.clock.Advance(2 * time.Minute)
	e.sender.On("Send", mock.Anything, chatID, mock.Anything).Return(nil)

	ack, err = e.dispatcher.Dispatch(ctx, service.DispatchRequest{TaskID: task.ID, ChatID: chatID})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSent, ack.Outcome)
}

func TestDispatchRenewsLeaseBetweenAttempts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := e.createTask(t, "Slow network", at(-time.Minute))

	// Each attempt eats most of the one-minute lease.
	e.sender.On("Send", mock.Anything, chatID, mock.Anything).
		Run(func(mock.Arguments) { e.clock.Advance(50 * time.Second) }).
		Return(errors.New("timeout")).Once()
	e.sender.On("Send", mock.Anything, chatID, mock.Anything).
		Run(func(mock.Arguments) {
			e.clock.Advance(50 * time.Second)
			now := e.clock.Now()
			claimed, err := e.tasks.ClaimNotification(ctx, task.ID, "rival", now, now.Add(time.Minute))
			assert.NoError(t, err)
			assert.False(t, claimed, "renewed lease must still be live")
		}).
		Return(nil).Once()

	ack, err := e.dispatcher.Dispatch(ctx, service.DispatchRequest{TaskID: task.ID, ChatID: chatID})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSent, ack.Outcome)
	assert.Equal(t, 2, ack.Attempts)
	assert.True(t, e.reload(t, task.ID).NotificationSent)
	e.sender.AssertExpectations(t)
}

func TestDispatchStopsWhenLeaseTakenOver(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := e.createTask(t, "Contended", at(-time.Minute))

	e.sender.On("Send", mock.Anything, chatID, mock.Anything).
		Run(func(mock.Arguments) {
			// The attempt outlives the lease and another dispatcher steps in.
			e.clock.Advance(2 * time.Minute)
			now := e.clock.Now()
			claimed, err := e.tasks.ClaimNotification(ctx, task.ID, "rival", now, now.Add(time.Minute))
			assert.NoError(t, err)
			assert.True(t, claimed)
		}).
		Return(errors.New("timeout")).Once()

	ack, err := e.dispatcher.Dispatch(ctx, service.DispatchRequest{TaskID: task.ID, ChatID: chatID})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSkipped, ack.Outcome)
	assert.Equal(t, 1, ack.Attempts)
	e.sender.AssertNumberOfCalls(t, "Send", 1)

	stored := e.reload(t, task.ID)
	assert.False(t, stored.NotificationSent)
	require.NotNil(t, stored.NotifyLeaseToken)
	assert.Equal(t, "rival", *stored.NotifyLeaseToken)
}

func TestDispatchDeadlineMovedWhileSending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	task := e.createTask(t, "Moving target", at(30*time.Minute))

	e.sender.On("Send", mock.Anything, chatID, mock.Anything).
		Run(func(mock.Arguments) {
			_, err := e.taskSvc.UpdateTask(ctx, e.owner.ID, task.ID, service.TaskPatch{Deadline: at(7 * 24 * time.Hour)})
			assert.NoError(t, err)
		}).
		Return(nil).Once()

	ack, err := e.dispatcher.Dispatch(ctx, service.DispatchRequest{TaskID: task.ID, ChatID: chatID})
	require.NoError(t, err)
	assert.Equal(t, service.OutcomeSent, ack.Outcome)

	stored := e.reload(t, task.ID)
	assert.False(t, stored.NotificationSent, "the new deadline still owes a reminder")
	assert.Nil(t, stored.NotifyLeaseUntil)

	// Half an hour before the new deadline the reminder goes out again.
	e.clock.Set(at(7*24*time.Hour - 30*time.Minute).UTC())
	e.sender.On("Send", mock.Anything, chatID, mock.Anything).Return(nil).Once()

	report, err := e.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Sent)
	assert.True(t, e.reload(t, task.ID).NotificationSent)
	e.sender.AssertNumberOfCalls(t, "Send", 2)
}

func TestDispatchAppliesSendTimeout(t *testing.T) {
	e := newEnv(t)
	task := e.createTask(t, "Slow", at(5*time.Minute))

	e.sender.On("Send", mock.Anything, chatID, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok)
		}).
		Return(nil)

	_, err := e.dispatcher.Dispatch(context.Background(), service.DispatchRequest{TaskID: task.ID, ChatID: chatID})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, e.reload(t, task.ID).Status)
}
