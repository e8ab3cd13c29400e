package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfirmationFlow(repo *fakeRepo, notifier *fakeNotifier) *ConfirmationFlow {
	return NewConfirmationFlow(repo, notifier, nil, 24*time.Hour, "https://booking.example.com/", nil).
		WithClock(func() time.Time { return testNow }, nil)
}

func TestSendDueConfirmations(t *testing.T) {
	repo := newFakeRepo()
	user := repo.addUser(User{Name: "Dana", Email: "dana@example.com"})

	due := repo.addAppointment(Appointment{
		UserID:    user.ID,
		Title:     "Consultation",
		StartTime: testNow.Add(24*time.Hour + 10*time.Minute),
		EndTime:   testNow.Add(24*time.Hour + 40*time.Minute),
	})
	// Outside the one hour sweep window.
	repo.addAppointment(Appointment{
		UserID:    user.ID,
		StartTime: testNow.Add(30 * time.Hour),
		EndTime:   testNow.Add(30*time.Hour + 30*time.Minute),
	})

	notifier := &fakeNotifier{}
	flow := newTestConfirmationFlow(repo, notifier)

	result, err := flow.SendDueConfirmations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Sent)

	stored, err := repo.GetAppointmentByID(context.Background(), due.ID)
	require.NoError(t, err)
	assert.True(t, stored.ConfirmationSent)
	require.NotNil(t, stored.ConfirmationToken)
	assert.Len(t, *stored.ConfirmationToken, 64) // 32 random bytes, hex encoded

	require.Len(t, notifier.confirmations, 1)
	assert.Equal(t, "https://booking.example.com/confirm-attendance/"+*stored.ConfirmationToken, notifier.confirmations[0])

	// The next sweep skips it: the sent flag is already set.
	result, err = flow.SendDueConfirmations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
}

func TestConfirmByToken(t *testing.T) {
	repo := newFakeRepo()
	user := repo.addUser(User{Email: "dana@example.com"})
	token := "a1b2c3"
	appt := repo.addAppointment(Appointment{
		UserID:            user.ID,
		StartTime:         testNow.Add(24 * time.Hour),
		EndTime:           testNow.Add(24*time.Hour + 30*time.Minute),
		ConfirmationSent:  true,
		ConfirmationToken: &token,
	})

	flow := newTestConfirmationFlow(repo, &fakeNotifier{})

	res, err := flow.Confirm(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, res.AlreadyConfirmed)
	assert.True(t, res.Appointment.AttendanceConfirmed)

	stored, err := repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.True(t, stored.AttendanceConfirmed)
}

func TestConfirmIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	user := repo.addUser(User{Email: "dana@example.com"})
	token := "a1b2c3"
	repo.addAppointment(Appointment{
		UserID:            user.ID,
		StartTime:         testNow.Add(24 * time.Hour),
		EndTime:           testNow.Add(24*time.Hour + 30*time.Minute),
		ConfirmationSent:  true,
		ConfirmationToken: &token,
	})

	flow := newTestConfirmationFlow(repo, &fakeNotifier{})

	_, err := flow.Confirm(context.Background(), token)
	require.NoError(t, err)

	// The token stays valid; a second click reports the prior confirmation.
	res, err := flow.Confirm(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, res.AlreadyConfirmed)
}

func TestConfirmUnknownToken(t *testing.T) {
	repo := newFakeRepo()
	flow := newTestConfirmationFlow(repo, &fakeNotifier{})

	_, err := flow.Confirm(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	_, err = flow.Confirm(context.Background(), "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestConfirmRejectsCancelledAppointment(t *testing.T) {
	repo := newFakeRepo()
	user := repo.addUser(User{Email: "dana@example.com"})
	token := "a1b2c3"
	repo.addAppointment(Appointment{
		UserID:            user.ID,
		StartTime:         testNow.Add(24 * time.Hour),
		EndTime:           testNow.Add(24*time.Hour + 30*time.Minute),
		Status:            StatusCancelled,
		ConfirmationSent:  true,
		ConfirmationToken: &token,
	})

	flow := newTestConfirmationFlow(repo, &fakeNotifier{})

	_, err := flow.Confirm(context.Background(), token)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestConfirmationTokensAreUnique(t *testing.T) {
	a, err := newConfirmationToken()
	require.NoError(t, err)
	b, err := newConfirmationToken()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
