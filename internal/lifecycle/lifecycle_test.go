package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/delivery-coordinator/internal/apperr"
	"github.com/example/delivery-coordinator/internal/models"
	"github.com/example/delivery-coordinator/internal/store"
)

type recordingAnnouncer struct {
	mu          sync.Mutex
	created     []models.Job
	transitions []models.Job
}

func (a *recordingAnnouncer) JobCreated(ctx context.Context, job models.Job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, job)
}

func (a *recordingAnnouncer) JobTransitioned(ctx context.Context, job models.Job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transitions = append(a.transitions, job)
}

func newTestService(t *testing.T) (*Service, *recordingAnnouncer) {
	t.Helper()
	ann := &recordingAnnouncer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store.NewMemoryStore(), ann, logger), ann
}

func createJob(t *testing.T, s *Service) models.Job {
	t.Helper()
	job, err := s.Create(context.Background(), CreateParams{
		RequesterID: "req-1",
		Category:    models.CategoryDocuments,
		Pickup:      models.Coord{Lat: -23.5505, Lng: -46.6333},
		Dropoff:     models.Coord{Lat: -23.5616, Lng: -46.6562},
		Price:       15,
	})
	require.NoError(t, err)
	return job
}

var (
	courier  = Actor{ID: "cou-1", Role: RoleCourier}
	courier2 = Actor{ID: "cou-2", Role: RoleCourier}
	reqster  = Actor{ID: "req-1", Role: RoleRequester}
)

func TestCreateRejectsInvalidCoordinates(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Create(context.Background(), CreateParams{
		RequesterID: "req-1",
		Category:    models.CategoryFood,
		Pickup:      models.Coord{Lat: 200, Lng: 0},
		Dropoff:     models.Coord{Lat: 0, Lng: 0},
	})
	require.ErrorIs(t, err, apperr.ErrInvalidCoordinate)
}

func TestHappyPath(t *testing.T) {
	s, ann := newTestService(t)
	ctx := context.Background()
	job := createJob(t, s)
	require.Equal(t, models.StatusAvailable, job.Status)
	require.Empty(t, job.CourierID)
	require.Nil(t, job.DistanceKm)

	job, err := s.Accept(ctx, job.ID, courier)
	require.NoError(t, err)
	require.Equal(t, models.StatusAccepted, job.Status)
	require.Equal(t, courier.ID, job.CourierID)
	require.NotNil(t, job.AcceptedAt)
	require.NotNil(t, job.DistanceKm)
	require.NotNil(t, job.EtaMinutes)
	require.Greater(t, *job.DistanceKm, 0.0)

	job, err = s.Collect(ctx, job.ID, courier)
	require.NoError(t, err)
	require.Equal(t, models.StatusCollected, job.Status)
	require.NotNil(t, job.CollectedAt)

	job, err = s.Start(ctx, job.ID, courier)
	require.NoError(t, err)
	require.Equal(t, models.StatusInProgress, job.Status)

	job, err = s.Complete(ctx, job.ID, courier)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)

	require.Len(t, ann.created, 1)
	require.Len(t, ann.transitions, 4)
}

func TestSkippedStateRejected(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	job := createJob(t, s)
	_, err := s.Accept(ctx, job.ID, courier)
	require.NoError(t, err)

	// collected -> in_progress is required before completing
	_, err = s.Complete(ctx, job.ID, courier)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	_, err = s.Start(ctx, job.ID, courier)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestAcceptLoserGetsAlreadyTaken(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	job := createJob(t, s)

	_, err := s.Accept(ctx, job.ID, courier)
	require.NoError(t, err)

	_, err = s.Accept(ctx, job.ID, courier2)
	require.ErrorIs(t, err, apperr.ErrAlreadyTaken)
}

func TestConcurrentAcceptExactlyOneWinner(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	job := createJob(t, s)

	const couriers = 16
	var wg sync.WaitGroup
	wins := make(chan string, couriers)
	losses := make(chan error, couriers)
	for i := 0; i < couriers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			actor := Actor{ID: string(rune('A' + n)), Role: RoleCourier}
			got, err := s.Accept(ctx, job.ID, actor)
			if err != nil {
				losses <- err
				return
			}
			wins <- got.CourierID
		}(i)
	}
	wg.Wait()
	close(wins)
	close(losses)

	require.Len(t, wins, 1)
	winner := <-wins
	for err := range losses {
		require.ErrorIs(t, err, apperr.ErrAlreadyTaken)
	}

	final, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusAccepted, final.Status)
	require.Equal(t, winner, final.CourierID)
}

func TestTransitionReplayIsIdempotent(t *testing.T) {
	s, ann := newTestService(t)
	ctx := context.Background()
	job := createJob(t, s)

	first, err := s.Accept(ctx, job.ID, courier)
	require.NoError(t, err)
	second, err := s.Accept(ctx, job.ID, courier)
	require.NoError(t, err)
	require.Equal(t, first.AcceptedAt, second.AcceptedAt)

	_, err = s.Collect(ctx, job.ID, courier)
	require.NoError(t, err)
	replayed, err := s.Collect(ctx, job.ID, courier)
	require.NoError(t, err)
	require.Equal(t, models.StatusCollected, replayed.Status)

	// replays do not announce again
	require.Len(t, ann.transitions, 2)
}

func TestRequesterCannotDriveCourierTransitions(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	job := createJob(t, s)

	_, err := s.Accept(ctx, job.ID, reqster)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = s.Accept(ctx, job.ID, courier)
	require.NoError(t, err)

	_, err = s.Collect(ctx, job.ID, reqster)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	// another courier cannot drive someone else's job either
	_, err = s.Collect(ctx, job.ID, courier2)
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCancelRules(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	t.Run("requester cancels available job", func(t *testing.T) {
		job := createJob(t, s)
		got, err := s.Cancel(ctx, job.ID, reqster)
		require.NoError(t, err)
		require.Equal(t, models.StatusCancelled, got.Status)
		require.NotNil(t, got.CancelledAt)
	})

	t.Run("assigned courier cancels", func(t *testing.T) {
		job := createJob(t, s)
		_, err := s.Accept(ctx, job.ID, courier)
		require.NoError(t, err)
		got, err := s.Cancel(ctx, job.ID, courier)
		require.NoError(t, err)
		require.Equal(t, models.StatusCancelled, got.Status)
	})

	t.Run("unassigned courier cannot cancel", func(t *testing.T) {
		job := createJob(t, s)
		_, err := s.Accept(ctx, job.ID, courier)
		require.NoError(t, err)
		_, err = s.Cancel(ctx, job.ID, courier2)
		require.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("terminal jobs cannot be cancelled", func(t *testing.T) {
		job := createJob(t, s)
		_, err := s.Accept(ctx, job.ID, courier)
		require.NoError(t, err)
		_, err = s.Collect(ctx, job.ID, courier)
		require.NoError(t, err)
		_, err = s.Start(ctx, job.ID, courier)
		require.NoError(t, err)
		_, err = s.Complete(ctx, job.ID, courier)
		require.NoError(t, err)

		_, err = s.Cancel(ctx, job.ID, reqster)
		require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	})
}

func TestCommittedStatusOrderIsMonotonic(t *testing.T) {
	s, ann := newTestService(t)
	ctx := context.Background()
	job := createJob(t, s)
	for _, step := range []func(context.Context, string, Actor) (models.Job, error){s.Accept, s.Collect, s.Start, s.Complete} {
		_, err := step(ctx, job.ID, courier)
		require.NoError(t, err)
	}

	prev := models.StatusAvailable
	for _, committed := range ann.transitions {
		require.True(t, prev.Before(committed.Status),
			"status went backwards: %s -> %s", prev, committed.Status)
		prev = committed.Status
	}
	require.True(t, prev.Terminal())
}

func TestCompletedJobAcceptsNothing(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	job := createJob(t, s)
	for _, step := range []func(context.Context, string, Actor) (models.Job, error){s.Accept, s.Collect, s.Start, s.Complete} {
		_, err := step(ctx, job.ID, courier)
		require.NoError(t, err)
	}
	_, err := s.Accept(ctx, job.ID, courier2)
	require.ErrorIs(t, err, apperr.ErrAlreadyTaken)
	_, err = s.Collect(ctx, job.ID, courier)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestGetUnknownJob(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
