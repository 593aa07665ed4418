package buildpoll_test

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/buildsvc"
	buildmock "github.com/tencentblueking/bkpaas-core/pkg/buildsvc/mock"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	depmock "github.com/tencentblueking/bkpaas-core/pkg/domain/deployment/db/mock"
	"github.com/tencentblueking/bkpaas-core/pkg/pipeline/buildpoll"
)

func quietLogger() *log.Logger {
	return log.New(os.Stderr, "", log.LstdFlags)
}

// quietDB answers the poller's bookkeeping calls without recording.
func quietDB(t *testing.T) *depmock.MockDeploymentDB {
	db := depmock.New(t)
	db.Impl.InterruptRequested = func(ctx context.Context, id string) (bool, error) {
		return false, nil
	}
	db.Impl.TouchPolling = func(ctx context.Context, id string, at time.Time) error {
		return nil
	}
	db.Impl.PollingTouchedAt = func(ctx context.Context, id string) (time.Time, bool, error) {
		return time.Time{}, false, nil
	}
	db.Impl.StartStep = func(ctx context.Context, deploymentID string, phase domain.PhaseType, step string) error {
		return nil
	}
	db.Impl.FinishStep = func(ctx context.Context, deploymentID string, phase domain.PhaseType, step string, status domain.StepStatus) error {
		return nil
	}
	return db
}

func noEvents(builds *buildmock.MockClient) {
	builds.Impl.Events = func(ctx context.Context, buildProcessID string, after int) ([]buildsvc.Event, error) {
		return nil, nil
	}
}

func TestPoller_Wait(t *testing.T) {
	t.Run("polls to a successful terminal state", func(t *testing.T) {
		builds := buildmock.New(t)
		noEvents(builds)
		polls := 0
		builds.Impl.State = func(ctx context.Context, buildProcessID string) (buildsvc.BuildState, error) {
			polls++
			if polls < 3 {
				return buildsvc.BuildState{Status: buildsvc.BuildPending, BuildID: ""}, nil
			}
			return buildsvc.BuildState{
				Status: buildsvc.BuildSuccessful, BuildID: "build-9",
				Image: "registry.invalid/demo:built",
			}, nil
		}

		testee := &buildpoll.Poller{
			Builds: builds, Deployments: quietDB(t), Logger: quietLogger(),
			Tick: time.Millisecond,
		}
		final, err := testee.Wait(context.Background(), "dep-1", "bp-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if final.Status != buildsvc.BuildSuccessful || final.BuildID != "build-9" {
			t.Errorf("unexpected final state: %+v", final)
		}
		if final.Image != "registry.invalid/demo:built" {
			t.Errorf("unexpected image: %s", final.Image)
		}
	})

	t.Run("a failed build is terminal, not an error", func(t *testing.T) {
		builds := buildmock.New(t)
		noEvents(builds)
		builds.Impl.State = func(ctx context.Context, buildProcessID string) (buildsvc.BuildState, error) {
			return buildsvc.BuildState{Status: buildsvc.BuildFailed, Message: "compile error"}, nil
		}

		testee := &buildpoll.Poller{
			Builds: builds, Deployments: quietDB(t), Logger: quietLogger(),
			Tick: time.Millisecond,
		}
		final, err := testee.Wait(context.Background(), "dep-1", "bp-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if final.Status != buildsvc.BuildFailed {
			t.Errorf("unexpected final state: %+v", final)
		}
	})

	t.Run("gives up after consecutive polling errors", func(t *testing.T) {
		builds := buildmock.New(t)
		noEvents(builds)
		polls := 0
		builds.Impl.State = func(ctx context.Context, buildProcessID string) (buildsvc.BuildState, error) {
			polls++
			return buildsvc.BuildState{}, errors.New("gateway timeout")
		}

		testee := &buildpoll.Poller{
			Builds: builds, Deployments: quietDB(t), Logger: quietLogger(),
			Tick: time.Millisecond, MaxConsecutiveErrors: 3,
		}
		_, err := testee.Wait(context.Background(), "dep-1", "bp-1")
		if err == nil {
			t.Fatal("error is expected, but got nil")
		}
		derr, ok := domain.AsError(err)
		if !ok || derr.Code != "BUILD_POLLING_FAILED" {
			t.Errorf("unexpected error: %v", err)
		}
		if polls != 3 {
			t.Errorf("unexpected poll count: %d", polls)
		}
	})

	t.Run("a transient error streak is forgiven by one success", func(t *testing.T) {
		builds := buildmock.New(t)
		noEvents(builds)
		polls := 0
		builds.Impl.State = func(ctx context.Context, buildProcessID string) (buildsvc.BuildState, error) {
			polls++
			switch {
			case polls <= 2:
				return buildsvc.BuildState{}, errors.New("gateway timeout")
			case polls == 3:
				return buildsvc.BuildState{Status: buildsvc.BuildPending}, nil
			case polls <= 5:
				return buildsvc.BuildState{}, errors.New("gateway timeout")
			default:
				return buildsvc.BuildState{Status: buildsvc.BuildSuccessful, BuildID: "b"}, nil
			}
		}

		testee := &buildpoll.Poller{
			Builds: builds, Deployments: quietDB(t), Logger: quietLogger(),
			Tick: time.Millisecond, MaxConsecutiveErrors: 3,
		}
		if _, err := testee.Wait(context.Background(), "dep-1", "bp-1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("interruption breaks the wait", func(t *testing.T) {
		db := quietDB(t)
		db.Impl.InterruptRequested = func(ctx context.Context, id string) (bool, error) {
			return true, nil
		}
		testee := &buildpoll.Poller{
			Builds: buildmock.New(t), Deployments: db, Logger: quietLogger(),
			Tick: time.Millisecond,
		}
		_, err := testee.Wait(context.Background(), "dep-1", "bp-1")
		if !errors.Is(err, domain.ErrDeployInterrupted) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("the overall timeout counts from the first tick", func(t *testing.T) {
		builds := buildmock.New(t)
		noEvents(builds)
		builds.Impl.State = func(ctx context.Context, buildProcessID string) (buildsvc.BuildState, error) {
			return buildsvc.BuildState{Status: buildsvc.BuildPending}, nil
		}

		clock := time.Now()
		testee := &buildpoll.Poller{
			Builds: builds, Deployments: quietDB(t), Logger: quietLogger(),
			Tick: time.Millisecond, OverallTimeout: 10 * time.Minute,
			Now: func() time.Time {
				// each call advances far enough to blow the deadline fast.
				clock = clock.Add(6 * time.Minute)
				return clock
			},
		}
		_, err := testee.Wait(context.Background(), "dep-1", "bp-1")
		derr, ok := domain.AsError(err)
		if !ok || derr.Code != "BUILD_TIMEOUT" || derr.Kind != domain.KindTimeout {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("a stale liveness stamp fails the wait", func(t *testing.T) {
		builds := buildmock.New(t)
		noEvents(builds)
		builds.Impl.State = func(ctx context.Context, buildProcessID string) (buildsvc.BuildState, error) {
			return buildsvc.BuildState{Status: buildsvc.BuildPending}, nil
		}

		db := quietDB(t)
		db.Impl.PollingTouchedAt = func(ctx context.Context, id string) (time.Time, bool, error) {
			return time.Now().Add(-3 * time.Minute), true, nil
		}
		touched := 0
		db.Impl.TouchPolling = func(ctx context.Context, id string, at time.Time) error {
			touched++
			return nil
		}

		testee := &buildpoll.Poller{
			Builds: builds, Deployments: db, Logger: quietLogger(),
			Tick: time.Millisecond,
		}
		_, err := testee.Wait(context.Background(), "dep-1", "bp-1")
		derr, ok := domain.AsError(err)
		if !ok || derr.Code != "BUILD_POLLING_STALE" || derr.Kind != domain.KindTimeout {
			t.Errorf("unexpected error: %v", err)
		}
		if touched != 0 {
			t.Errorf("a dead deployment was touched %d times", touched)
		}
	})

	t.Run("a fresh liveness stamp keeps the wait going", func(t *testing.T) {
		builds := buildmock.New(t)
		noEvents(builds)
		polls := 0
		builds.Impl.State = func(ctx context.Context, buildProcessID string) (buildsvc.BuildState, error) {
			polls++
			if polls < 3 {
				return buildsvc.BuildState{Status: buildsvc.BuildPending}, nil
			}
			return buildsvc.BuildState{Status: buildsvc.BuildSuccessful, BuildID: "b"}, nil
		}

		db := quietDB(t)
		db.Impl.PollingTouchedAt = func(ctx context.Context, id string) (time.Time, bool, error) {
			return time.Now().Add(-time.Second), true, nil
		}

		testee := &buildpoll.Poller{
			Builds: builds, Deployments: db, Logger: quietLogger(),
			Tick: time.Millisecond,
		}
		if _, err := testee.Wait(context.Background(), "dep-1", "bp-1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("renew failures break the wait", func(t *testing.T) {
		lost := errors.New("lock was taken over")
		testee := &buildpoll.Poller{
			Builds: buildmock.New(t), Deployments: quietDB(t), Logger: quietLogger(),
			Tick:      time.Millisecond,
			RenewLock: func(context.Context) error { return lost },
		}
		_, err := testee.Wait(context.Background(), "dep-1", "bp-1")
		if !errors.Is(err, lost) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("build output events move the build steps", func(t *testing.T) {
		builds := buildmock.New(t)
		polls := 0
		builds.Impl.State = func(ctx context.Context, buildProcessID string) (buildsvc.BuildState, error) {
			polls++
			if polls < 3 {
				return buildsvc.BuildState{Status: buildsvc.BuildPending}, nil
			}
			return buildsvc.BuildState{Status: buildsvc.BuildSuccessful, BuildID: "b"}, nil
		}
		builds.Impl.Events = func(ctx context.Context, buildProcessID string, after int) ([]buildsvc.Event, error) {
			all := []buildsvc.Event{
				{ID: 1, Message: "Preparing to build demo ..."},
				{ID: 2, Message: "Starting builder ..."},
				{ID: 3, Message: "Build success"},
			}
			out := []buildsvc.Event{}
			for _, ev := range all {
				if ev.ID > after {
					out = append(out, ev)
				}
			}
			return out, nil
		}

		db := quietDB(t)
		started := []string{}
		finished := map[string]domain.StepStatus{}
		db.Impl.StartStep = func(ctx context.Context, deploymentID string, phase domain.PhaseType, step string) error {
			if phase != domain.PhaseBuild {
				t.Errorf("unexpected phase: %s", phase)
			}
			started = append(started, step)
			return nil
		}
		db.Impl.FinishStep = func(ctx context.Context, deploymentID string, phase domain.PhaseType, step string, status domain.StepStatus) error {
			finished[step] = status
			return nil
		}

		testee := &buildpoll.Poller{
			Builds: builds, Deployments: db, Logger: quietLogger(),
			Tick: time.Millisecond,
		}
		if _, err := testee.Wait(context.Background(), "dep-1", "bp-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(started) != 2 || started[0] != "invoke build" || started[1] != "build image" {
			t.Errorf("unexpected step starts: %v", started)
		}
		if finished["invoke build"] != domain.StepSuccessful || finished["build image"] != domain.StepSuccessful {
			t.Errorf("unexpected step finishes: %v", finished)
		}
	})
}
