// Package buildpoll drives an accepted build request to its terminal
// state by polling the build service.
package buildpoll

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/buildsvc"
	"github.com/tencentblueking/bkpaas-core/pkg/domain"
	depdb "github.com/tencentblueking/bkpaas-core/pkg/domain/deployment/db"
	"github.com/tencentblueking/bkpaas-core/pkg/loop"
)

const (
	DefaultMaxConsecutiveErrors = 10
	DefaultOverallTimeout       = 900 * time.Second
	DefaultTick                 = 2 * time.Second
	DefaultStaleThreshold       = 120 * time.Second
)

// stepPattern moves a build-phase step when an output event matches.
//
// The build service emits free-form output lines; these are the known
// markers of the builder it runs.
type stepPattern struct {
	step  string
	start *regexp.Regexp
	done  *regexp.Regexp
}

var stepPatterns = []stepPattern{
	{
		step:  "invoke build",
		start: regexp.MustCompile(`(?i)preparing to build`),
		done:  regexp.MustCompile(`(?i)starting builder`),
	},
	{
		step:  "build image",
		start: regexp.MustCompile(`(?i)starting builder`),
		done:  regexp.MustCompile(`(?i)build success`),
	},
}

// Poller polls one build to completion.
//
// The overall timeout is measured from the first tick, so time the
// build spends queued inside the build service counts against it.
type Poller struct {
	Builds      buildsvc.Client
	Deployments depdb.Interface
	Logger      *log.Logger

	MaxConsecutiveErrors int
	OverallTimeout       time.Duration
	Tick                 time.Duration

	// a liveness stamp older than this fails the poll; a crashed
	// poller must not leave the deployment running forever.
	StaleThreshold time.Duration

	// called once per tick to keep the coordinator lock alive.
	RenewLock func(context.Context) error

	// test seam.
	Now func() time.Time
}

type pollState struct {
	last      buildsvc.BuildState
	errStreak int
	cursor    int
	started   map[string]bool
	finished  map[string]bool
}

// Wait blocks until the build reaches a terminal status, the overall
// timeout expires, the deployment is interrupted, or too many
// consecutive polling errors accumulate.
//
// domain.ErrDeployInterrupted reports cooperative interruption; the
// build itself keeps running, its result is simply ignored.
func (p *Poller) Wait(
	ctx context.Context, deploymentID string, buildProcessID string,
) (buildsvc.BuildState, error) {
	maxErrs := p.MaxConsecutiveErrors
	if maxErrs <= 0 {
		maxErrs = DefaultMaxConsecutiveErrors
	}
	timeout := p.OverallTimeout
	if timeout <= 0 {
		timeout = DefaultOverallTimeout
	}
	tick := p.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	stale := p.StaleThreshold
	if stale <= 0 {
		stale = DefaultStaleThreshold
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	deadline := now().Add(timeout)

	init := pollState{
		started:  map[string]bool{},
		finished: map[string]bool{},
	}
	final, err := loop.Start(ctx, init, func(ctx context.Context, s pollState) (pollState, loop.Next) {
		if now().After(deadline) {
			return s, loop.Break(&domain.Error{
				Kind: domain.KindTimeout, Code: "BUILD_TIMEOUT",
				Message: fmt.Sprintf("build did not finish within %s", timeout),
			})
		}

		interrupted, err := p.Deployments.InterruptRequested(ctx, deploymentID)
		if err == nil && interrupted {
			return s, loop.Break(domain.ErrDeployInterrupted)
		}

		if p.RenewLock != nil {
			if err := p.RenewLock(ctx); err != nil {
				return s, loop.Break(err)
			}
		}

		state, err := p.Builds.State(ctx, buildProcessID)
		if err != nil {
			s.errStreak++
			if s.errStreak >= maxErrs {
				return s, loop.Break(domain.NewExternal(
					"BUILD_POLLING_FAILED",
					fmt.Sprintf("polling failed %d times in a row", s.errStreak),
					err,
				))
			}
			p.Logger.Printf("poll build %s: %v (%d/%d)", buildProcessID, err, s.errStreak, maxErrs)
			return s, loop.Continue(tick)
		}
		s.errStreak = 0
		s.last = state

		s = p.foldEvents(ctx, deploymentID, buildProcessID, s)

		if state.Status.Terminal() {
			return s, loop.Break(nil)
		}

		touched, ok, err := p.Deployments.PollingTouchedAt(ctx, deploymentID)
		if err != nil {
			p.Logger.Printf("read polling status of deployment %s: %v", deploymentID, err)
		}
		if err == nil && ok && now().Sub(touched) > stale {
			return s, loop.Break(&domain.Error{
				Kind: domain.KindTimeout, Code: "BUILD_POLLING_STALE",
				Message: fmt.Sprintf("no poll tick for %s, poller presumed dead", now().Sub(touched)),
			})
		}
		if err := p.Deployments.TouchPolling(ctx, deploymentID, now()); err != nil {
			p.Logger.Printf("touch polling status of deployment %s: %v", deploymentID, err)
		}
		return s, loop.Continue(tick)
	})
	return final.last, err
}

// foldEvents maps new build output onto build-phase step statuses.
// Event errors never fail the poll; output is progress decoration.
func (p *Poller) foldEvents(
	ctx context.Context, deploymentID string, buildProcessID string, s pollState,
) pollState {
	events, err := p.Builds.Events(ctx, buildProcessID, s.cursor)
	if err != nil {
		p.Logger.Printf("fetch build events of %s: %v", buildProcessID, err)
		return s
	}
	for _, ev := range events {
		if ev.ID > s.cursor {
			s.cursor = ev.ID
		}
		for _, pat := range stepPatterns {
			if !s.started[pat.step] && pat.start.MatchString(ev.Message) {
				s.started[pat.step] = true
				if err := p.Deployments.StartStep(ctx, deploymentID, domain.PhaseBuild, pat.step); err != nil {
					p.Logger.Printf("start step '%s': %v", pat.step, err)
				}
			}
			if s.started[pat.step] && !s.finished[pat.step] && pat.done.MatchString(ev.Message) {
				s.finished[pat.step] = true
				if err := p.Deployments.FinishStep(
					ctx, deploymentID, domain.PhaseBuild, pat.step, domain.StepSuccessful,
				); err != nil {
					p.Logger.Printf("finish step '%s': %v", pat.step, err)
				}
			}
		}
	}
	return s
}
