/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package engine

import (
	"context"
	"time"

	"github.com/carverauto/clusterwatch/pkg/models"
	"github.com/carverauto/clusterwatch/pkg/poller"
	"go.uber.org/zap"
)

const (
	jobsKey    = "jobs"
	sourceJobs = "jobs"
)

// JobLogPollerKey returns the poller key used for a job's log.
func JobLogPollerKey(jobID string) string {
	return "joblog:" + jobID
}

// WatchJobs polls the job list on behalf of view and, for every job that is
// not yet terminal, its process log.
func (e *Engine) WatchJobs(view string, interval time.Duration) error {
	if view == "" {
		return ErrEmptyView
	}

	interval = e.intervalOr(interval, e.cfg.Poll.JobInterval)

	return e.group(view).Start(jobsKey, interval, e.refreshJobs, nil)
}

func (e *Engine) refreshJobs(ctx context.Context) error {
	list, err := e.client.ListJobs(ctx)

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		w := &Warning{Source: sourceJobs, Message: err.Error()}
		e.jobsWarning.Store(w)
		e.publishWarning(w)

		return err
	}

	e.jobsWarning.Store(nil)

	for _, s := range list {
		e.jobs.ObserveList(s)
	}

	for _, id := range e.jobs.Active() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := e.observeJobLog(ctx, id); err != nil {
			e.logger.Warn("Error fetching process log", zap.String("job", id), zap.Error(err))
		}
	}

	return nil
}

// WatchJobLog polls one job's process log on behalf of view. The poller
// ends itself once the job is terminal.
func (e *Engine) WatchJobLog(view, jobID string, interval time.Duration) error {
	if view == "" {
		return ErrEmptyView
	}

	if jobID == "" {
		return ErrEmptyJobID
	}

	e.jobs.Track(jobID, "", models.JobStatusUnknown)

	interval = e.intervalOr(interval, e.cfg.Poll.JobLogInterval)

	return e.group(view).Start(JobLogPollerKey(jobID), interval, func(ctx context.Context) error {
		if e.jobTerminal(jobID) {
			return poller.ErrDone
		}

		if err := e.observeJobLog(ctx, jobID); err != nil {
			return err
		}

		if e.jobTerminal(jobID) {
			return poller.ErrDone
		}

		return nil
	}, nil)
}

func (e *Engine) observeJobLog(ctx context.Context, id string) error {
	log, err := e.client.ProcessLog(ctx, id)

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		return err
	}

	e.jobs.ObserveLog(id, log)

	return nil
}

func (e *Engine) jobTerminal(id string) bool {
	st, ok := e.jobs.Status(id)

	return ok && st.Terminal()
}

func (e *Engine) onJobTransition(tr models.JobTransition) {
	e.recorder.JobTransition(tr.To.String())

	e.logger.Info("Job status changed",
		zap.String("job", tr.JobID),
		zap.Stringer("from", tr.From),
		zap.Stringer("to", tr.To),
		zap.String("source", tr.Source))

	e.hub.Publish(Update{Kind: UpdateJobStatus, At: tr.At, Job: &tr})
}

// Jobs returns the reconciled status of every known job.
func (e *Engine) Jobs() []models.JobState {
	return e.jobs.Jobs()
}

// Job returns the reconciled status of one job.
func (e *Engine) Job(id string) (models.JobState, bool) {
	return e.jobs.Job(id)
}

// JobsWarning returns the warning from the last failed job list poll, if
// the most recent poll failed.
func (e *Engine) JobsWarning() *Warning {
	return e.jobsWarning.Load()
}
