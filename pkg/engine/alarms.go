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

	"github.com/carverauto/clusterwatch/pkg/alerts"
	"github.com/carverauto/clusterwatch/pkg/models"
	"go.uber.org/zap"
)

const (
	alarmsKey    = "alarms"
	sourceAlarms = "alarms"
)

// WatchAlarms polls the recent-alarm feed on behalf of view. Ticks are
// skipped while the full alarm list is open.
func (e *Engine) WatchAlarms(view string, interval time.Duration) error {
	if view == "" {
		return ErrEmptyView
	}

	interval = e.intervalOr(interval, e.cfg.Poll.AlarmInterval)

	return e.group(view).Start(alarmsKey, interval, e.refreshAlarms, e.alarmListOpen.Load)
}

func (e *Engine) refreshAlarms(ctx context.Context) error {
	events, err := e.client.RecentAlarms(ctx, e.cfg.Alarms.Limit)

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		w := &Warning{Source: sourceAlarms, Message: err.Error()}
		e.alarmWarning.Store(w)
		e.publishWarning(w)

		return err
	}

	e.alarmWarning.Store(nil)

	fresh := e.dedup.FilterNew(events, e.alarmCheck)
	e.recorder.AlarmsSurfaced(len(fresh))

	for i := range fresh {
		ev := fresh[i]

		e.logger.Info("Surfacing alarm",
			zap.String("id", ev.ID),
			zap.String("severity", string(ev.Severity)))

		e.hub.Publish(Update{Kind: UpdateAlarm, At: e.now(), Alarm: &ev})
		e.forwardAlarm(ctx, ev)
	}

	return nil
}

func (e *Engine) forwardAlarm(ctx context.Context, ev models.AlarmEvent) {
	if e.dispatcher.Len() == 0 {
		return
	}

	// Delivery failures are logged by the dispatcher; the alarm stays surfaced.
	_ = e.dispatcher.Send(ctx, alerts.FromAlarm(ev, ""))
}

// OpenAlarmList suppresses the alarm poller and forgets surfaced alarms;
// the user is now looking at all of them.
func (e *Engine) OpenAlarmList() {
	e.alarmListOpen.Store(true)
	e.dedup.Reset()
	e.logger.Debug("Alarm list opened")
}

// CloseAlarmList resumes the alarm poller.
func (e *Engine) CloseAlarmList() {
	e.alarmListOpen.Store(false)
	e.logger.Debug("Alarm list closed")
}

// AlarmListOpen reports whether alarm polling is suppressed.
func (e *Engine) AlarmListOpen() bool {
	return e.alarmListOpen.Load()
}

// ResetAlarms forgets every surfaced alarm.
func (e *Engine) ResetAlarms() {
	e.dedup.Reset()
	e.logger.Info("Alarm deduplication reset")
}

// AlarmWarning returns the warning from the last failed alarm poll, if the
// most recent poll failed.
func (e *Engine) AlarmWarning() *Warning {
	return e.alarmWarning.Load()
}
