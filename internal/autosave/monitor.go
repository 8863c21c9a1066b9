/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package autosave

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	plog "pagebuilder/internal/log"
)

// Prober reports whether the save target is reachable.
type Prober func(ctx context.Context) error

// Connectivity receives probe results.
type Connectivity interface {
	SetOnline(bool)
}

// Monitor polls a Prober on a cron schedule and forwards the result.
type Monitor struct {
	cron    *cron.Cron
	target  Connectivity
	probe   Prober
	timeout time.Duration
	log     *slog.Logger

	mu   sync.Mutex
	last *bool
}

// NewMonitor schedules probe every interval. Call Start to begin polling.
func NewMonitor(target Connectivity, probe Prober, every time.Duration) (*Monitor, error) {
	if every <= 0 {
		every = 15 * time.Second
	}
	m := &Monitor{
		cron:    cron.New(),
		target:  target,
		probe:   probe,
		timeout: every / 2,
		log:     plog.WithComponent("autosave.monitor"),
	}
	if _, err := m.cron.AddFunc(fmt.Sprintf("@every %s", every), func() { m.Check(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule probe: %w", err)
	}
	return m, nil
}

func (m *Monitor) Start() { m.cron.Start() }

// Stop halts polling and waits for a running probe to finish.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
}

// Check runs one probe and reports transitions to the target.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	err := m.probe(ctx)
	online := err == nil

	m.mu.Lock()
	changed := m.last == nil || *m.last != online
	m.last = &online
	m.mu.Unlock()

	if changed {
		if online {
			m.log.Info("save target reachable")
		} else {
			m.log.Warn("save target unreachable", slog.String("err", err.Error()))
		}
		m.target.SetOnline(online)
	}
	return online
}
