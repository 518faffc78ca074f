// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a five field cron expression or a descriptor like @hourly
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return sched, nil
}

// NextRun is the next planned time of a static task completed at now
func NextRun(now time.Time, frequencyMinutes int32, schedule string) (time.Time, error) {
	if schedule != "" {
		sched, err := ParseSchedule(schedule)
		if err != nil {
			return time.Time{}, err
		}
		return sched.Next(now), nil
	}
	return now.Add(time.Duration(frequencyMinutes) * time.Minute), nil
}
