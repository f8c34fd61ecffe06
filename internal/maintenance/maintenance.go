// Package maintenance runs a low-frequency background job that logs the
// engine's occupancy and pending-flush depth, independent of the engine's
// own tight sync/drain loops. It exists purely for operational visibility:
// nothing here feeds back into engine behavior.
package maintenance

import (
	"log"

	"github.com/robfig/cron/v3"
)

// Reporter is the subset of Engine maintenance needs to describe its
// current state, kept narrow so this package doesn't import engine
// directly and create a cycle with anything engine might later want from
// maintenance.
type Reporter interface {
	ResidentExtents() int
	PendingFlushes() int
}

// Job runs Reporter.ResidentExtents/PendingFlushes on a cron schedule and
// logs the result.
type Job struct {
	reporter Reporter
	cron     *cron.Cron
}

// New builds a Job. schedule is a standard five-field cron expression
// (e.g. "*/5 * * * *" for every five minutes).
func New(reporter Reporter, schedule string) (*Job, error) {
	c := cron.New()
	j := &Job{reporter: reporter, cron: c}

	_, err := c.AddFunc(schedule, j.report)
	if err != nil {
		return nil, err
	}

	return j, nil
}

// Start begins running the schedule in the background. It returns
// immediately; call Stop to end it.
func (j *Job) Start() {
	j.cron.Start()
}

// Stop ends the schedule, waiting for any in-flight report to finish.
func (j *Job) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Job) report() {
	log.Printf("maintenance: resident_extents=%d pending_flushes=%d",
		j.reporter.ResidentExtents(), j.reporter.PendingFlushes())
}
