package slaclock

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// OverdueFunc receives entries newly flagged overdue by a sweep.
type OverdueFunc func(caseID, obligation, dueAt string)

// StartSweeper runs MarkOverdue on a cron schedule (standard 5-field
// expression) and reports newly overdue entries to onOverdue. Returns a stop
// function.
func (c Clock) StartSweeper(schedule string, onOverdue OverdueFunc) (func(), error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, err
	}
	runner := cron.New(cron.WithParser(parser))
	runner.Schedule(sched, cron.FuncJob(func() {
		entries, err := c.MarkOverdue(context.Background(), time.Now())
		if err != nil {
			log.Printf("sla sweep failed: %v", err)
			return
		}
		for _, e := range entries {
			log.Printf("sla overdue: case=%s obligation=%s due=%s", e.CaseID, e.Obligation, e.DueAt)
			if onOverdue != nil {
				onOverdue(e.CaseID, e.Obligation, e.DueAt)
			}
		}
	}))
	runner.Start()
	log.Printf("SLA sweeper scheduled (cron: %s)", schedule)
	return func() { runner.Stop() }, nil
}
