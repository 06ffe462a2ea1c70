package frontend

import (
	"context"
	"errors"

	"delaybot/internal/job"
	"delaybot/internal/scheduler"
	"delaybot/internal/transport/telegram/router"
)

// jobsCommand lists the pending jobs that deliver to the caller's chat.
func jobsCommand(deps Deps, access router.Access) router.Command {
	return router.Command{
		Name:        "jobs",
		Description: "list pending reminders in this chat",
		Usage:       "/jobs",
		Access:      access,
		Handle: func(ctx context.Context, req *router.Request) error {
			all, err := deps.Scheduler.PendingAll(ctx)
			if err != nil {
				_ = req.Reply(ctx, "Sorry, I could not read the pending jobs right now.")
				return err
			}
			dest := destinationOf(req)
			mine := make([]job.Job, 0, len(all))
			for _, j := range all {
				if j.Destination == dest {
					mine = append(mine, j)
				}
			}
			return req.Reply(ctx, jobList(mine, deps.now()))
		},
	}
}

// cancelCommand removes a pending job. Only jobs of the caller's chat are visible.
func cancelCommand(deps Deps, access router.Access) router.Command {
	return router.Command{
		Name:        "cancel",
		Description: "cancel a pending reminder",
		Usage:       "/cancel <job_id>",
		Access:      access,
		Handle: func(ctx context.Context, req *router.Request) error {
			if len(req.Args) != 1 {
				return req.Reply(ctx, "Usage: /cancel <job_id>")
			}
			id := req.Args[0]
			j, ok, err := deps.Scheduler.Get(ctx, id)
			if err != nil {
				_ = req.Reply(ctx, "Sorry, something went wrong. Please try again.")
				return err
			}
			if !ok || j.Destination != destinationOf(req) {
				return req.Reply(ctx, "No pending job with that id.")
			}
			found, err := deps.Scheduler.Cancel(ctx, id)
			if err != nil {
				var se *scheduler.StorageError
				if errors.As(err, &se) {
					_ = req.Reply(ctx, "Sorry, the job could not be cancelled. Please try again.")
				}
				return err
			}
			if !found {
				return req.Reply(ctx, "No pending job with that id.")
			}
			req.Logger.Info("job cancelled by user")
			return req.Reply(ctx, "🗑 Cancelled "+id+".")
		},
	}
}
