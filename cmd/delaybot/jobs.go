package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"delaybot/internal/app"
	"delaybot/internal/config"
	"delaybot/internal/job"
	logx "delaybot/pkg/logx"
)

func jobsCmd(g *globalFlags) *cobra.Command {
	command := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect stored jobs (run while the bots are stopped)",
	}
	command.AddCommand(jobsListCmd(g), jobsCancelCmd(g))
	return command
}

func jobsListCmd(g *globalFlags) *cobra.Command {
	var (
		bot string
		all bool
	)
	command := &cobra.Command{
		Use:   "list",
		Short: "List pending jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadConfig(g)
			if err != nil {
				return err
			}
			bots, err := selectBots(m.Get(), bot)
			if err != nil {
				return err
			}
			return listJobs(cmd.Context(), cmd.OutOrStdout(), bots, all, time.Now())
		},
	}
	command.Flags().StringVar(&bot, "bot", "", "only this bot (default all)")
	command.Flags().BoolVar(&all, "all", false, "include overdue jobs that have not been delivered yet")
	return command
}

func jobsCancelCmd(g *globalFlags) *cobra.Command {
	var bot string
	command := &cobra.Command{
		Use:   "cancel <job_id>",
		Short: "Remove a stored job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadConfig(g)
			if err != nil {
				return err
			}
			b, ok := m.Get().Bot(bot)
			if !ok {
				return fmt.Errorf("unknown bot %q", bot)
			}
			return cancelJob(cmd.Context(), cmd.OutOrStdout(), b, args[0])
		},
	}
	command.Flags().StringVar(&bot, "bot", "", "bot that owns the job")
	_ = command.MarkFlagRequired("bot")
	return command
}

func selectBots(cfg *config.Config, name string) ([]config.BotConfig, error) {
	if name == "" {
		return cfg.Bots, nil
	}
	b, ok := cfg.Bot(name)
	if !ok {
		return nil, fmt.Errorf("unknown bot %q", name)
	}
	return []config.BotConfig{b}, nil
}

func listJobs(ctx context.Context, w io.Writer, bots []config.BotConfig, all bool, now time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BOT\tID\tDESTINATION\tRUN AT\tDUE\tPAYLOAD")
	total := 0
	for _, b := range bots {
		list, err := readJobs(ctx, b, all, now)
		if err != nil {
			return err
		}
		for _, j := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				b.Name, j.ID, j.Destination,
				j.RunAt.Local().Format(time.DateTime),
				humanize.RelTime(j.RunAt, now, "ago", "from now"),
				strings.Join(j.Payload, " | "),
			)
		}
		total += len(list)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s job(s)\n", humanize.Comma(int64(total)))
	return nil
}

func readJobs(ctx context.Context, b config.BotConfig, all bool, now time.Time) ([]job.Job, error) {
	st, err := app.OpenStore(b, logx.Nop())
	if err != nil {
		return nil, fmt.Errorf("bot %s: %w", b.Name, err)
	}
	defer st.Close()
	if all {
		return st.ListAll(ctx)
	}
	return st.ListPending(ctx, now)
}

func cancelJob(ctx context.Context, w io.Writer, b config.BotConfig, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := app.OpenStore(b, logx.Nop())
	if err != nil {
		return fmt.Errorf("bot %s: %w", b.Name, err)
	}
	defer st.Close()
	_, ok, err := st.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("job not found")
	}
	if err := st.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(w, "cancelled %s on %s\n", id, b.Name)
	return nil
}
