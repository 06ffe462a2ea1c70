package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"delaybot/internal/app"
	"delaybot/internal/config"
	"delaybot/internal/job"
	logx "delaybot/pkg/logx"
)

func seedStore(t *testing.T, b config.BotConfig, jobs ...job.Job) {
	t.Helper()
	st, err := app.OpenStore(b, logx.Nop())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Close()
	for _, j := range jobs {
		if err := st.Insert(context.Background(), j); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
}

func TestListAndCancelJobs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	b := config.BotConfig{
		Name:    "reminder",
		Storage: config.StorageConfig{Driver: "sqlite", Path: filepath.Join(dir, "jobs.db"), Namespace: "reminder"},
	}
	now := time.Now().UTC()
	seedStore(t, b,
		job.Job{ID: "future", Destination: "7", Payload: []string{"water plants"}, RunAt: now.Add(time.Hour), CreatedAt: now},
		job.Job{ID: "overdue", Destination: "7", Payload: []string{"call back"}, RunAt: now.Add(-time.Minute), CreatedAt: now},
	)

	var out bytes.Buffer
	if err := listJobs(context.Background(), &out, []config.BotConfig{b}, false, now); err != nil {
		t.Fatalf("list: %v", err)
	}
	if s := out.String(); !strings.Contains(s, "future") || strings.Contains(s, "overdue") || !strings.Contains(s, "1 job(s)") {
		t.Fatalf("pending list:\n%s", s)
	}

	out.Reset()
	if err := listJobs(context.Background(), &out, []config.BotConfig{b}, true, now); err != nil {
		t.Fatalf("list --all: %v", err)
	}
	if s := out.String(); !strings.Contains(s, "overdue") || !strings.Contains(s, "2 job(s)") {
		t.Fatalf("full list:\n%s", s)
	}

	out.Reset()
	if err := cancelJob(context.Background(), &out, b, "overdue"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := cancelJob(context.Background(), &out, b, "overdue"); err == nil {
		t.Fatalf("second cancel should report not found")
	}
}

func TestSelectBots(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Bots: []config.BotConfig{{Name: "a"}, {Name: "b"}}}
	if got, _ := selectBots(cfg, ""); len(got) != 2 {
		t.Fatalf("all bots: %d", len(got))
	}
	if got, _ := selectBots(cfg, "b"); len(got) != 1 || got[0].Name != "b" {
		t.Fatalf("one bot: %+v", got)
	}
	if _, err := selectBots(cfg, "c"); err == nil {
		t.Fatalf("expected unknown bot error")
	}
}
