package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"delaybot/internal/config"
	kit "delaybot/internal/transport"
	logx "delaybot/pkg/logx"
)

type captureAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (a *captureAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *captureAdapter) Stop(ctx context.Context) error                        { return nil }
func (a *captureAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	a.sent = append(a.sent, text)
	a.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (a *captureAdapter) texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

func writeConfig(t *testing.T, dir string) *config.Manager {
	t.Helper()
	body := `
bots:
  - name: scheduler
    front_end: credential
    token: "1:a"
    owner_user_ids: [42]
    storage: {driver: file, path: ` + filepath.Join(dir, "jobs.db") + `}
  - name: reminder
    front_end: reminder
    token: "2:b"
    storage: {driver: sqlite, path: ` + filepath.Join(dir, "jobs.sqlite") + `}
logging: {level: error, console: false}
scheduler: {retry_base: 10ms, retry_max_delay: 50ms}
`
	path := filepath.Join(dir, "delaybot.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	m := config.NewManager(path, config.Env{})
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func newTestApp(t *testing.T, m *config.Manager, ads map[string]*captureAdapter) *App {
	t.Helper()
	a, err := New(m,
		WithNotifier(nil),
		WithAdapterFactory(func(b config.BotConfig, _ logx.Logger) (kit.Adapter, error) {
			ad := &captureAdapter{}
			ads[b.Name] = ad
			return ad, nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAppRestoresJobsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	m := writeConfig(t, dir)

	ads := map[string]*captureAdapter{}
	a := newTestApp(t, m, ads)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx := context.Background()
	if _, err := a.Bot("reminder").Core().Submit(ctx, "7", []string{"stretch"}, 400*time.Millisecond); err != nil {
		t.Fatalf("Submit reminder: %v", err)
	}
	if _, err := a.Bot("scheduler").Core().Submit(ctx, "42", []string{"/freecredential 9", "/seedetails 9"}, 400*time.Millisecond); err != nil {
		t.Fatalf("Submit credential: %v", err)
	}
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	ads2 := map[string]*captureAdapter{}
	b := newTestApp(t, m, ads2)
	if err := b.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer func() { _ = b.Stop(context.Background(), StopAppStop) }()

	st := b.Status(ctx)
	if !st.OK || len(st.Bots) != 2 {
		t.Fatalf("status = %+v", st)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(ads2["reminder"].texts()) == 1 && len(ads2["scheduler"].texts()) == 3 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := ads2["reminder"].texts(); len(got) != 1 || got[0] != "🔔 Reminder: stretch" {
		t.Fatalf("reminder sent %q", got)
	}
	got := ads2["scheduler"].texts()
	if len(got) != 3 || !strings.Contains(got[0], "Reminder from Scheduler Bot") || got[1] != "/freecredential 9" {
		t.Fatalf("credential sent %q", got)
	}
	if len(ads["reminder"].texts()) != 0 {
		t.Fatalf("first instance delivered before its stop")
	}
}

func TestApplyConfigUpdatesOwners(t *testing.T) {
	dir := t.TempDir()
	m := writeConfig(t, dir)
	a := newTestApp(t, m, map[string]*captureAdapter{})
	defer func() { _ = a.Stop(context.Background(), StopAppStop) }()

	oldCfg := m.Get()
	next := *oldCfg
	next.Bots = append([]config.BotConfig(nil), oldCfg.Bots...)
	next.Bots[0].OwnerUserIDs = []int64{42, 99}
	a.applyConfig(oldCfg, &next)
	if !a.Bot("scheduler").Router().IsOwner(99) {
		t.Fatalf("owner list not applied")
	}
}

func TestParseStopSignal(t *testing.T) {
	t.Parallel()
	if ParseStopSignal("terminated") != StopSIGTERM || ParseStopSignal("interrupt") != StopSIGINT || ParseStopSignal("x") != StopUnknown {
		t.Fatalf("unexpected mapping")
	}
}
