package router

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	kit "delaybot/internal/transport"
	logx "delaybot/pkg/logx"
)

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sent
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                        { return nil }
func (a *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	a.sent = append(a.sent, sent{to: to, text: text})
	a.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (a *fakeAdapter) texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.sent))
	for _, s := range a.sent {
		out = append(out, s.text)
	}
	return out
}

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{in: "/set 10 hello", want: []string{"/set", "10", "hello"}},
		{in: `/set 10m "call mom"`, want: []string{"/set", "10m", "call mom"}},
		{in: "/set 5 don't forget", want: []string{"/set", "5", "don't", "forget"}},
		{in: `/x a\ b`, want: []string{"/x", "a b"}},
		{in: "  ", want: nil},
	}
	for _, tt := range tests {
		if got := tokenizeCommandLine(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("tokenizeCommandLine(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	word, args, rest, ok := parseCommand("/Schedule@delay_bot 300 /freecredential 42")
	if !ok || word != "schedule" {
		t.Fatalf("word = %q ok = %v", word, ok)
	}
	if !reflect.DeepEqual(args, []string{"300", "/freecredential", "42"}) {
		t.Fatalf("args = %#v", args)
	}
	if rest != "300 /freecredential 42" {
		t.Fatalf("rest = %q", rest)
	}
	if _, _, _, ok := parseCommand("hello there"); ok {
		t.Fatal("plain text parsed as a command")
	}
}

func TestSanitizeCommand(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"Jobs":        "jobs",
		"free-credit": "free_credit",
		"a  b":        "a_b",
		"__x__":       "x",
	}
	for in, want := range cases {
		if got := sanitizeCommand(in); got != want {
			t.Fatalf("sanitizeCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDispatchEnforcesAccess(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	r := New(logx.Nop(), ad, Options{Owners: []int64{1}, Workers: 2})

	got := make(chan *Request, 4)
	r.SetCommands(context.Background(), []Command{
		{Name: "schedule", Aliases: []string{"start"}, Access: AccessOwnerOnly, Handle: func(ctx context.Context, req *Request) error {
			got <- req
			return nil
		}},
		{Name: "ping", Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, "pong")
		}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		_ = r.DispatchLoop(ctx, updates)
		close(done)
	}()

	updates <- kit.Update{Message: &kit.Message{ChatID: 5, FromID: 2, Text: "/schedule 10 /freecredential 3"}}
	updates <- kit.Update{Message: &kit.Message{ChatID: 5, FromID: 1, Text: "/start 10 /freecredential 3"}}
	updates <- kit.Update{Message: &kit.Message{ChatID: 5, FromID: 2, Text: "/unknown"}}
	updates <- kit.Update{Message: &kit.Message{ChatID: 5, FromID: 2, Text: "/ping"}}

	select {
	case req := <-got:
		if req.FromID != 1 || req.Command != "schedule" || req.Invoked != "start" || !req.IsOwner {
			t.Fatalf("unexpected request: %+v", req)
		}
		if len(req.Args) != 3 || req.Args[2] != "3" {
			t.Fatalf("unexpected args: %#v", req.Args)
		}
	case <-time.After(time.Second):
		t.Fatal("owner command not dispatched")
	}
	select {
	case req := <-got:
		t.Fatalf("non-owner request reached the handler: %+v", req)
	case <-time.After(100 * time.Millisecond):
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(ad.texts()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if texts := ad.texts(); !reflect.DeepEqual(texts, []string{"pong"}) {
		t.Fatalf("sent = %#v, want only pong (denials and unknown commands are silent)", texts)
	}

	cancel()
	<-done
}

func TestSetOwners(t *testing.T) {
	t.Parallel()
	r := New(logx.Nop(), &fakeAdapter{}, Options{Owners: []int64{1}})
	if !r.IsOwner(1) || r.IsOwner(2) {
		t.Fatal("unexpected initial owners")
	}
	r.SetOwners([]int64{2})
	if r.IsOwner(1) || !r.IsOwner(2) {
		t.Fatal("SetOwners did not replace the allow-list")
	}
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()
	noop := func(ctx context.Context, req *Request) error { return nil }
	menu := menuCommands([]Command{
		{Name: "schedule", Description: "schedule a reminder", Access: AccessOwnerOnly, Handle: noop},
		{Name: "jobs", Handle: noop},
		{Name: "secret", Hidden: true, Handle: noop},
	})
	if len(menu) != 2 {
		t.Fatalf("menu = %+v", menu)
	}
	if menu[0].Description != "🔒 schedule a reminder" || menu[1].Description != "jobs" {
		t.Fatalf("unexpected descriptions: %+v", menu)
	}
}
