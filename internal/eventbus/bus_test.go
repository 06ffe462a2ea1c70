package eventbus

import "testing"

func TestSubscribeFiltersByPrefix(t *testing.T) {
	t.Parallel()
	b := New()
	jobs, unsubJobs := b.Subscribe(4, "job.")
	defer unsubJobs()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	b.Publish(Event{Type: "config.reloaded"})
	b.Publish(Event{Type: "job.delivered"})

	if ev := <-jobs; ev.Type != "job.delivered" {
		t.Fatalf("filtered subscriber got %q", ev.Type)
	}
	if len(jobs) != 0 {
		t.Fatal("filtered subscriber got extra events")
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", len(all))
	}
	if ev := <-all; ev.Time.IsZero() {
		t.Fatal("Publish did not stamp the event time")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: "job.submitted"})
	}
	if got := b.Dropped(); got != 4 {
		t.Fatalf("Dropped = %d, want 4", got)
	}
	unsub()
	unsub()
	b.Publish(Event{Type: "job.submitted"})
}
