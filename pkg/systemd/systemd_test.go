package systemd

import (
	"reflect"
	"testing"
)

func TestNotifierStates(t *testing.T) {
	t.Parallel()
	var got []string
	n := &Notifier{notify: func(_ bool, state string) (bool, error) {
		got = append(got, state)
		return true, nil
	}}
	_, _ = n.Ready()
	_, _ = n.Status("restored %d jobs", 3)
	_, _ = n.Watchdog()
	_, _ = n.Stopping()
	want := []string{"READY=1", "STATUS=restored 3 jobs", "WATCHDOG=1", "STOPPING=1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("states = %#v, want %#v", got, want)
	}
}

func TestNilNotifierIsNoop(t *testing.T) {
	t.Parallel()
	var n *Notifier
	if ok, err := n.Ready(); ok || err != nil {
		t.Fatalf("nil notifier sent: %v %v", ok, err)
	}
}
