package led

import "testing"

func TestLoggingForwardsToSink(t *testing.T) {
	var got string
	l := NewLogging(func(p string) { got = p })
	l.Set("idle-breathe")
	if got != "idle-breathe" {
		t.Fatalf("got %q", got)
	}
}

func TestTerminalCurrentReportsUnsetThenPattern(t *testing.T) {
	term := NewTerminal()
	if term.Current() != "(unset)" {
		t.Fatalf("expected unset, got %q", term.Current())
	}
	term.Set("listening-solid")
	if term.Current() != "[listening-solid]" {
		t.Fatalf("got %q", term.Current())
	}
}

func TestNoopDiscardsPatterns(t *testing.T) {
	var n Noop
	n.Set("anything")
}
