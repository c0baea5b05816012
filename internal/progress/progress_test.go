package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMeterRenderFormatsPercentage(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf, 200, false)
	m.Add(50)
	m.render()

	got := buf.String()
	if !strings.Contains(got, "[ 25%]") {
		t.Fatalf("render() = %q, want it to contain the 25%% line", got)
	}
	if !strings.Contains(got, "50/200") {
		t.Fatalf("render() = %q, want it to contain 50/200", got)
	}
}

func TestMeterRenderZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf, 0, false)
	m.render()
	if !strings.Contains(buf.String(), "[  0%]") {
		t.Fatalf("render() with total=0 = %q, want a 0%% line rather than a divide-by-zero panic", buf.String())
	}
}

func TestMeterRunStopPrintsFinalLine(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf, 10, false)
	m.interval = time.Millisecond
	m.Add(10)

	done := make(chan struct{})
	go func() {
		m.Run()
		close(done)
	}()

	m.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("expected Run to print a trailing newline on Stop, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "10/10") {
		t.Fatalf("expected final line to reflect the last Add, got %q", buf.String())
	}
}

func TestMeterQuietSuppressesTicking(t *testing.T) {
	var buf bytes.Buffer
	m := New(&buf, 10, true)
	m.interval = time.Millisecond

	done := make(chan struct{})
	go func() {
		m.Run()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if buf.Len() != 0 {
		t.Fatalf("quiet meter wrote output before Stop: %q", buf.String())
	}

	m.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop in quiet mode")
	}
}

func TestTermWidthNeverZero(t *testing.T) {
	// Not running under a real tty in test, so this just confirms the
	// ioctl-failure fallback kicks in rather than returning 0.
	if w := termWidth(); w <= 0 {
		t.Fatalf("termWidth() = %d, want > 0", w)
	}
}
