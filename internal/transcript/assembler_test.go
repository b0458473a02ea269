package transcript

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestAssemblerInOrder(t *testing.T) {
	a := NewAssembler(clock.NewMock())
	a.Expect(1)
	a.Expect(2)

	if got := a.OnFragment(1, "hello"); got != "hello" {
		t.Errorf("Expected %q, got %q", "hello", got)
	}
	if got := a.OnFragment(2, "world"); got != "hello world" {
		t.Errorf("Expected %q, got %q", "hello world", got)
	}
}

func TestAssemblerReverseOrder(t *testing.T) {
	a := NewAssembler(clock.NewMock())
	a.Expect(1)
	a.Expect(2)
	a.Expect(3)

	if got := a.OnFragment(3, "three"); got != "" {
		t.Errorf("Expected empty transcript while seq 1 is outstanding, got %q", got)
	}
	if got := a.OnFragment(2, "two"); got != "" {
		t.Errorf("Expected empty transcript while seq 1 is outstanding, got %q", got)
	}
	if got := a.OnFragment(1, "one"); got != "one two three" {
		t.Errorf("Expected %q, got %q", "one two three", got)
	}
}

func TestAssemblerFailureDoesNotBlock(t *testing.T) {
	a := NewAssembler(clock.NewMock())
	a.Expect(1)
	a.Expect(2)
	a.Expect(3)

	a.OnFragment(1, "alpha")
	a.OnFragment(3, "gamma")
	if got := a.Text(); got != "alpha" {
		t.Errorf("Expected %q, got %q", "alpha", got)
	}

	transportErr := errors.New("HTTP error 500")
	if got := a.OnFailure(2, transportErr); got != "alpha gamma" {
		t.Errorf("Expected %q, got %q", "alpha gamma", got)
	}

	result := a.OnSessionEnd()
	if len(result.Failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(result.Failures))
	}
	if result.Failures[0].Seq != 2 || !errors.Is(result.Failures[0].Err, transportErr) {
		t.Errorf("Unexpected failure record: %+v", result.Failures[0])
	}
	if result.Fragments != 2 {
		t.Errorf("Expected 2 fragments, got %d", result.Fragments)
	}
}

func TestAssemblerSkipsBlankFragments(t *testing.T) {
	a := NewAssembler(clock.NewMock())
	a.Expect(1)
	a.Expect(2)
	a.Expect(3)

	a.OnFragment(1, "  hi ")
	a.OnFragment(2, "   ")
	a.OnFragment(3, "there")

	if got := a.Text(); got != "hi there" {
		t.Errorf("Expected %q, got %q", "hi there", got)
	}
}

func TestAssemblerIgnoresUnknownAndDuplicate(t *testing.T) {
	a := NewAssembler(clock.NewMock())
	a.Expect(1)

	a.OnFragment(7, "stray")
	a.OnFragment(1, "first")
	a.OnFragment(1, "again")

	if got := a.Text(); got != "first" {
		t.Errorf("Expected %q, got %q", "first", got)
	}
	if a.Pending() != 0 {
		t.Errorf("Expected 0 pending, got %d", a.Pending())
	}
}

func TestAssemblerLatency(t *testing.T) {
	mock := clock.NewMock()
	a := NewAssembler(mock)
	a.Expect(1)
	a.Expect(2)

	a.OnFragment(1, "early")
	mock.Add(500 * time.Millisecond)

	a.MarkStopped(mock.Now())
	mock.Add(1200 * time.Millisecond)
	a.OnFragment(2, "late")

	result := a.OnSessionEnd()
	if result.Latency != 1200*time.Millisecond {
		t.Errorf("Expected latency 1.2s, got %v", result.Latency)
	}
	if result.Transcript != "early late" {
		t.Errorf("Expected %q, got %q", "early late", result.Transcript)
	}
}

func TestAssemblerLatencyClampedToZero(t *testing.T) {
	mock := clock.NewMock()
	a := NewAssembler(mock)
	a.Expect(1)

	mock.Add(time.Second)
	a.OnFragment(1, "done before stop")
	mock.Add(time.Second)
	a.MarkStopped(mock.Now())

	if result := a.OnSessionEnd(); result.Latency != 0 {
		t.Errorf("Expected zero latency, got %v", result.Latency)
	}
}

func TestAssemblerResetsAfterSessionEnd(t *testing.T) {
	a := NewAssembler(clock.NewMock())
	a.Expect(1)
	a.OnFragment(1, "first session")
	a.OnSessionEnd()

	if got := a.Text(); got != "" {
		t.Errorf("Expected empty transcript after reset, got %q", got)
	}

	stats := a.GetStats()
	if stats.NextSeq != 1 {
		t.Errorf("Expected next seq 1 after reset, got %d", stats.NextSeq)
	}

	a.Expect(1)
	if got := a.OnFragment(1, "second"); got != "second" {
		t.Errorf("Expected %q, got %q", "second", got)
	}
}
