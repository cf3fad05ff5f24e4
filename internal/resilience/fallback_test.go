package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("primary", "p", FallbackConfig{})
	fg.AddFallback("secondary", "secondary")

	var seen []string
	err := fg.Execute(func(v string) error {
		seen = append(seen, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(seen) != 1 || seen[0] != "primary" {
		t.Errorf("seen = %v, want [primary]", seen)
	}
}

func TestFallbackGroup_Failover(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(1, "one", FallbackConfig{})
	fg.AddFallback("two", 2)
	fg.AddFallback("three", 3)

	got, err := ExecuteWithResult(fg, func(v int) (int, error) {
		if v < 3 {
			return 0, errTest
		}
		return v * 10, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != 30 {
		t.Errorf("result = %d, want 30", got)
	}
}

func TestFallbackGroup_AllFailed(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(1, "one", FallbackConfig{})
	fg.AddFallback("two", 2)

	last := errors.New("two down")
	err := fg.Execute(func(v int) error {
		if v == 1 {
			return errTest
		}
		return last
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, last) {
		t.Errorf("err = %v, want to wrap the last failure", err)
	}
}

func TestFallbackGroup_SkipsOpenCircuit(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")

	calls := map[string]int{}
	fn := func(v string) error {
		calls[v]++
		if v == "primary" {
			return errTest
		}
		return nil
	}
	for range 3 {
		if err := fg.Execute(fn); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if calls["primary"] != 1 {
		t.Errorf("primary called %d times, want 1 (breaker should open)", calls["primary"])
	}
	if calls["secondary"] != 3 {
		t.Errorf("secondary called %d times, want 3", calls["secondary"])
	}

	st := fg.Status()
	if len(st) != 2 || st[0].State != "open" || st[0].LastError == "" || st[1].State != "closed" {
		t.Errorf("Status = %+v", st)
	}
}

func TestFallbackGroup_AllOpen(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("only", "only", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	_ = fg.Execute(func(string) error { return errTest })

	err := fg.Execute(func(string) error { return nil })
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrAllFailed wrapping ErrCircuitOpen", err)
	}
}
