package ratelimit

import (
	"testing"
	"time"
)

func TestDuplicateSuppressionWithinWindow(t *testing.T) {
	l := New(Config{Timeout: 200 * time.Millisecond, MaxDuplicates: 1})

	if !l.ShouldSend("hello", "chat") {
		t.Fatal("first send should be allowed")
	}
	if l.ShouldSend("hello", "chat") {
		t.Fatal("duplicate within window should be blocked")
	}
}

func TestDuplicateAllowedAfterTimeout(t *testing.T) {
	l := New(Config{Timeout: 30 * time.Millisecond, MaxDuplicates: 1})

	if !l.ShouldSend("hello", "chat") {
		t.Fatal("first send should be allowed")
	}
	time.Sleep(50 * time.Millisecond)
	if !l.ShouldSend("hello", "chat") {
		t.Fatal("send after timeout should be allowed")
	}
}

func TestGlobalLimit(t *testing.T) {
	l := New(Config{
		Timeout:           time.Second,
		MaxDuplicates:     1000,
		GlobalLimitCount:  2,
		GlobalLimitWindow: 200 * time.Millisecond,
	})

	if !l.ShouldSend("a", "") {
		t.Fatal("1st global send should pass")
	}
	if !l.ShouldSend("b", "") {
		t.Fatal("2nd global send should pass")
	}
	if l.ShouldSend("c", "") {
		t.Fatal("3rd global send within window should be blocked")
	}
}

func TestGlobalLimitWindowRolls(t *testing.T) {
	l := New(Config{
		Timeout:           time.Second,
		MaxDuplicates:     1000,
		GlobalLimitCount:  1,
		GlobalLimitWindow: 40 * time.Millisecond,
	})

	if !l.ShouldSend("a", "") {
		t.Fatal("1st send should pass")
	}
	if l.ShouldSend("b", "") {
		t.Fatal("2nd send inside window should be blocked")
	}
	time.Sleep(60 * time.Millisecond)
	if !l.ShouldSend("c", "") {
		t.Fatal("send after window rolls should pass")
	}
}

func TestGetStats(t *testing.T) {
	l := New(Config{Timeout: time.Second, MaxDuplicates: 1})
	l.ShouldSend("x", "t")
	l.ShouldSend("x", "t")
	stats := l.GetStats("x", "t")
	if stats.Count != 2 || !stats.Blocked {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
