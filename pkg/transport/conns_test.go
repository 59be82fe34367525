package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testAddr = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}

func TestConnSetTrackAndForget(t *testing.T) {
	s := NewConnSet()
	cancelled := false
	c := s.Track(testAddr, func() { cancelled = true })

	if c.ID == "" {
		t.Fatal("Track returned an empty ID")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	s.Forget(c)
	if s.Len() != 0 {
		t.Errorf("Len() after Forget = %d, want 0", s.Len())
	}
	if cancelled {
		t.Error("Forget cancelled the connection")
	}
	// Forgetting twice is harmless.
	s.Forget(c)
}

func TestConnSetCancelIdle(t *testing.T) {
	s := NewConnSet()
	var idleHits, busyHits int
	idle := s.Track(testAddr, func() { idleHits++ })
	s.Track(testAddr, func() { busyHits++ })
	idle.SetIdle(true)

	if n := s.CancelIdle(); n != 1 {
		t.Errorf("CancelIdle() = %d, want 1", n)
	}
	if idleHits != 1 || busyHits != 0 {
		t.Errorf("cancel calls = (idle %d, busy %d), want (1, 0)", idleHits, busyHits)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2 until the loops forget their connections", s.Len())
	}

	idle.SetIdle(false)
	if n := s.CancelIdle(); n != 0 {
		t.Errorf("CancelIdle() with no idle connections = %d, want 0", n)
	}
}

func TestConnSetCancelAll(t *testing.T) {
	s := NewConnSet()
	var hits atomic.Int32
	for range 5 {
		s.Track(testAddr, func() { hits.Add(1) })
	}

	if n := s.CancelAll(); n != 5 {
		t.Errorf("CancelAll() = %d, want 5", n)
	}
	if hits.Load() != 5 {
		t.Errorf("cancel calls = %d, want 5", hits.Load())
	}
}

func TestConnSetOldest(t *testing.T) {
	s := NewConnSet()
	if d := s.Oldest(); d != 0 {
		t.Errorf("Oldest() on empty set = %v, want 0", d)
	}

	first := s.Track(testAddr, func() {})
	first.Since = time.Now().Add(-time.Minute)
	s.Track(testAddr, func() {})

	if d := s.Oldest(); d < time.Minute {
		t.Errorf("Oldest() = %v, want at least 1m", d)
	}
}

func TestConnSetConcurrentAccess(t *testing.T) {
	s := NewConnSet()
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := s.Track(testAddr, func() {})
			c.SetIdle(true)
			s.CancelIdle()
			s.Forget(c)
		}()
	}
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Len()
			_ = s.Oldest()
		}()
	}
	wg.Wait()

	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}
