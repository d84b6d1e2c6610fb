package sync

import (
	"testing"
	"time"

	"github.com/go-simkernel/simkernel/sched"
)

// TestPortRendezvous: thread A Send(5), thread B Receive(&x) => x == 5.
func TestPortRendezvous(t *testing.T) {
	sc := newTestScheduler()
	p := NewPort("p", sc)
	a := sched.NewThread("a", 0, 1, 2)
	b := sched.NewThread("b", 0, 2, 2)

	done := make(chan struct{})
	go func() {
		p.Send(a, 5)
		close(done)
	}()

	var x int
	p.Receive(b, &x)
	if x != 5 {
		t.Fatalf("received %d, want 5", x)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send never returned after matching Receive")
	}
}

// TestPortReceiveFirstBlocksUntilSend: with Receive started first, the
// rendezvous blocks until the matching Send.
func TestPortReceiveFirstBlocksUntilSend(t *testing.T) {
	sc := newTestScheduler()
	p := NewPort("p", sc)
	a := sched.NewThread("a", 0, 1, 2)
	b := sched.NewThread("b", 0, 2, 2)

	var x int
	done := make(chan struct{})
	go func() {
		p.Receive(b, &x)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Receive returned before any Send")
	case <-time.After(20 * time.Millisecond):
	}

	p.Send(a, 7)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Receive never returned after Send")
	}
	if x != 7 {
		t.Fatalf("received %d, want 7", x)
	}
}

// TestPortSequentialSenders: three Send/Receive pairs in sequence each pair
// correctly, matching the one-rendezvous-at-a-time contract. Each round
// waits for its Send to return before the next one starts, since every
// round's Send runs as the same thread a.
func TestPortSequentialSenders(t *testing.T) {
	sc := newTestScheduler()
	p := NewPort("p", sc)
	a := sched.NewThread("a", 0, 1, 2)
	b := sched.NewThread("b", 0, 2, 2)

	for i := 0; i < 3; i++ {
		done := make(chan struct{})
		go func(m int) {
			p.Send(a, m)
			close(done)
		}(i)
		var x int
		p.Receive(b, &x)
		if x != i {
			t.Fatalf("round %d: received %d, want %d", i, x, i)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("round %d: Send never returned after matching Receive", i)
		}
	}
}
