package sync

import "github.com/go-simkernel/simkernel/sched"

type portState int

const (
	portIdle portState = iota
	portStarted
	portEnded
)

// Port is a one-shot synchronous rendezvous channel carrying a single int
// message, pairing senders and receivers one-to-one. A bound lock
// serializes access; three Hoare-style conditions (sendStarted, sendEnded,
// receiveEnded) sequence the handshake.
type Port struct {
	Name string
	lock *Lock

	sendStarted  *Condition
	sendEnded    *Condition
	receiveEnded *Condition

	state  portState
	buffer int
}

// NewPort builds an idle Port.
func NewPort(name string, sc sched.Contract) *Port {
	l := NewLock(name+".lock", sc)
	return &Port{
		Name:         name,
		lock:         l,
		sendStarted:  NewCondition(name+".sendStarted", l, sc),
		sendEnded:    NewCondition(name+".sendEnded", l, sc),
		receiveEnded: NewCondition(name+".receiveEnded", l, sc),
	}
}

// Send blocks until the port is idle, publishes m, waits for a matching
// Receive to consume it, then returns.
func (p *Port) Send(caller *sched.Thread, m int) {
	p.lock.Acquire(caller)
	for p.state != portIdle {
		p.sendEnded.Wait(caller)
	}
	p.buffer = m
	p.state = portStarted
	p.sendStarted.Signal(caller)

	for p.state != portEnded {
		p.receiveEnded.Wait(caller)
	}
	p.state = portIdle
	p.sendEnded.Broadcast(caller)
	p.lock.Release(caller)
}

// Receive blocks until a Send is in progress, copies its message into
// *dst, and releases the sender.
func (p *Port) Receive(caller *sched.Thread, dst *int) {
	p.lock.Acquire(caller)
	for p.state != portStarted {
		p.sendStarted.Wait(caller)
	}
	*dst = p.buffer
	p.state = portEnded
	p.receiveEnded.Signal(caller)
	p.lock.Release(caller)
}
