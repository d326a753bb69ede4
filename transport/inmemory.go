package transport

import (
	"context"
	"sync"
)

// inMemoryBuffer is how many messages can be queued on one direction
// of an in-memory pair before Send blocks.
const inMemoryBuffer = 64

// KillSwitch models an abrupt, bilateral transport failure: once
// activated, every subsequent Send and Recv on both ends of the pair
// it was created for fails, including a read that is already blocked
// waiting for the next message.
type KillSwitch struct {
	once sync.Once
	done chan struct{}
}

func newKillSwitch() *KillSwitch {
	return &KillSwitch{done: make(chan struct{})}
}

// Kill activates the switch. Safe to call more than once or
// concurrently; only the first call has an effect.
func (k *KillSwitch) Kill() {
	k.once.Do(func() { close(k.done) })
}

// link is one direction of an in-memory pair: a bounded message queue
// plus a signal the reading side raises when it will never read
// again, so the writing side's Send fails immediately instead of
// blocking forever or silently dropping messages.
type link struct {
	msgs       chan Message
	readerGone chan struct{}
}

func newLink() *link {
	return &link{msgs: make(chan Message, inMemoryBuffer), readerGone: make(chan struct{})}
}

type inMemoryDuplex struct {
	outLink   *link // this side writes here
	inLink    *link // this side reads here
	kill      *KillSwitch
	closeOnce sync.Once
}

func (d *inMemoryDuplex) Send(ctx context.Context, msg Message) error {
	select {
	case <-d.kill.done:
		return ErrClosed
	case <-d.outLink.readerGone:
		return ErrClosed
	default:
	}
	select {
	case d.outLink.msgs <- msg:
		return nil
	case <-d.kill.done:
		return ErrClosed
	case <-d.outLink.readerGone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *inMemoryDuplex) Recv(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-d.inLink.msgs:
		if !ok {
			return Message{}, ErrClosed
		}
		return msg, nil
	case <-d.kill.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close announces that this side is done: it will never read inLink
// again (so the peer's Send starts failing) and will never write any
// more messages to outLink (so the peer's Recv drains what's queued
// and then observes closure). Safe to call more than once.
func (d *inMemoryDuplex) Close() error {
	d.closeOnce.Do(func() {
		close(d.inLink.readerGone)
		close(d.outLink.msgs)
	})
	return nil
}

// InMemory returns a connected pair of Conns, A and B, where A's
// outbound messages are B's inbound messages and vice versa, plus a
// shared KillSwitch. Activating the kill switch fails every
// subsequent (and any currently pending) Send/Recv on either end --
// an abrupt network failure, distinct from either side calling Close
// on just its own end (which fails the other end's Send and lets the
// other end's Recv drain what is queued before it observes closure).
func InMemory() (a, b *Conn, kill *KillSwitch) {
	kill = newKillSwitch()
	aToB := newLink()
	bToA := newLink()

	da := &inMemoryDuplex{outLink: aToB, inLink: bToA, kill: kill}
	db := &inMemoryDuplex{outLink: bToA, inLink: aToB, kill: kill}

	return New(da), New(db), kill
}
