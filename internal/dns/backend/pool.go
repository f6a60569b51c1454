package backend

import (
	"net"
	"sync"
	"time"
)

// connPool is a bounded pool of UDP sockets per upstream address, with
// per-socket age. On checkout, sockets older than maxAge are closed and
// replaced (spec §4.9). Reentrant-safe: concurrent callers block on the
// channel until a socket is available.
type connPool struct {
	size   int
	maxAge time.Duration

	mu    sync.Mutex
	addrs map[string]chan *pooledConn
}

type pooledConn struct {
	conn    *net.UDPConn
	dialed  time.Time
	address string
}

func newConnPool(size int, maxAge time.Duration) *connPool {
	return &connPool{
		size:   size,
		maxAge: maxAge,
		addrs:  make(map[string]chan *pooledConn),
	}
}

func (p *connPool) channelFor(addr string) chan *pooledConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.addrs[addr]
	if !ok {
		ch = make(chan *pooledConn, p.size)
		p.addrs[addr] = ch
		for i := 0; i < p.size; i++ {
			ch <- nil // empty slot, filled lazily on first checkout
		}
	}
	return ch
}

// checkout blocks until a slot for addr is available, dialing a fresh
// socket if the slot was empty or its occupant exceeded maxAge.
func (p *connPool) checkout(addr string) (*net.UDPConn, func(), error) {
	ch := p.channelFor(addr)
	slot := <-ch

	if slot != nil && time.Since(slot.dialed) > p.maxAge {
		_ = slot.conn.Close()
		slot = nil
	}
	if slot == nil {
		raddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			ch <- nil // return the slot even on failure
			return nil, nil, err
		}
		conn, err := net.DialUDP("udp", nil, raddr)
		if err != nil {
			ch <- nil
			return nil, nil, err
		}
		slot = &pooledConn{conn: conn, dialed: time.Now(), address: addr}
	}

	release := func() { ch <- slot }
	return slot.conn, release, nil
}
