// Package netchannel implements NetworkChannel: the thin UDP socket
// wrapper that sends datagrams the caller has already encrypted to a
// caller-supplied address and batches inbound reads (spec.md §2
// component 10). Peer addresses are tracked by the caller.
package netchannel

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/cheetah-relay/relay-go/wire"
)

// BatchSize bounds how many datagrams ReadBatch will pull from the
// kernel in one non-blocking call (spec.md §5 "drain inbound
// datagrams... until WouldBlock").
const BatchSize = 64

// Datagram is one inbound datagram together with its source address.
type Datagram struct {
	Addr net.Addr
	Data []byte
}

// Channel owns the listening UDP socket.
type Channel struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn

	readBufs [BatchSize][]byte
	msgs     []ipv4.Message
}

// Listen binds a UDP socket at addr (e.g. "0.0.0.0:7777").
func Listen(addr string) (*Channel, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("netchannel: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("netchannel: listen %q: %w", addr, err)
	}
	if err := conn.SetReadBuffer(4 * 1024 * 1024); err != nil {
		return nil, fmt.Errorf("netchannel: set read buffer: %w", err)
	}

	c := &Channel{
		conn: conn,
		pc:   ipv4.NewPacketConn(conn),
		msgs: make([]ipv4.Message, BatchSize),
	}
	for i := range c.readBufs {
		c.readBufs[i] = make([]byte, wire.MaxDatagramSize)
		c.msgs[i].Buffers = [][]byte{c.readBufs[i]}
	}
	return c, nil
}

// ReadBatch drains as many queued datagrams as are available, up to
// BatchSize, returning immediately (non-blocking) once the kernel
// reports no more are ready. An empty, non-error result means the
// caller has reached WouldBlock for this cycle.
func (c *Channel) ReadBatch() ([]Datagram, error) {
	// A deadline already in the past makes the next read call return
	// immediately once the socket buffer is drained, giving the
	// non-blocking "WouldBlock" semantics spec.md §5 asks for without
	// relying on platform-specific socket flags.
	if err := c.conn.SetReadDeadline(time.Now()); err != nil {
		return nil, fmt.Errorf("netchannel: set read deadline: %w", err)
	}
	n, err := c.pc.ReadBatch(c.msgs, 0)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}
		return nil, fmt.Errorf("netchannel: read batch: %w", err)
	}
	out := make([]Datagram, n)
	for i := 0; i < n; i++ {
		msg := c.msgs[i]
		data := make([]byte, msg.N)
		copy(data, c.readBufs[i][:msg.N])
		out[i] = Datagram{Addr: msg.Addr, Data: data}
	}
	return out, nil
}

// Send writes one already-encrypted datagram to addr.
func (c *Channel) Send(addr net.Addr, data []byte) error {
	_, err := c.conn.WriteTo(data, addr)
	if err != nil {
		return fmt.Errorf("netchannel: send to %v: %w", addr, err)
	}
	return nil
}

// Close releases the socket.
func (c *Channel) Close() error {
	return c.conn.Close()
}
