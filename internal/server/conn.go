package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/mxstsd/mxstsd/internal/future"
	"github.com/mxstsd/mxstsd/internal/log"
	"github.com/mxstsd/mxstsd/internal/netstring"
)

const readChunkSize = 4 * 1024

// handleConn drives a single client connection: a reader loop that frames
// input and spawns one resolution task per request, and a sender goroutine
// that drains a FIFO of futures in request order so replies are never
// reordered relative to the requests that produced them.
func (s *Server) handleConn(conn net.Conn) {
	reqID := uuid.New()
	connLog := s.Log.With(map[string]interface{}{
		"request_id":  reqID.String(),
		"remote_addr": conn.RemoteAddr().String(),
	})
	connLog.DebugMsg("connection accepted")
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())

	// When the server is closed, unblock the pending Read so this handler
	// winds down instead of waiting for the client to hang up.
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-s.stop:
			conn.SetReadDeadline(time.Now())
		case <-finished:
		}
	}()

	futures := make(chan *future.Future, 64)
	done := make(chan struct{})
	go s.sendReplies(ctx, conn, futures, done, connLog)

	dec := netstring.NewDecoder(s.MaxFrameLen)
	buf := make([]byte, readChunkSize)

loop:
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			frames, derr := dec.Feed(buf[:n])
			for _, frame := range frames {
				f := future.New()
				futures <- f
				go s.resolveInto(ctx, frame, f)
			}
			if derr != nil {
				connLog.DebugMsg("protocol error, closing connection", "error", derr.Error())
				break loop
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				connLog.DebugMsg("read error, closing connection", "error", err.Error())
			}
			break loop
		}
	}

	// Abort any in-flight resolutions: they'll now complete quickly with a
	// FetchError reply instead of running to their full zone timeout.
	cancel()
	close(futures)
	<-done
	connLog.DebugMsg("connection closed")
}

func (s *Server) resolveInto(ctx context.Context, frame []byte, f *future.Future) {
	reply := s.processRequest(ctx, string(frame))
	f.Set(netstring.EncodeString(reply), nil)
}

// sendReplies writes each future's reply to conn in FIFO order, blocking
// on each one until its resolution task completes (or ctx is cancelled).
func (s *Server) sendReplies(ctx context.Context, conn net.Conn, futures <-chan *future.Future, done chan<- struct{}, connLog log.Logger) {
	defer close(done)
	for f := range futures {
		v, err := f.GetContext(ctx)
		if err != nil {
			// Connection teardown raced the resolution; nothing left to
			// write it to anyway.
			continue
		}
		if _, werr := conn.Write(v.([]byte)); werr != nil {
			connLog.DebugMsg("write error", "error", werr.Error())
			return
		}
	}
}
