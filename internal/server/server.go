// Package server implements the socketmap-facing TCP daemon: accepting
// connections, dispatching framed requests through the zone/cache/resolver
// stack, and replying in request order.
package server

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/mxstsd/mxstsd/internal/cache"
	"github.com/mxstsd/mxstsd/internal/hooks"
	"github.com/mxstsd/mxstsd/internal/log"
	"github.com/mxstsd/mxstsd/internal/metrics"
	"github.com/mxstsd/mxstsd/internal/netstring"
	"github.com/mxstsd/mxstsd/internal/zone"
)

// Server binds a listener and serves the MTA-STS socketmap protocol.
type Server struct {
	Cache       *cache.Cache
	Zones       *zone.Registry
	Log         log.Logger
	MaxFrameLen int

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	closing  bool
	stop     chan struct{}
}

// New builds a Server. MaxFrameLen <= 0 selects netstring.DefaultMaxLen.
func New(c *cache.Cache, zones *zone.Registry, logger log.Logger) *Server {
	return &Server{
		Cache:       c,
		Zones:       zones,
		Log:         logger,
		MaxFrameLen: netstring.DefaultMaxLen,
		stop:        make(chan struct{}),
	}
}

// ListenAndServe binds addr (host:port) and serves until Close is called
// or Serve returns a fatal accept error.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l, spawning a handler per connection, until
// l is closed.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.Log.Msg("listening", "addr", l.Addr().String())
	hooks.Add(hooks.EventShutdown, func() {
		s.Close()
	})

	go s.reportCacheSize()

	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.Log.Error("transient accept error", err)
				continue
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting new connections, interrupts the pending reads of
// open connections and waits for their handlers to return. Replies that
// are already computed are still written; replies whose resolution has not
// finished by then are dropped.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	l := s.listener
	s.mu.Unlock()

	close(s.stop)
	var err error
	if l != nil {
		err = l.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) reportCacheSize() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.CacheEntries.Set(float64(s.Cache.Len()))
		case <-s.stop:
			return
		}
	}
}
