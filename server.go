package dialtone

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iconidentify/dialtone/config"
	"github.com/iconidentify/dialtone/events"
	"github.com/iconidentify/dialtone/fdo"
	"github.com/iconidentify/dialtone/metrics"
	"github.com/iconidentify/dialtone/xfer"
)

// Server is the P3 listening socket: accepts TCP connections and spawns
// one serverConn worker per connection (spec.md §2 item 10, §6 "Listening
// socket").
type Server struct {
	cfg      config.Config
	registry *Registry
	auth     *AuthHandler
	compiler fdo.Compiler
	metrics  *metrics.Metrics
	events   *events.Publisher
	log      *logrus.Logger

	ln net.Listener

	connsMu sync.Mutex
	conns   map[*serverConn]struct{}
	wg      sync.WaitGroup
}

// NewServer builds a Server ready to Listen. registry holds whatever
// keyword/application handlers the caller has registered for tokens not
// owned by core.go; compiler is the external FDO compiler.
func NewServer(cfg config.Config, registry *Registry, compiler fdo.Compiler, m *metrics.Metrics, ev *events.Publisher, log *logrus.Logger) (*Server, error) {
	users, err := cfg.ResolveAuthUsers()
	if err != nil {
		return nil, err
	}
	checker := NewStaticCredentialChecker(users)
	auth := NewAuthHandler(checker, GuestPolicy{Allowed: cfg.GuestsAllowed})

	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Server{
		cfg:      cfg,
		registry: registry,
		auth:     auth,
		compiler: compiler,
		metrics:  m,
		events:   ev,
		log:      log,
		conns:    make(map[*serverConn]struct{}),
	}, nil
}

// Listen opens the TCP listening socket at cfg.ListenAddr, applying
// platform socket options (SO_REUSEADDR) via setReuseAddr.
func (s *Server) Listen() error {
	lc := net.ListenConfig{Control: controlSetReuseAddr}

	ln, err := lc.Listen(context.Background(), "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("dialtone: listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.ln = ln
	return nil
}

// Serve accepts connections until the listener is closed, spawning a
// goroutine per connection. Each connection's own panics and errors are
// contained to serverConn.Serve; Serve itself only returns once accept
// fails (typically because Shutdown closed the listener).
func (s *Server) Serve() error {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return err
		}

		xferSvc := xfer.NewService(xfer.NewRegistry(), s.compiler)
		sc := newServerConn(c, s.cfg, s.registry, s.auth, xferSvc, s.metrics, s.events, s.log)

		s.connsMu.Lock()
		s.conns[sc] = struct{}{}
		s.connsMu.Unlock()
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			defer func() {
				s.connsMu.Lock()
				delete(s.conns, sc)
				s.connsMu.Unlock()
			}()
			if err := sc.Serve(); err != nil {
				s.log.WithError(err).Debug("connection closed")
			}
		}()
	}
}

// Shutdown stops accepting new connections, broadcasts a force-off to
// every live session (reusing §4.6's force-off framing) and waits, bounded
// by ctx, for each connection's CLOSING → CLOSED drain to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			return err
		}
	}

	s.connsMu.Lock()
	for sc := range s.conns {
		sc.requestShutdown("server shutting down")
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
