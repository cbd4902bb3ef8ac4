package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ErrServerClosed     = errors.New("server is closed")
	ErrAlreadyListening = errors.New("server is already listening")
)

type state int

const (
	stateCreated state = iota
	stateListening
	stateClosed
)

// Server is an HTTP server that runs one command per POST request and responds with its output.
// A Server listens at most once. After Close, construct a new Server to listen again.
type Server struct {
	logger *zap.SugaredLogger
	cfg    Config
	bridge *Bridge

	// ctx is the base context of every request, canceled by Close so in-flight commands are killed.
	ctx    context.Context
	cancel context.CancelFunc

	mut        sync.Mutex
	state      state
	listener   net.Listener
	httpServer *http.Server
	serveDone  chan struct{}
	inFlight   sync.WaitGroup
}

type Option func(s *Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l.Sugar()
	}
}

func WithLogLevel(l zapcore.Level) Option {
	return func(s *Server) {
		s.logger = s.logger.WithOptions(zap.IncreaseLevel(l))
	}
}

// NewServer constructs a Server from a validated config.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		logger: logger.Sugar(),
		cfg:    cfg.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.Named("httpexec")
	s.bridge = NewBridge(s.logger, s.cfg)
	return s, nil
}

// Listen binds the configured address and starts serving in the background.
// It returns the bound port, which is OS-assigned if the config has no port.
func (s *Server) Listen() (int, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	switch s.state {
	case stateListening:
		return 0, ErrAlreadyListening
	case stateClosed:
		return 0, ErrServerClosed
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("listening TCP: %w", err)
	}

	router := httprouter.New()
	router.POST("/*path", s.exec)
	router.PanicHandler = s.panicked

	s.httpServer = &http.Server{
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return s.ctx },
	}
	s.listener = listener
	s.serveDone = make(chan struct{})
	s.state = stateListening

	go func() {
		defer close(s.serveDone)
		err := s.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("HTTP server stopped", "Error", err)
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	s.logger.Infow("listening", "Addr", listener.Addr().String(), "AppCommand", s.cfg.AppCommand)
	return port, nil
}

// Close stops accepting connections and releases the listening socket.
// In-flight requests are abandoned: their commands are killed and reaped before Close returns.
// Close is idempotent, and closing a Server that never listened is a no-op.
func (s *Server) Close() error {
	s.mut.Lock()
	prev := s.state
	s.state = stateClosed
	s.mut.Unlock()

	if prev != stateListening {
		return nil
	}

	s.cancel()
	err := s.httpServer.Close()
	s.inFlight.Wait()
	<-s.serveDone
	s.logger.Debug("server closed")
	if err != nil {
		return fmt.Errorf("closing HTTP server: %w", err)
	}
	return nil
}

// begin registers an in-flight request, unless the server is closed.
func (s *Server) begin() bool {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.state != stateListening {
		return false
	}
	s.inFlight.Add(1)
	return true
}

// exec bridges one request to one command run.
func (s *Server) exec(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := uuid.New().String()
	w.Header().Set("X-Request-Id", requestID)
	log := s.logger.With("RequestID", requestID)

	if !s.begin() {
		s.send(log, w, Response{
			StatusCode:  http.StatusServiceUnavailable,
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte(http.StatusText(http.StatusServiceUnavailable) + ": " + ErrServerClosed.Error()),
		})
		return
	}
	defer s.inFlight.Done()

	log.Debugw("got request", "Path", r.URL.Path, "RemoteAddr", r.RemoteAddr)

	var output []byte
	body, err := s.readBody(w, r)
	if err == nil {
		output, err = s.bridge.Handle(r.Context(), requestID, body)
	}
	if err != nil && !IsFailure(err) {
		log.Warnw("unexpected error handling request", "Error", err)
	}

	resp := Translate(output, err)
	if resp.StatusCode == http.StatusOK {
		resp.ContentType = s.cfg.ResponseContentType
	}
	s.send(log, w, resp)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	reader := io.Reader(r.Body)
	if s.cfg.MaxRequestBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, &BodyTooLargeError{Limit: maxBytesErr.Limit}
		}
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return body, nil
}

func (s *Server) send(log *zap.SugaredLogger, w http.ResponseWriter, resp Response) {
	log.Debugw("sending response", "StatusCode", resp.StatusCode, "Bytes", len(resp.Body))
	err := resp.Send(w)
	if err != nil {
		log.Debugf("error writing response: %s", err)
	}
}

func (s *Server) panicked(w http.ResponseWriter, r *http.Request, v interface{}) {
	s.logger.Errorw("panic handling request", "Panic", v, "Path", r.URL.Path)
	s.send(s.logger, w, Translate(nil, fmt.Errorf("panic: %v", v)))
}
