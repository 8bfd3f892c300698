package ipc

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kartikbazzad/ustorekv/internal/logger"
	"github.com/kartikbazzad/ustorekv/internal/metrics"
	"github.com/kartikbazzad/ustorekv/internal/pool"
)

// Server accepts connections on a Unix domain socket and dispatches
// each decoded frame to a Handler, bounding concurrent connection
// handlers with an ants.Pool exactly as the teacher's IPC server does.
type Server struct {
	socketPath string
	logger     *logger.Logger
	metrics    *metrics.Metrics
	pool       *pool.Pool
	handler    *Handler
	listener   net.Listener

	mu          sync.Mutex
	running     bool
	connections map[net.Conn]bool
	connMu      sync.Mutex
	connPool    *ants.Pool
	maxConns    int

	wg sync.WaitGroup
}

func NewServer(socketPath string, maxConns int, p *pool.Pool, m *metrics.Metrics, log *logger.Logger) *Server {
	return &Server{
		socketPath:  socketPath,
		logger:      log,
		metrics:     m,
		pool:        p,
		handler:     NewHandler(p),
		maxConns:    maxConns,
		connections: make(map[net.Conn]bool),
	}
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := s.pool.Start(); err != nil {
		return err
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.logger.Warn("failed to remove stale socket: %v", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener
	s.running = true

	if s.maxConns > 0 {
		connPool, err := ants.NewPool(s.maxConns, ants.WithPanicHandler(func(v any) {
			s.logger.Error("connection handler panic: %v", v)
		}))
		if err == nil {
			s.connPool = connPool
		}
	}

	s.logger.Info("ipc server listening on %s", s.socketPath)
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.pool.Stop()
	s.running = false
	s.mu.Unlock()

	s.connMu.Lock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()

	if s.connPool != nil {
		_ = s.connPool.ReleaseTimeout(3 * time.Second)
		s.connPool = nil
	}

	s.logger.Info("ipc server stopped")
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			s.logger.Error("accept error: %v", err)
			continue
		}

		s.connMu.Lock()
		s.connections[conn] = true
		s.connMu.Unlock()

		s.wg.Add(1)
		if s.connPool != nil {
			if err := s.connPool.Submit(func() {
				defer s.wg.Done()
				s.handleConnection(conn)
			}); err != nil {
				s.wg.Done()
				conn.Close()
				s.connMu.Lock()
				delete(s.connections, conn)
				s.connMu.Unlock()
				s.logger.Error("failed to submit connection handler: %v", err)
			}
		} else {
			go func() {
				defer s.wg.Done()
				s.handleConnection(conn)
			}()
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		s.connMu.Lock()
		delete(s.connections, conn)
		s.connMu.Unlock()
	}()

	s.logger.Debug("new connection from %s", conn.RemoteAddr())

	for {
		data, err := readFrame(conn)
		if err != nil {
			if err != net.ErrClosed && err != io.EOF {
				s.logger.Debug("connection closed: %v", err)
			}
			return
		}

		frame, err := DecodeRequest(data)
		if err != nil {
			s.logger.Error("failed to decode request: %v", err)
			continue
		}

		start := time.Now()
		resp := s.handler.Handle(frame)
		if s.metrics != nil {
			var respErr error
			if resp.Status != StatusOK {
				respErr = statusError(resp.Status)
			}
			s.metrics.Observe(commandName(frame.Command), respErr, time.Since(start))
		}

		respData, err := EncodeResponse(resp)
		if err != nil {
			s.logger.Error("failed to encode response: %v", err)
			continue
		}
		if err := writeFrame(conn, respData); err != nil {
			s.logger.Error("failed to write response: %v", err)
			return
		}
	}
}

func readFrame(conn io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf)
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(conn io.Writer, data []byte) error {
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := conn.Write(lenBuf); err != nil {
		return err
	}
	_, err := conn.Write(data)
	return err
}

func commandName(cmd byte) string {
	switch cmd {
	case CmdDatabaseInit:
		return "database_init"
	case CmdDatabaseFree:
		return "database_free"
	case CmdDatabaseControl:
		return "database_control"
	case CmdCollectionList:
		return "collection_list"
	case CmdCollectionCreate:
		return "collection_create"
	case CmdCollectionDrop:
		return "collection_drop"
	case CmdTransactionInit:
		return "transaction_init"
	case CmdTransactionStage:
		return "transaction_stage"
	case CmdTransactionCommit:
		return "transaction_commit"
	case CmdTransactionFree:
		return "transaction_free"
	case CmdSnapshot:
		return "snapshot"
	case CmdData:
		return "data"
	default:
		return "unknown"
	}
}

type statusErr uint8

func (e statusErr) Error() string { return "non-ok status" }

func statusError(status uint8) error { return statusErr(status) }
