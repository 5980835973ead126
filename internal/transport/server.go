package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/quill-markets/matchcore/internal/engine"
	"github.com/quill-markets/matchcore/internal/trade"
	"github.com/quill-markets/matchcore/internal/types"
	"github.com/quill-markets/matchcore/internal/workerpool"
)

const (
	maxRecvSize     = 4 * 1024
	defaultWorkers  = 10
	defaultConnIdle = 5 * time.Minute
)

// Server is a TCP front-end over the engine. One physical connection is
// one session; trade reports are broadcast to all live sessions, since
// the core has no account/owner concept to route by, while ack and error
// reports go only to the connection whose request produced them.
type Server struct {
	address string
	port    int
	engine  *engine.Engine
	pool    workerpool.WorkerPool

	sessionsMu sync.Mutex
	sessions   map[string]net.Conn

	cancel context.CancelFunc
}

// New builds a server bound to address:port, fronting eng. It installs
// the server's trade callback on eng, replacing any earlier one, so
// trades reach connected clients.
func New(address string, port int, eng *engine.Engine) *Server {
	s := &Server{
		address:  address,
		port:     port,
		engine:   eng,
		pool:     workerpool.New(defaultWorkers),
		sessions: make(map[string]net.Conn),
	}
	eng.SetTradeCallback(s.onTrade)
	return s
}

func (s *Server) onTrade(t trade.Trade) {
	maker, taker := tradeReports(t)
	s.broadcast(maker)
	s.broadcast(taker)
}

// Run blocks, serving connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("transport: unable to start listener")
		return
	}
	// Closing the listener on cancellation unblocks a pending Accept.
	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("transport: unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	log.Info().Str("address", listener.Addr().String()).Msg("transport: server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("transport: error accepting client")
				continue
			}
			log.Info().Str("remote", conn.RemoteAddr().String()).Msg("transport: client connected")
			s.addSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

// Shutdown stops the running server.
func (s *Server) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrInvalidMessageType
	}

	defer func() {
		s.removeSession(conn)
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("transport: close error")
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(defaultConnIdle)); err != nil {
		log.Error().Err(err).Msg("transport: failed setting deadline")
		return nil
	}

	buf := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buf)
		if err != nil {
			log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("transport: connection closed")
			return nil
		}

		msg, err := ParseMessage(buf[:n])
		if err != nil {
			log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("transport: parse error")
			s.sendReport(conn, Report{Kind: ErrorReport, ErrStr: err.Error()})
			s.pool.AddTask(conn)
			return nil
		}

		s.handleMessage(conn, msg)
		s.pool.AddTask(conn)
	}
	return nil
}

func (s *Server) handleMessage(conn net.Conn, msg Message) {
	switch m := msg.(type) {
	case NewOrderMessage:
		id := s.engine.SubmitOrder(engine.SubmitRequest{
			ClientOrderID: m.ClientOrderID,
			Symbol:        m.Symbol,
			Type:          m.OrderType,
			Side:          m.Side,
			Quantity:      m.Quantity,
			Price:         m.Price,
			StopPrice:     m.StopPrice,
		})
		if id == "" {
			s.sendReport(conn, Report{Kind: ErrorReport, Symbol: m.Symbol, ErrStr: "order rejected"})
			return
		}
		o, _ := s.engine.GetOrder(id)
		s.sendReport(conn, Report{
			Kind:      AckReport,
			OrderID:   id,
			Symbol:    m.Symbol,
			Side:      m.Side,
			Status:    o.Status,
			Price:     o.Price,
			Quantity:  o.Quantity,
			FilledQty: o.FilledQty,
		})

	case CancelOrderMessage:
		if _, ok := s.engine.GetOrder(m.OrderID); !ok {
			s.sendReport(conn, Report{Kind: ErrorReport, OrderID: m.OrderID, ErrStr: engine.ErrOrderNotFound.Error()})
			return
		}
		if !s.engine.CancelOrder(m.OrderID) {
			s.sendReport(conn, Report{Kind: ErrorReport, OrderID: m.OrderID, ErrStr: "cancel failed: order already terminal"})
			return
		}
		s.sendReport(conn, Report{Kind: AckReport, OrderID: m.OrderID, Status: types.Cancelled})

	case BookSnapshotMessage:
		book, ok := s.engine.GetOrderBook(m.Symbol)
		if !ok {
			s.sendReport(conn, Report{Kind: ErrorReport, Symbol: m.Symbol, ErrStr: "unknown symbol"})
			return
		}
		bid, haveBid, ask, haveAsk := book.GetBBO()
		status := types.Active
		if !haveBid && !haveAsk {
			status = types.Pending
		}
		s.sendReport(conn, Report{
			Kind:     AckReport,
			Symbol:   m.Symbol,
			Status:   status,
			Price:    bid,
			Quantity: ask,
		})

	case BaseMessage:
		// Heartbeat: no response required.
	}
}

func (s *Server) sendReport(conn net.Conn, r Report) {
	if _, err := conn.Write(r.Serialize()); err != nil {
		log.Error().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("transport: write error")
	}
}

func (s *Server) broadcast(r Report) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	buf := r.Serialize()
	for addr, conn := range s.sessions {
		if _, err := conn.Write(buf); err != nil {
			log.Error().Err(err).Str("remote", addr).Msg("transport: broadcast write error")
		}
	}
}

func (s *Server) addSession(conn net.Conn) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[conn.RemoteAddr().String()] = conn
}

func (s *Server) removeSession(conn net.Conn) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.sessions, conn.RemoteAddr().String())
}
