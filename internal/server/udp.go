package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/RaisinBrand/CedarsApp/internal/config"
	"github.com/RaisinBrand/CedarsApp/internal/ingest"
	"github.com/RaisinBrand/CedarsApp/internal/metrics"
	"github.com/RaisinBrand/CedarsApp/internal/protocol"
)

// UDPServer receives sensor datagrams and feeds them to the ingest handler.
// Packets are handled on the receive goroutine, which is the only store writer.
type UDPServer struct {
	conn    *net.UDPConn
	config  *config.ServerConfig
	logger  *slog.Logger
	handler ingest.Handler
	metrics *metrics.Metrics
	notify  func()

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Counters
	packetsReceived uint64
	packetsAccepted uint64
	lengthErrors    uint64
	parseErrors     uint64
	lastPacketAt    time.Time
	mu              sync.RWMutex
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
	truncated  bool // datagram was larger than the read buffer
}

// Pause after an unexpected read error before reading again
const readErrorBackoff = 100 * time.Millisecond

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, handler ingest.Handler, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		config:  cfg,
		logger:  logger,
		handler: handler,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetNotifier registers fn to be called after every accepted packet.
// fn must not block. It has to be set before Start.
func (s *UDPServer) SetNotifier(fn func()) {
	s.notify = fn
}

// Start binds the UDP socket and begins receiving packets
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.config.UDPAddress())
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", s.conn.LocalAddr().String()),
		slog.String("mode", s.handler.Mode()),
		slog.Int("capacity", s.handler.Store().Cap()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound local address, or nil before Start
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the UDP server
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	// Closing the socket unblocks a pending read
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	s.wg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_accepted", stats.PacketsAccepted),
		slog.Uint64("length_errors", stats.LengthErrors),
		slog.Uint64("parse_errors", stats.ParseErrors),
	)

	return nil
}

// receiveLoop is the main packet receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()

	// One spare byte detects datagrams larger than BufferSize
	buffer := make([]byte, s.config.BufferSize+1)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
		}

		// Periodic deadline so cancellation is observed while idle
		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
			if !s.waitAfterReadError() {
				return
			}
			continue
		}

		// Buffer is reused by the next read
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		s.handlePacket(&incomingPacket{
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
			truncated:  n > s.config.BufferSize,
		})
	}
}

// waitAfterReadError sleeps for readErrorBackoff so a persistent socket error
// does not spin the loop. It returns false if the server is stopping.
func (s *UDPServer) waitAfterReadError() bool {
	timer := time.NewTimer(readErrorBackoff)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// handlePacket writes one packet to the store or records why it was dropped
func (s *UDPServer) handlePacket(packet *incomingPacket) {
	s.mu.Lock()
	s.packetsReceived++
	s.lastPacketAt = packet.timestamp
	s.mu.Unlock()
	s.metrics.RecordPacketReceived(len(packet.data))

	if s.logger.Enabled(s.ctx, slog.LevelDebug) {
		s.logger.Debug("UDP packet",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("packet_size", len(packet.data)),
			slog.String("payload_hex", hex.EncodeToString(packet.data)),
		)
	}

	var err error
	if packet.truncated {
		err = fmt.Errorf("%w: datagram exceeds %d-byte read buffer", protocol.ErrLengthMismatch, s.config.BufferSize)
	} else {
		err = s.handler.Handle(packet.data)
	}

	if err != nil {
		reason := rejectReason(err)

		s.mu.Lock()
		switch reason {
		case metrics.ReasonLength:
			s.lengthErrors++
		default:
			s.parseErrors++
		}
		s.mu.Unlock()
		s.metrics.RecordPacketRejected(reason)

		s.logger.Warn("Packet rejected",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("packet_size", len(packet.data)),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.packetsAccepted++
	s.mu.Unlock()
	s.metrics.RecordPacketAccepted(s.handler.Store().Len())

	if s.notify != nil {
		s.notify()
	}
}

func rejectReason(err error) string {
	if errors.Is(err, protocol.ErrLengthMismatch) {
		return metrics.ReasonLength
	}
	return metrics.ReasonParse
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ServerStatistics{
		Mode:            s.handler.Mode(),
		PacketsReceived: s.packetsReceived,
		PacketsAccepted: s.packetsAccepted,
		LengthErrors:    s.lengthErrors,
		ParseErrors:     s.parseErrors,
		StoreLength:     s.handler.Store().Len(),
		StoreCapacity:   s.handler.Store().Cap(),
	}
	if !s.lastPacketAt.IsZero() {
		last := s.lastPacketAt
		stats.LastPacketAt = &last
	}
	return stats
}

// ServerStatistics represents ingestion counters
type ServerStatistics struct {
	Mode            string     `json:"mode"`
	PacketsReceived uint64     `json:"packets_received"`
	PacketsAccepted uint64     `json:"packets_accepted"`
	LengthErrors    uint64     `json:"length_errors"`
	ParseErrors     uint64     `json:"parse_errors"`
	StoreLength     int        `json:"store_length"`
	StoreCapacity   int        `json:"store_capacity"`
	LastPacketAt    *time.Time `json:"last_packet_at,omitempty"`
}
