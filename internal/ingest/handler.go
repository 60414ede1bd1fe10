package ingest

import (
	"encoding/binary"
	"fmt"

	"github.com/RaisinBrand/CedarsApp/internal/config"
	"github.com/RaisinBrand/CedarsApp/internal/protocol"
	"github.com/RaisinBrand/CedarsApp/internal/store"
)

// Handler decodes a payload and writes it to its store. A returned error
// wraps a protocol sentinel and means the store was left unchanged.
type Handler interface {
	Handle(payload []byte) error
	Store() store.Reader
	Mode() string
}

// SnapshotHandler accepts fixed-size binary packets of int32 channel values
type SnapshotHandler struct {
	store    *store.Snapshot
	channels int
	order    binary.ByteOrder
}

// NewSnapshotHandler creates a handler writing to s
func NewSnapshotHandler(s *store.Snapshot, order binary.ByteOrder) *SnapshotHandler {
	return &SnapshotHandler{
		store:    s,
		channels: s.Cap(),
		order:    order,
	}
}

// Handle decodes one snapshot packet and replaces the stored values
func (h *SnapshotHandler) Handle(payload []byte) error {
	values, err := protocol.DecodeSnapshot(payload, h.channels, h.order)
	if err != nil {
		return err
	}
	h.store.Write(values)
	return nil
}

func (h *SnapshotHandler) Store() store.Reader { return h.store }

func (h *SnapshotHandler) Mode() string { return config.ModeSnapshot }

// WindowHandler accepts text packets carrying a single decimal sample
type WindowHandler struct {
	store *store.Window
}

// NewWindowHandler creates a handler appending to w
func NewWindowHandler(w *store.Window) *WindowHandler {
	return &WindowHandler{store: w}
}

// Handle parses one sample and appends it to the window
func (h *WindowHandler) Handle(payload []byte) error {
	v, err := protocol.ParseTextSample(payload)
	if err != nil {
		return err
	}
	h.store.Write(v)
	return nil
}

func (h *WindowHandler) Store() store.Reader { return h.store }

func (h *WindowHandler) Mode() string { return config.ModeWindow }

// New builds the handler and backing store for the configured mode
func New(cfg *config.Config) (Handler, error) {
	switch cfg.Server.Mode {
	case config.ModeSnapshot:
		order, err := protocol.ParseByteOrder(cfg.Server.ByteOrder)
		if err != nil {
			return nil, err
		}
		return NewSnapshotHandler(store.NewSnapshot(cfg.Store.Capacity), order), nil
	case config.ModeWindow:
		return NewWindowHandler(store.NewWindow(cfg.Store.Capacity)), nil
	default:
		return nil, fmt.Errorf("unknown ingestion mode %q", cfg.Server.Mode)
	}
}
