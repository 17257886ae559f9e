package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dgnsrekt/ais-bridge/internal/mavlink"
	"github.com/dgnsrekt/ais-bridge/internal/vessels"
)

// VesselSource is the read side of the vessel table.
type VesselSource interface {
	Latest() vessels.Latest
	List() []vessels.Vessel
	Get(mmsi uint32) (vessels.Vessel, bool)
}

// LinkStatus reports the upstream connection.
type LinkStatus interface {
	State() mavlink.State
	Addr() string
}

// ClientCounter is implemented by the websocket hub and the SSE broadcaster.
type ClientCounter interface {
	ClientCount() int
}

// SubscriberCounter is implemented by the telemetry registry.
type SubscriberCounter interface {
	Len() int
}

type Server struct {
	vessels     VesselSource
	link        LinkStatus
	subscribers SubscriberCounter
	wsClients   ClientCounter
	sseClients  ClientCounter
	logger      *zap.Logger
}

// Health is the /healthz body.
type Health struct {
	Status           string         `json:"status"`
	Link             string         `json:"link"`
	Upstream         string         `json:"upstream,omitempty"`
	Feed             vessels.Status `json:"feed"`
	Subscribers      int            `json:"subscribers"`
	WebSocketClients int            `json:"websocket_clients"`
	SSEClients       int            `json:"sse_clients"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(source VesselSource, link LinkStatus, subscribers SubscriberCounter, wsClients, sseClients ClientCounter, logger *zap.Logger) *Server {
	return &Server{
		vessels:     source,
		link:        link,
		subscribers: subscribers,
		wsClients:   wsClients,
		sseClients:  sseClients,
		logger:      logger,
	}
}

// GetLatest handles GET /api/latest.
func (s *Server) GetLatest(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.vessels.Latest())
}

// ListVessels handles GET /api/vessels.
func (s *Server) ListVessels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.vessels.List())
}

// GetVessel handles GET /api/vessels/{mmsi}.
func (s *Server) GetVessel(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "mmsi")
	mmsi, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || mmsi == 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid mmsi " + strconv.Quote(raw)})
		return
	}

	vessel, ok := s.vessels.Get(uint32(mmsi))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "vessel " + raw + " not seen"})
		return
	}
	s.writeJSON(w, http.StatusOK, vessel)
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:      "ok",
		Link:        mavlink.StateDisconnected.String(),
		Feed:        s.vessels.Latest().Status,
		Subscribers: s.subscribers.Len(),
	}
	if s.link != nil {
		health.Link = s.link.State().String()
		health.Upstream = s.link.Addr()
	}
	if s.wsClients != nil {
		health.WebSocketClients = s.wsClients.ClientCount()
	}
	if s.sseClients != nil {
		health.SSEClients = s.sseClients.ClientCount()
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}
