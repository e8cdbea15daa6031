package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/inventory"
	"github.com/nerrad567/netfleet-core/internal/network"
	"github.com/nerrad567/netfleet-core/internal/topology"
)

// handleTopology returns the projected graph. It lags the write side by
// however far the projector is behind the journal.
func (s *Server) handleTopology(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.graph.Snapshot())
}

func (s *Server) handleReachable(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	if _, found := s.graph.Get(id); !found {
		writeNotFound(w, fmt.Sprintf("device %s is not in the topology", id))
		return
	}
	reachable := s.graph.Reachable(id)
	if reachable == nil {
		reachable = []ids.DeviceID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device":    id,
		"neighbors": s.graph.Neighbors(id),
		"reachable": reachable,
	})
}

// connectionView is the JSON form of a live connection.
type connectionView struct {
	ID        ids.ConnectionID   `json:"id"`
	Source    network.Endpoint   `json:"source"`
	Target    network.Endpoint   `json:"target"`
	Type      string             `json:"type"`
	VLAN      *network.VLANID    `json:"vlan,omitempty"`
	Bandwidth *network.LinkSpeed `json:"bandwidth,omitempty"`
}

func connectionViewOf(c inventory.ConnectionInfo) connectionView {
	return connectionView(c)
}

func (s *Server) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	conns := s.fleet.Connections()
	out := make([]connectionView, 0, len(conns))
	for _, c := range conns {
		out = append(out, connectionViewOf(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": out, "count": len(out)})
}

// endpointRequest names a port as "name" or "name#index".
type endpointRequest struct {
	Device ids.DeviceID `json:"device"`
	Port   string       `json:"port"`
}

func (e endpointRequest) endpoint() (network.Endpoint, error) {
	port, err := network.ParsePort(e.Port)
	if err != nil {
		return network.Endpoint{}, err
	}
	return network.Endpoint{Device: e.Device, Port: port}, nil
}

type connectRequest struct {
	Source    endpointRequest    `json:"source"`
	Target    endpointRequest    `json:"target"`
	Type      string             `json:"type"`
	VLAN      *int               `json:"vlan,omitempty"`
	Bandwidth *network.LinkSpeed `json:"bandwidth,omitempty"`
}

func (c connectRequest) spec() (topology.ConnectionSpec, error) {
	spec := topology.ConnectionSpec{
		Type:      topology.ConnectionType(c.Type),
		Bandwidth: c.Bandwidth,
	}
	var err error
	if spec.Source, err = c.Source.endpoint(); err != nil {
		return spec, err
	}
	if spec.Target, err = c.Target.endpoint(); err != nil {
		return spec, err
	}
	if c.VLAN != nil {
		v, err := network.NewVLANID(*c.VLAN)
		if err != nil {
			return spec, err
		}
		spec.VLAN = &v
	}
	return spec, nil
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	spec, err := req.spec()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	id, err := s.fleet.ConnectDevices(r.Context(), spec)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	noteAuditEntity(r.Context(), id.String())
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	id, err := ids.ParseConnectionID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid connection id %q", chi.URLParam(r, "id")))
		return
	}
	if err := s.fleet.DisconnectDevices(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIPAssignments lists inventory address assignments within ?cidr=.
func (s *Server) handleIPAssignments(w http.ResponseWriter, r *http.Request) {
	if s.inventory == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeUnavailable, "no inventory configured")
		return
	}
	cidr, err := network.ParsePrefix(r.URL.Query().Get("cidr"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	assignments, err := s.inventory.GetIPAssignments(r.Context(), cidr)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if assignments == nil {
		assignments = []inventory.IPAssignment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"system":      s.inventory.SystemName(),
		"cidr":        cidr,
		"assignments": assignments,
	})
}
