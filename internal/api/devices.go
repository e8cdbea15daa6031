package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/network"
	"github.com/nerrad567/netfleet-core/internal/orchestrator"
)

// deviceView is the JSON form of a device.
type deviceView struct {
	ID              ids.DeviceID              `json:"id"`
	MAC             network.MAC               `json:"mac"`
	Type            device.Type               `json:"type"`
	State           device.State              `json:"state"`
	Name            string                    `json:"name,omitempty"`
	IP              *netip.Addr               `json:"ip,omitempty"`
	VendorID        string                    `json:"vendor_id,omitempty"`
	Model           string                    `json:"model,omitempty"`
	FirmwareVersion string                    `json:"firmware_version,omitempty"`
	Interfaces      []network.InterfaceConfig `json:"interfaces,omitempty"`
	VLANs           []network.VLANConfig      `json:"vlans,omitempty"`
	InventoryRefs   map[string]string         `json:"inventory_refs,omitempty"`
	FailureReason   string                    `json:"failure_reason,omitempty"`
	Terminal        bool                      `json:"terminal"`
	Version         uint64                    `json:"version"`
}

func viewOf(d *device.Device) deviceView {
	return deviceView{
		ID:              d.ID,
		MAC:             d.MAC,
		Type:            d.Type,
		State:           d.State,
		Name:            d.Name,
		IP:              d.IP,
		VendorID:        d.VendorID,
		Model:           d.Model,
		FirmwareVersion: d.FirmwareVersion,
		Interfaces:      d.Interfaces,
		VLANs:           d.VLANs,
		InventoryRefs:   d.InventoryRefs,
		FailureReason:   d.FailureReason,
		Terminal:        d.Terminal(),
		Version:         d.Version,
	}
}

// operationResponse is returned by every device operation. Warnings list
// external calls that failed after the events were committed.
type operationResponse struct {
	Device   deviceView `json:"device"`
	Warnings []string   `json:"warnings,omitempty"`
}

// deviceID parses the {id} URL parameter, writing a 400 on failure.
func deviceID(w http.ResponseWriter, r *http.Request) (ids.DeviceID, bool) {
	id, err := ids.ParseDeviceID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid device id %q", chi.URLParam(r, "id")))
		return id, false
	}
	return id, true
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// respondDevice writes the outcome of a device operation. A FanoutError
// with a committed device is a success with a warning.
func (s *Server) respondDevice(w http.ResponseWriter, r *http.Request, d *device.Device, err error) {
	var fanout *orchestrator.FanoutError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, operationResponse{Device: viewOf(d)})
	case errors.As(err, &fanout) && d != nil:
		s.logger.Warn("operation committed with failed side effect",
			"device_id", d.ID, "correlation_id", correlationFrom(r.Context()), "error", err)
		writeJSON(w, http.StatusOK, operationResponse{Device: viewOf(d), Warnings: []string{err.Error()}})
	default:
		s.writeServiceError(w, r, err)
	}
}

// handleListDevices lists cached devices, optionally filtered by ?state=
// and ?type=.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var (
		byState *device.State
		byType  *device.Type
	)
	q := r.URL.Query()
	if v := q.Get("state"); v != "" {
		st, err := device.ParseState(v)
		if err != nil {
			writeBadRequest(w, fmt.Sprintf("unknown state %q", v))
			return
		}
		byState = &st
	}
	if v := q.Get("type"); v != "" {
		typ, err := device.ParseType(v)
		if err != nil {
			writeBadRequest(w, fmt.Sprintf("unknown device type %q", v))
			return
		}
		byType = &typ
	}

	devices := s.fleet.List()
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		if byState != nil && d.State != *byState {
			continue
		}
		if byType != nil && d.Type != *byType {
			continue
		}
		out = append(out, viewOf(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	d, err := s.fleet.Get(id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(d))
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	found, err := s.fleet.DiscoverDevices(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if found == nil {
		found = []ids.DeviceID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"discovered": found})
}

// handleDiscoverAndProvision returns the batch report. Step failures are
// part of the report, so the status is 200 unless the batch was cut short.
func (s *Server) handleDiscoverAndProvision(w http.ResponseWriter, r *http.Request) {
	report, err := s.fleet.DiscoverAndProvision(r.Context())
	if err != nil && report == nil {
		s.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status, _ = statusFor(err)
	}
	writeJSON(w, status, report)
}

func (s *Server) handleAdopt(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	d, err := s.fleet.AdoptDevice(r.Context(), id)
	s.respondDevice(w, r, d, err)
}

type provisionRequest struct {
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	var req provisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.fleet.MarkProvisioned(r.Context(), id, req.Model, req.FirmwareVersion)
	s.respondDevice(w, r, d, err)
}

func (s *Server) handleSyncInventory(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	d, err := s.fleet.SyncInventory(r.Context(), id)
	s.respondDevice(w, r, d, err)
}

type configureRequest struct {
	Interfaces []network.InterfaceConfig `json:"interfaces"`
	VLANs      []network.VLANConfig      `json:"vlans"`
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	var req configureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.fleet.ConfigureDevice(r.Context(), id, req.Interfaces, req.VLANs)
	s.respondDevice(w, r, d, err)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.fleet.RenameDevice(r.Context(), id, req.Name)
	s.respondDevice(w, r, d, err)
}

type failureRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReportFailure(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	var req failureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := s.fleet.ReportFailure(r.Context(), id, req.Reason)
	s.respondDevice(w, r, d, err)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	d, err := s.fleet.RecoverDevice(r.Context(), id)
	s.respondDevice(w, r, d, err)
}

func (s *Server) handleDecommission(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	d, err := s.fleet.DecommissionDevice(r.Context(), id)
	s.respondDevice(w, r, d, err)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}
	d, err := s.fleet.ReplayEvents(r.Context(), id)
	s.respondDevice(w, r, d, err)
}
