package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/netfleet-core/internal/device"
	"github.com/nerrad567/netfleet-core/internal/event"
	"github.com/nerrad567/netfleet-core/internal/ids"
	"github.com/nerrad567/netfleet-core/internal/network"
	"github.com/nerrad567/netfleet-core/internal/orchestrator"
	"github.com/nerrad567/netfleet-core/internal/topology"
	"github.com/nerrad567/netfleet-core/internal/vendor"
)

// stubFleet fails every operation with err. AdoptDevice returns dev
// alongside err so fan-out outcomes can be exercised.
type stubFleet struct {
	Fleet
	dev *device.Device
	err error
}

func (f *stubFleet) DiscoverDevices(context.Context) ([]ids.DeviceID, error) { return nil, f.err }

func (f *stubFleet) AdoptDevice(context.Context, ids.DeviceID) (*device.Device, error) {
	return f.dev, f.err
}

type listResponse struct {
	Devices []deviceView `json:"devices"`
	Count   int          `json:"count"`
}

func discoverAll(t *testing.T, env *testEnv) []ids.DeviceID {
	t.Helper()
	resp, body := env.do(t, http.MethodPost, "/api/v1/devices/discover", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discover status = %d: %s", resp.StatusCode, body)
	}
	return decode[struct {
		Discovered []ids.DeviceID `json:"discovered"`
	}](t, body).Discovered
}

func TestDeviceLifecycle(t *testing.T) {
	env := newTestEnv(t, []vendor.Device{coreSwitch()})
	found := discoverAll(t, env)
	if len(found) != 1 {
		t.Fatalf("discovered = %v, want one device", found)
	}
	base := "/api/v1/devices/" + found[0].String()

	steps := []struct {
		name    string
		method  string
		path    string
		body    any
		status  int
		state   device.State
		version uint64
	}{
		{"get", http.MethodGet, base, nil, http.StatusOK, device.StateDiscovered, 1},
		{"configure too early", http.MethodPost, base + "/configure", configureRequest{}, http.StatusConflict, 0, 0},
		{"adopt", http.MethodPost, base + "/adopt", nil, http.StatusOK, device.StateAdopting, 2},
		{"provision", http.MethodPost, base + "/provision", provisionRequest{Model: "USW-24-POE", FirmwareVersion: "7.1.26"}, http.StatusOK, device.StateProvisioned, 4},
		{"rename", http.MethodPost, base + "/rename", renameRequest{Name: "Core-Sw-A"}, http.StatusOK, device.StateProvisioned, 5},
		{"fail", http.MethodPost, base + "/fail", failureRequest{Reason: "fan failure"}, http.StatusOK, device.StateError, 6},
		{"recover", http.MethodPost, base + "/recover", nil, http.StatusOK, device.StateDiscovered, 7},
		{"decommission", http.MethodPost, base + "/decommission", nil, http.StatusOK, device.StateDecommissioned, 8},
		{"adopt after decommission", http.MethodPost, base + "/adopt", nil, http.StatusConflict, 0, 0},
	}
	for _, tt := range steps {
		resp, body := env.do(t, tt.method, tt.path, tt.body)
		if resp.StatusCode != tt.status {
			t.Fatalf("%s: status = %d, want %d: %s", tt.name, resp.StatusCode, tt.status, body)
		}
		if tt.status != http.StatusOK {
			continue
		}
		var got deviceView
		if tt.method == http.MethodGet {
			got = decode[deviceView](t, body)
		} else {
			got = decode[operationResponse](t, body).Device
		}
		if got.State != tt.state || got.Version != tt.version {
			t.Errorf("%s: state=%s version=%d, want %s/%d", tt.name, got.State, got.Version, tt.state, tt.version)
		}
	}

	resp, body := env.do(t, http.MethodPost, base+"/replay", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay status = %d: %s", resp.StatusCode, body)
	}
	if got := decode[operationResponse](t, body).Device; got.Name != "Core-Sw-A" || !got.Terminal {
		t.Errorf("replayed device = %+v, want renamed and terminal", got)
	}
}

func TestListDevicesFilter(t *testing.T) {
	env := newTestEnv(t, []vendor.Device{coreSwitch(), gateway()})
	found := discoverAll(t, env)
	env.do(t, http.MethodPost, "/api/v1/devices/"+found[0].String()+"/adopt", nil)

	tests := []struct {
		query  string
		status int
		count  int
	}{
		{"", http.StatusOK, 2},
		{"?state=adopting", http.StatusOK, 1},
		{"?state=discovered", http.StatusOK, 1},
		{"?state=provisioned", http.StatusOK, 0},
		{"?state=sleeping", http.StatusBadRequest, 0},
		{"?type=gateway", http.StatusOK, 1},
		{"?type=switch&state=adopting", http.StatusOK, 1},
		{"?type=switch&state=discovered", http.StatusOK, 0},
		{"?type=access_point", http.StatusOK, 0},
		{"?type=router", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, body := env.do(t, http.MethodGet, "/api/v1/devices"+tt.query, nil)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.status == http.StatusOK {
				if got := decode[listResponse](t, body); got.Count != tt.count || len(got.Devices) != tt.count {
					t.Errorf("count = %d, want %d", got.Count, tt.count)
				}
			}
		})
	}
}

func TestDeviceRequestErrors(t *testing.T) {
	env := newTestEnv(t, []vendor.Device{coreSwitch()})
	id := discoverAll(t, env)[0].String()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed id", http.MethodGet, "/api/v1/devices/xyz", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown id", http.MethodGet, "/api/v1/devices/" + ids.NewDeviceID().String(), nil, http.StatusNotFound, ErrCodeNotFound},
		{"unknown field", http.MethodPost, "/api/v1/devices/" + id + "/rename", `{"nmae":"x"}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"not json", http.MethodPost, "/api/v1/devices/" + id + "/rename", `name=x`, http.StatusBadRequest, ErrCodeBadRequest},
		{"empty name", http.MethodPost, "/api/v1/devices/" + id + "/rename", renameRequest{}, http.StatusBadRequest, ErrCodeValidation},
		{"unknown adopt", http.MethodPost, "/api/v1/devices/" + ids.NewDeviceID().String() + "/adopt", nil, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.status, body)
			}
			if got := decode[Error](t, body); got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
		})
	}
}

func TestFanoutFailureIsWarning(t *testing.T) {
	meta := event.NewMetadata()
	dev, _, err := device.Discover(meta, network.MustParseMAC("00:11:22:33:44:55"), device.TypeSwitch, nil, "Core-Sw-1")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	fleet := &stubFleet{
		dev: dev,
		err: &orchestrator.FanoutError{System: "unifi", Op: "adopt", DeviceID: dev.ID, Err: context.DeadlineExceeded},
	}
	srv, err := New(Deps{Logger: testLogger(), Fleet: fleet, Graph: topology.NewGraph()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/devices/"+dev.ID.String()+"/adopt", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	got := decode[operationResponse](t, rec.Body.Bytes())
	if got.Device.ID != dev.ID || len(got.Warnings) != 1 || !strings.Contains(got.Warnings[0], "unifi") {
		t.Errorf("response = %+v, want the device with one unifi warning", got)
	}
}

func TestDiscoverAndProvisionReport(t *testing.T) {
	env := newTestEnv(t, []vendor.Device{coreSwitch(), gateway()})

	resp, body := env.do(t, http.MethodPost, "/api/v1/devices/discover-and-provision", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	report := decode[orchestrator.BatchReport](t, body)
	if len(report.Discovered) != 2 || len(report.Adopted) != 2 || len(report.Failures) != 0 {
		t.Errorf("report = %+v, want two discovered and adopted, no failures", report)
	}
	if report.CorrelationID.String() != resp.Header.Get(HeaderCorrelationID) {
		t.Errorf("report correlation = %s, header = %s", report.CorrelationID, resp.Header.Get(HeaderCorrelationID))
	}
}
