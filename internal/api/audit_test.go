package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/nerrad567/netfleet-core/internal/audit"
	"github.com/nerrad567/netfleet-core/internal/vendor"
)

// auditEntries waits until the trail holds want entries matching f. Entries
// are written after the handler returns, so they can trail the response.
func auditEntries(t *testing.T, env *testEnv, f audit.Filter, want int) []audit.Entry {
	t.Helper()
	var res *audit.ListResult
	waitFor(t, "audit entries", func() bool {
		var err error
		res, err = env.audit.List(context.Background(), f)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		return res.Total >= want
	})
	if res.Total != want {
		t.Fatalf("audit total = %d, want %d: %+v", res.Total, want, res.Entries)
	}
	return res.Entries
}

func TestAuditRecordsMutatingCalls(t *testing.T) {
	env := newTestEnv(t, []vendor.Device{coreSwitch()})
	found := discoverAll(t, env)
	id := found[0].String()
	base := "/api/v1/devices/" + id

	rejected, _ := env.do(t, http.MethodPost, base+"/configure", configureRequest{})
	if rejected.StatusCode != http.StatusConflict {
		t.Fatalf("configure status = %d, want 409", rejected.StatusCode)
	}
	if resp, body := env.do(t, http.MethodPost, base+"/adopt", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("adopt status = %d: %s", resp.StatusCode, body)
	}
	env.do(t, http.MethodGet, base, nil)

	entries := auditEntries(t, env, audit.Filter{}, 3)

	tests := []struct {
		action   string
		entity   string
		entityID string
		status   int
		outcome  audit.Outcome
	}{
		{"adopt", "device", id, http.StatusOK, audit.OutcomeCommitted},
		{"configure", "device", id, http.StatusConflict, audit.OutcomeRejected},
		{"discover", "fleet", "", http.StatusOK, audit.OutcomeCommitted},
	}
	for i, tt := range tests {
		got := entries[i]
		if got.Action != tt.action || got.EntityType != tt.entity || got.EntityID != tt.entityID {
			t.Errorf("entry %d = %s %s %q, want %s %s %q", i,
				got.Action, got.EntityType, got.EntityID, tt.action, tt.entity, tt.entityID)
		}
		if got.Status != tt.status || got.Outcome != tt.outcome {
			t.Errorf("entry %d status = %d %s, want %d %s", i, got.Status, got.Outcome, tt.status, tt.outcome)
		}
		if got.CorrelationID == "" {
			t.Errorf("entry %d has no correlation id", i)
		}
	}
	if entries[1].CorrelationID != rejected.Header.Get(HeaderCorrelationID) {
		t.Errorf("configure correlation = %s, want response header %s",
			entries[1].CorrelationID, rejected.Header.Get(HeaderCorrelationID))
	}
}

func TestAuditRecordsCreatedConnection(t *testing.T) {
	env := newTestEnv(t, []vendor.Device{coreSwitch(), gateway()})
	found := discoverAll(t, env)

	resp, body := env.do(t, http.MethodPost, "/api/v1/connections", uplink(found[0], found[1]))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("connect status = %d: %s", resp.StatusCode, body)
	}
	created := decode[struct {
		ID string `json:"id"`
	}](t, body)

	entries := auditEntries(t, env, audit.Filter{Action: "connect"}, 1)
	if entries[0].EntityID != created.ID {
		t.Errorf("connect entity = %s, want %s", entries[0].EntityID, created.ID)
	}
}

func TestListAuditEndpoint(t *testing.T) {
	env := newTestEnv(t, []vendor.Device{coreSwitch()})
	found := discoverAll(t, env)
	rejected, _ := env.do(t, http.MethodPost, "/api/v1/devices/"+found[0].String()+"/configure", configureRequest{})
	corr := rejected.Header.Get(HeaderCorrelationID)
	auditEntries(t, env, audit.Filter{}, 2)

	tests := []struct {
		name   string
		query  string
		status int
		total  int
	}{
		{"all", "", http.StatusOK, 2},
		{"by outcome", "?outcome=rejected", http.StatusOK, 1},
		{"by correlation", "?correlation_id=" + corr, http.StatusOK, 1},
		{"by entity type", "?entity_type=fleet", http.StatusOK, 1},
		{"paged", "?limit=1&offset=1", http.StatusOK, 2},
		{"unknown outcome", "?outcome=maybe", http.StatusBadRequest, 0},
		{"bad limit", "?limit=ten", http.StatusBadRequest, 0},
		{"negative offset", "?offset=-1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodGet, "/api/v1/audit"+tt.query, nil)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.status, body)
			}
			if tt.status != http.StatusOK {
				return
			}
			res := decode[audit.ListResult](t, body)
			if res.Total != tt.total {
				t.Errorf("total = %d, want %d", res.Total, tt.total)
			}
		})
	}
}

func TestListAuditWithoutTrail(t *testing.T) {
	env := newTestEnv(t, nil, withoutAudit())
	if resp, _ := env.do(t, http.MethodPost, "/api/v1/devices/discover", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("discover status = %d, want 200", resp.StatusCode)
	}
	resp, _ := env.do(t, http.MethodGet, "/api/v1/audit", nil)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}
}

func TestAuditRecordsRejectedProjectionWrite(t *testing.T) {
	env := newTestEnv(t, nil)
	if resp, _ := env.do(t, http.MethodPost, "/api/v1/projection/write", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("write status = %d, want 400 without an output root", resp.StatusCode)
	}
	entries := auditEntries(t, env, audit.Filter{Action: "write_projection"}, 1)
	if entries[0].EntityType != "projection" || entries[0].Outcome != audit.OutcomeRejected {
		t.Errorf("write_projection entry = %+v, want a rejected projection entry", entries[0])
	}
}
