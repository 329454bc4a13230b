package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/agent"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/events"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/game"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/metrics"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/registry"
	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	reg := registry.New(registry.NewMemoryStore(), events.NoopPublisher{}, logger)
	svc, err := service.New(reg, service.Config{ExplorationRate: 0, ActivateOnPublish: true}, metrics.NewCollector(logger), logger)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	bundle := service.Bundle{
		Translator: game.NewTranslator(),
		Space:      game.NewActionSpace(),
		Rewarder:   game.NewRewardCalculator(),
	}
	agentCfg := agent.DefaultConfig()
	agentCfg.Seed = 1
	if err := svc.RegisterAgent(context.Background(), "npc-1", bundle, agent.VariantTabular, agentCfg); err != nil {
		t.Fatalf("register agent: %v", err)
	}
	return NewServer(svc, logger)
}

func observationPayload() map[string]any {
	return map[string]any{
		"npc_id": "npc-1",
		"health": 0.8,
		"hunger": 0.3,
		"energy": 1.0,
		"personality": map[string]any{
			"greed": 0.5, "sociability": 0.5, "laziness": 0.5, "ambition": 0.5,
			"forgiveness": 0.5, "courage": 0.5, "analytical": 0.5, "impulsiveness": 0.5,
		},
		"social_standing": 0.5,
		"threat_level":    0.2,
		"food_stock":      0.4,
		"material_stock":  0.2,
		"alive":           true,
	}
}

func doJSON(t *testing.T, server *Server, method, url string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, url, body)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	server.Routes().ServeHTTP(res, req)
	return res
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)

	res := doJSON(t, server, http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestDecideEndpoint(t *testing.T) {
	server := newTestServer(t)

	res := doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/decisions", map[string]any{
		"observation": observationPayload(),
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var decision service.Decision
	if err := json.Unmarshal(res.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if decision.AgentID != "npc-1" {
		t.Errorf("unexpected agent id %q", decision.AgentID)
	}
	if decision.DomainAction == "" {
		t.Error("decision missing domain action")
	}
	if decision.VersionID != 1 {
		t.Errorf("expected version 1, got %d", decision.VersionID)
	}
}

func TestDecideEndpointErrors(t *testing.T) {
	server := newTestServer(t)

	// Missing observation.
	res := doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/decisions", map[string]any{})
	if res.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing observation, got %d", res.Code)
	}

	// Malformed observation fails translation.
	payload := observationPayload()
	payload["health"] = 5.0
	res = doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/decisions", map[string]any{"observation": payload})
	if res.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid observation, got %d", res.Code)
	}

	// Unknown agent.
	res = doJSON(t, server, http.MethodPost, "/api/v1/agents/ghost/decisions", map[string]any{
		"observation": observationPayload(),
	})
	if res.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown agent, got %d", res.Code)
	}

	// Out-of-range exploration rate.
	res = doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/decisions", map[string]any{
		"observation":      observationPayload(),
		"exploration_rate": 2.0,
	})
	if res.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad exploration rate, got %d", res.Code)
	}
}

func TestExperienceEndpoint(t *testing.T) {
	server := newTestServer(t)

	decideRes := doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/decisions", map[string]any{
		"observation": observationPayload(),
	})
	if decideRes.Code != http.StatusOK {
		t.Fatalf("decide failed: %d", decideRes.Code)
	}
	var decision service.Decision
	if err := json.Unmarshal(decideRes.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode decision: %v", err)
	}

	res := doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/experience", map[string]any{
		"prev_state": decision.State,
		"action":     decision.Action,
		"next_state": decision.State,
		"terminal":   false,
	})
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}

	// States without feature vectors make the reward undefined.
	res = doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/experience", map[string]any{
		"prev_state": map[string]any{"key": "a"},
		"action":     0,
		"next_state": map[string]any{"key": "b"},
		"terminal":   false,
	})
	if res.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for reward failure, got %d", res.Code)
	}
}

func TestModelLifecycleEndpoints(t *testing.T) {
	server := newTestServer(t)

	// Registration created and activated version 1.
	res := doJSON(t, server, http.MethodGet, "/api/v1/agents/npc-1/models/active", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var active registry.ModelVersion
	if err := json.Unmarshal(res.Body.Bytes(), &active); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if active.ID != 1 {
		t.Fatalf("expected active version 1, got %d", active.ID)
	}

	// Publish a second version (auto-activated).
	res = doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/models", map[string]any{"source": "offline"})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var published registry.ModelVersion
	if err := json.Unmarshal(res.Body.Bytes(), &published); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if published.Metadata.Source != registry.SourceOffline {
		t.Errorf("expected offline source, got %q", published.Metadata.Source)
	}

	res = doJSON(t, server, http.MethodGet, "/api/v1/agents/npc-1/models", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var versions []registry.ModelVersion
	if err := json.Unmarshal(res.Body.Bytes(), &versions); err != nil {
		t.Fatalf("decode versions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}

	// Explicit activation of version 1, then roll back to version 2.
	res = doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/models/1/activate", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	res = doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/models/rollback", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var rolled registry.ModelVersion
	if err := json.Unmarshal(res.Body.Bytes(), &rolled); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if rolled.ID != 2 {
		t.Errorf("expected rollback to version 2, got %d", rolled.ID)
	}
}

func TestModelEndpointErrors(t *testing.T) {
	server := newTestServer(t)

	res := doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/models/99/activate", nil)
	if res.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown version, got %d", res.Code)
	}

	res = doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/models/not-a-number/activate", nil)
	if res.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad version id, got %d", res.Code)
	}

	// No prior activation history.
	res = doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/models/rollback", nil)
	if res.Code != http.StatusConflict {
		t.Errorf("expected 409 for empty history, got %d", res.Code)
	}

	res = doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/models/prune", nil)
	if res.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing keep parameter, got %d", res.Code)
	}
}

func TestPruneEndpoint(t *testing.T) {
	server := newTestServer(t)

	for i := 0; i < 3; i++ {
		res := doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/models", nil)
		if res.Code != http.StatusCreated {
			t.Fatalf("publish %d failed: %d", i, res.Code)
		}
	}

	res := doJSON(t, server, http.MethodPost, "/api/v1/agents/npc-1/models/prune?keep=1", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	res = doJSON(t, server, http.MethodGet, "/api/v1/agents/npc-1/models", nil)
	var versions []registry.ModelVersion
	if err := json.Unmarshal(res.Body.Bytes(), &versions); err != nil {
		t.Fatalf("decode versions: %v", err)
	}
	if len(versions) != 1 {
		t.Errorf("expected 1 version after prune, got %d", len(versions))
	}
	if versions[0].ID != 4 {
		t.Errorf("expected the newest version to survive, got %d", versions[0].ID)
	}
}

func TestInvalidJSONPayloads(t *testing.T) {
	server := newTestServer(t)

	for _, url := range []string{
		"/api/v1/agents/npc-1/decisions",
		"/api/v1/agents/npc-1/experience",
	} {
		req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader([]byte("{broken")))
		res := httptest.NewRecorder()
		server.Routes().ServeHTTP(res, req)
		if res.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400 for invalid JSON, got %d", url, res.Code)
		}
	}
}
