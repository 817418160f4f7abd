package entrypoint

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/cascadeflow/cascade/flow"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func echoPipeline() flow.Action {
	return flow.NewTransformation("Echo", func(data flow.ActionData) (flow.ActionData, error) {
		name, err := data.Get("request.params.name")
		if err != nil {
			return data, err
		}
		greeting, _ := data.Get("request.query.greeting")
		return data.Set(ResponseKey, map[string]any{
			"status": 200,
			"body":   map[string]any{"message": greeting.(string) + ", " + name.(string)},
		}), nil
	})
}

func TestHTTPTrigger_SeedsAndRenders(t *testing.T) {
	g := newEngine()
	HTTPTrigger{Method: http.MethodGet, Path: "/hello/:name", Action: echoPipeline()}.Register(g)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/hello/ada?greeting=hi", nil)
	g.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body["message"] != "hi, ada" {
		t.Errorf("message = %v; want hi, ada", body["message"])
	}
}

func TestHTTPTrigger_JSONBody(t *testing.T) {
	pipeline := flow.NewTransformation("Total", func(data flow.ActionData) (flow.ActionData, error) {
		v, err := data.Get("request.body.amount")
		if err != nil {
			return data, err
		}
		return data.Set(ResponseKey, map[string]any{"body": map[string]any{"amount": v}}), nil
	})

	g := newEngine()
	HTTPTrigger{Method: http.MethodPost, Path: "/orders", Action: pipeline}.Register(g)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"amount": 12.5}`))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "12.5") {
		t.Errorf("body = %s; want the posted amount echoed", w.Body.String())
	}
}

func TestHTTPTrigger_NoResponseKey(t *testing.T) {
	g := newEngine()
	HTTPTrigger{Method: http.MethodGet, Path: "/fire", Action: flow.Chain()}.Register(g)

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fire", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d; want 204", w.Code)
	}
}

func TestHTTPTrigger_PipelineError(t *testing.T) {
	failing := flow.NewEvent("Boom", func(flow.ActionData) error {
		return flow.ErrConditionNotMet
	})

	g := newEngine()
	HTTPTrigger{Method: http.MethodGet, Path: "/fail", Action: failing}.Register(g)

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d; want 500", w.Code)
	}
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(flow.Config{})

	_, err := s.Add("not a cron spec", flow.Chain(), nil)
	if err == nil {
		t.Errorf("Add accepted an invalid cron spec")
	}
}

func TestScheduler_AcceptsStandardSpec(t *testing.T) {
	s := NewScheduler(flow.Config{})

	id, err := s.Add("*/5 * * * *", flow.Chain(), flow.Values{"source": "cron"})
	if err != nil {
		t.Fatalf("Add error = %v", err)
	}
	if id == 0 {
		t.Errorf("entry id = 0; want a real entry")
	}
}
