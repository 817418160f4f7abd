// Package entrypoint triggers pipelines from the outside world: HTTP
// routes and cron schedules. A trigger seeds a fresh registry from its
// source, runs the pipeline and renders the outcome.
package entrypoint

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cascadeflow/cascade/flow"
)

// ResponseKey is the reserved registry key an HTTP-triggered pipeline
// writes its response to: a keyed map with optional "status" (int,
// defaults to 200) and "body" (rendered as JSON).
const ResponseKey = "response"

// HTTPTrigger binds one route to a pipeline.
type HTTPTrigger struct {
	Method string
	Path   string
	Action flow.Action
	Config flow.Config
}

// Register adds the route to the engine. Each request runs the pipeline on
// a fresh registry seeded with the request data under "request":
// "request.method", "request.path", "request.params.<name>",
// "request.query.<name>", "request.headers.<name>" and, for requests with a
// JSON body, "request.body".
func (t HTTPTrigger) Register(g *gin.Engine) {
	g.Handle(t.Method, t.Path, t.handle)
}

func (t HTTPTrigger) handle(c *gin.Context) {
	data := flow.CreateWith(t.Config, flow.Values{"request": t.requestValues(c)})

	out, err := flow.ExecuteAsync(c.Request.Context(), t.Action, data)
	if err != nil {
		t.Config.Logger().Error("pipeline execution failed",
			"action", t.Action.Name(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "pipeline execution failed"})
		return
	}
	render(c, out)
}

func (t HTTPTrigger) requestValues(c *gin.Context) map[string]any {
	params := make(map[string]any, len(c.Params))
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}
	query := make(map[string]any)
	for name, vals := range c.Request.URL.Query() {
		if len(vals) > 0 {
			query[name] = vals[0]
		}
	}
	headers := make(map[string]any)
	for name := range c.Request.Header {
		headers[name] = c.GetHeader(name)
	}
	req := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"params":  params,
		"query":   query,
		"headers": headers,
	}
	var body any
	if c.Request.Body != nil && c.ShouldBindJSON(&body) == nil {
		req["body"] = body
	}
	return req
}

func render(c *gin.Context, out flow.ActionData) {
	raw, err := out.Get(ResponseKey)
	if err != nil {
		c.Status(http.StatusNoContent)
		return
	}
	resp, ok := raw.(map[string]any)
	if !ok {
		c.JSON(http.StatusOK, raw)
		return
	}
	status := http.StatusOK
	if s, ok := resp["status"].(int); ok {
		status = s
	}
	c.JSON(status, resp["body"])
}
