package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"

	"github.com/cascadeflow/cascade/flow"
)

// HTTPConfig tunes the shared resty client.
type HTTPConfig struct {
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	Debug       bool          `yaml:"debug" default:"false"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
}

// Request describes one HTTP call made by an HTTPRequest data source.
type Request struct {
	URL         string            `yaml:"url" validate:"required"`
	Method      string            `yaml:"method" default:"GET" validate:"oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Headers     map[string]string `yaml:"headers"`
	QueryParams map[string]string `yaml:"query_parameters"`
	Body        map[string]any    `yaml:"body"`
	// TargetKey is the registry key the response is stored under.
	TargetKey string `yaml:"target_key" default:"response"`
}

// NewHTTPClient builds a resty client from a validated config.
func NewHTTPClient(cfg HTTPConfig) (*resty.Client, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("applying http config defaults: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid http config: %w", err)
	}
	return resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMS) * time.Millisecond).
		SetDebug(cfg.Debug), nil
}

// HTTPRequest is a data source executing one HTTP call and registering the
// response under the request's target key as a keyed map with "status_code",
// "is_error" and "body".
func HTTPRequest(client *resty.Client, req Request) *flow.DataSource {
	if err := defaults.Set(&req); err != nil {
		panic(fmt.Sprintf("request defaults: %v", err))
	}
	call := func(ctx context.Context, data flow.ActionData) (flow.Values, error) {
		if err := validator.New().Struct(req); err != nil {
			return nil, fmt.Errorf("%w: %v", flow.ErrNotProperlyConfigured, err)
		}
		body := map[string]any{}
		errBody := map[string]any{}
		resp, err := client.R().
			SetContext(ctx).
			SetHeaders(req.Headers).
			SetQueryParams(req.QueryParams).
			SetBody(req.Body).
			SetResult(&body).
			SetError(&errBody).
			Execute(req.Method, req.URL)
		if err != nil {
			return nil, fmt.Errorf("http request to %s: %w", req.URL, err)
		}
		result := body
		if resp.IsError() {
			result = errBody
		}
		return flow.Values{req.TargetKey: map[string]any{
			"status":      resp.Status(),
			"status_code": resp.StatusCode(),
			"is_error":    resp.IsError(),
			"body":        result,
		}}, nil
	}
	name := fmt.Sprintf("HTTPRequest[%s %s]", req.Method, req.URL)
	return flow.NewDataSource(name, flow.KeySignature(req.TargetKey)).
		WithGet(func(data flow.ActionData) (flow.Values, error) {
			return call(context.Background(), data)
		}).
		WithGetAsync(call)
}
