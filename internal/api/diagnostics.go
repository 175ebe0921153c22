package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jmgilman/oceanctl/internal/model"
)

// Jobs lists the diagnostic jobs known to the service.
func (c *Client) Jobs(ctx context.Context) ([]model.Job, error) {
	raw, err := c.send(ctx, request{method: http.MethodGet, path: "diagnostics"})
	if err != nil {
		return nil, err
	}
	wire, err := decodeList[wireJob](raw, "jobs", "items")
	if err != nil {
		return nil, fmt.Errorf("%w: decode jobs: %w", ErrServer, err)
	}
	out := make([]model.Job, 0, len(wire))
	for _, w := range wire {
		j, err := w.job()
		if err != nil {
			return nil, fmt.Errorf("decode jobs: %w", err)
		}
		out = append(out, j)
	}
	return out, nil
}

// Job returns the current state of job id.
func (c *Client) Job(ctx context.Context, id string) (*model.Job, error) {
	raw, err := c.send(ctx, request{method: http.MethodGet, path: "diagnostics/jobs/" + url.PathEscape(id)})
	if err != nil {
		return nil, err
	}
	var w wireJob
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: decode job: %w", ErrServer, err)
	}
	j, err := w.job()
	if err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if j.ID == "" {
		j.ID = id
	}
	return &j, nil
}

// Submit posts params to the diagnostic endpoint and returns the new job id.
func (c *Client) Submit(ctx context.Context, endpoint string, params any) (string, error) {
	var resp model.SubmitResponse
	path := "diagnostics/" + url.PathEscape(endpoint)
	if err := c.do(ctx, request{method: http.MethodPost, path: path, body: params}, &resp); err != nil {
		return "", err
	}
	if resp.ID() == "" {
		return "", fmt.Errorf("%w: submit response carried no job id", ErrServer)
	}
	return resp.ID(), nil
}
