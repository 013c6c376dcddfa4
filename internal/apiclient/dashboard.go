package apiclient

import (
	"context"
	"encoding/json"
	"sort"
)

// ServiceStatus is one line of the system status board.
type ServiceStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// LecturerDashboard returns the lecturer summary as an untyped document; its
// shape belongs to the server and is passed through as-is.
func (c *Client) LecturerDashboard(ctx context.Context) (map[string]any, error) {
	env, err := c.getJSON(ctx, "/dashboard/lecturer")
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := decodeData("GET /dashboard/lecturer", env, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SystemStatus returns the status of each backing service, sorted by name.
// The descriptive "System Status" entry is skipped.
func (c *Client) SystemStatus(ctx context.Context) ([]ServiceStatus, error) {
	env, err := c.getJSON(ctx, "/system/status")
	if err != nil {
		return nil, err
	}
	raw := map[string]json.RawMessage{}
	if err := decodeData("GET /system/status", env, &raw); err != nil {
		return nil, err
	}
	out := make([]ServiceStatus, 0, len(raw))
	for name, v := range raw {
		if name == "System Status" {
			continue
		}
		var status string
		if err := json.Unmarshal(v, &status); err != nil {
			continue
		}
		out = append(out, ServiceStatus{Name: name, Status: status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
