package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"attendclient/internal/model"
)

// StaticProvider returns a configured fix. A nil Fix reports
// PositionUnavailable.
type StaticProvider struct {
	Fix *model.Coordinates
}

func (p StaticProvider) Position(ctx context.Context, _ Options) (model.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return model.Coordinates{}, err
	}
	if p.Fix == nil {
		return model.Coordinates{}, &Error{Code: PositionUnavailable, Err: errors.New("no position configured")}
	}
	return *p.Fix, nil
}

// UnsupportedProvider is used on hosts without any location source.
type UnsupportedProvider struct{}

func (UnsupportedProvider) Position(context.Context, Options) (model.Coordinates, error) {
	return model.Coordinates{}, &Error{Code: Unsupported, Err: errors.New("geolocation is not supported on this host")}
}

// HTTPProvider resolves the host's position through an IP geolocation
// service. It understands the ip-api.com and ipapi.co response shapes.
// The fix is coarse, so Accuracy is reported as configured.
type HTTPProvider struct {
	URL      string
	Accuracy float64
	Client   *http.Client
}

type lookupResponse struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Error     bool     `json:"error"`
	Reason    string   `json:"reason"`
}

func (p HTTPProvider) Position(ctx context.Context, _ Options) (model.Coordinates, error) {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return model.Coordinates{}, &Error{Code: PositionUnavailable, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return model.Coordinates{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return model.Coordinates{}, &Error{Code: PermissionDenied, Err: fmt.Errorf("lookup service answered %s", resp.Status)}
	case resp.StatusCode >= 300:
		return model.Coordinates{}, &Error{Code: PositionUnavailable, Err: fmt.Errorf("lookup service answered %s", resp.Status)}
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Coordinates{}, &Error{Code: PositionUnavailable, Err: fmt.Errorf("decode lookup response: %w", err)}
	}
	if body.Error || strings.EqualFold(body.Status, "fail") {
		reason := body.Message
		if reason == "" {
			reason = body.Reason
		}
		return model.Coordinates{}, &Error{Code: PositionUnavailable, Err: errors.New(reason)}
	}

	lat, lon := body.Lat, body.Lon
	if lat == nil || lon == nil {
		lat, lon = body.Latitude, body.Longitude
	}
	if lat == nil || lon == nil {
		return model.Coordinates{}, &Error{Code: PositionUnavailable, Err: errors.New("lookup response has no coordinates")}
	}
	return model.Coordinates{Latitude: *lat, Longitude: *lon, Accuracy: p.Accuracy}, nil
}

// Settings selects and configures a provider.
type Settings struct {
	Kind      string // static, http or none
	Latitude  float64
	Longitude float64
	Accuracy  float64
	LookupURL string
}

// NewProvider builds the provider named by s.Kind.
func NewProvider(s Settings) (Provider, error) {
	switch strings.ToLower(s.Kind) {
	case "", "static":
		var fix *model.Coordinates
		if s.Latitude != 0 || s.Longitude != 0 {
			fix = &model.Coordinates{Latitude: s.Latitude, Longitude: s.Longitude, Accuracy: s.Accuracy}
		}
		return StaticProvider{Fix: fix}, nil
	case "http":
		if s.LookupURL == "" {
			return nil, errors.New("geo: http provider needs a lookup url")
		}
		return HTTPProvider{URL: s.LookupURL, Accuracy: s.Accuracy}, nil
	case "none", "unsupported":
		return UnsupportedProvider{}, nil
	default:
		return nil, fmt.Errorf("geo: unknown provider %q", s.Kind)
	}
}
