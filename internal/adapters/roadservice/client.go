// Package roadservice implements the roadservice.Client port over HTTP
// against an OSRM-compatible backend, one base URL per city.
package roadservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fleetshuttle/router/internal/domain/geo"
	"github.com/fleetshuttle/router/internal/domain/roadservice"
	"github.com/fleetshuttle/router/internal/domain/shared"
)

const (
	defaultRouteTimeout     = 20 * time.Second
	defaultTableBaseTimeout = 8 * time.Second
	defaultTablePerPoint    = 200 * time.Millisecond
	defaultMaxRetries       = 3
	defaultBackoffBase      = 500 * time.Millisecond
	defaultCircuitThreshold = 5
	defaultCircuitTimeout   = 60 * time.Second
	defaultRateLimitPerSec  = 5
	defaultRateBurst        = 5
)

// cityBackend tracks the per-city rate limiter and circuit breaker so a
// flapping city backend does not degrade every other city's traffic.
type cityBackend struct {
	limiter *rate.Limiter
	breaker *circuitBreaker
}

// HTTPClient implements roadservice.Client against one or more OSRM-
// compatible HTTP backends, keyed by city.
type HTTPClient struct {
	httpClient  *http.Client
	baseURLs    map[string]string
	maxRetries  int
	backoffBase time.Duration
	clock       shared.Clock

	tablePerPoint time.Duration

	mu       sync.Mutex
	backends map[string]*cityBackend
}

// NewHTTPClient builds a client against the given city->baseURL map, with
// an injectable clock for deterministic retry tests (nil uses RealClock).
func NewHTTPClient(baseURLs map[string]string, clock shared.Clock) *HTTPClient {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &HTTPClient{
		httpClient:    &http.Client{Timeout: defaultRouteTimeout},
		baseURLs:      baseURLs,
		maxRetries:    defaultMaxRetries,
		backoffBase:   defaultBackoffBase,
		clock:         clock,
		tablePerPoint: defaultTablePerPoint,
		backends:      make(map[string]*cityBackend),
	}
}

func (c *HTTPClient) backendFor(city string) *cityBackend {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.backends[city]
	if !ok {
		b = &cityBackend{
			limiter: rate.NewLimiter(rate.Limit(defaultRateLimitPerSec), defaultRateBurst),
			breaker: newCircuitBreaker(defaultCircuitThreshold, defaultCircuitTimeout, c.clock),
		}
		c.backends[city] = b
	}
	return b
}

// Route implements roadservice.Client.
func (c *HTTPClient) Route(ctx context.Context, req *roadservice.RouteRequest) (*roadservice.RouteResponse, error) {
	base, ok := c.baseURLs[req.City]
	if !ok {
		return nil, fmt.Errorf("roadservice: no backend configured for city %q", req.City)
	}

	var wire routeWireResponse
	if err := c.call(ctx, req.City, base+"/route", routeWireRequest(req.Coordinates), &wire); err != nil {
		return nil, fmt.Errorf("roadservice route: %w", err)
	}
	if wire.Code != "" && wire.Code != "Ok" {
		return nil, fmt.Errorf("roadservice route: backend returned code %q", wire.Code)
	}
	if len(wire.Routes) == 0 {
		return nil, fmt.Errorf("roadservice route: no route in response")
	}

	buffer := roadservice.TrafficBuffer(req.ShiftHour, 0.60, 0.40, 0.60, 0.40)
	top := wire.Routes[0]

	legs := make([]roadservice.RouteLeg, len(top.Legs))
	for i, leg := range top.Legs {
		steps := make([]roadservice.RouteStep, len(leg.Steps))
		for j, s := range leg.Steps {
			steps[j] = roadservice.RouteStep{Geometry: s.Geometry}
		}
		legs[i] = roadservice.RouteLeg{
			RawDurationS: leg.Duration,
			DurationS:    leg.Duration * (1 + buffer),
			Steps:        steps,
		}
	}

	return &roadservice.RouteResponse{
		DistanceM:       top.Distance,
		RawDurationS:    top.Duration,
		DurationS:       top.Duration * (1 + buffer),
		Legs:            legs,
		EncodedPolyline: top.Geometry,
	}, nil
}

// Table implements roadservice.Client.
func (c *HTTPClient) Table(ctx context.Context, req *roadservice.TableRequest) (*roadservice.TableResponse, error) {
	base, ok := c.baseURLs[req.City]
	if !ok {
		return nil, fmt.Errorf("roadservice: no backend configured for city %q", req.City)
	}

	budget := defaultTableBaseTimeout + time.Duration(len(req.Coordinates))*c.tablePerPoint
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var wire tableWireResponse
	if err := c.call(ctx, req.City, base+"/table", tableWireRequest(req), &wire); err != nil {
		return nil, fmt.Errorf("roadservice table: %w", err)
	}
	if wire.Code != "" && wire.Code != "Ok" {
		return nil, fmt.Errorf("roadservice table: backend returned code %q", wire.Code)
	}

	return &roadservice.TableResponse{
		DistancesM: wire.Distances,
		DurationsS: wire.Durations,
	}, nil
}

// call executes one JSON-over-HTTP round trip behind the city's rate
// limiter, circuit breaker, and retry loop. Never returns partial data: any
// failure short of a clean 2xx decode is surfaced as an error.
func (c *HTTPClient) call(ctx context.Context, city, url string, body, result interface{}) error {
	backend := c.backendFor(city)

	var lastErr error
	err := backend.breaker.Call(func() error {
		for attempt := 0; attempt <= c.maxRetries; attempt++ {
			if err := backend.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}

			jsonBody, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}

			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				lastErr = err
				if attempt >= c.maxRetries || ctx.Err() != nil {
					break
				}
				c.clock.Sleep(c.backoffBase * time.Duration(1<<attempt))
				continue
			}

			respBody, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}

			if resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
				if attempt >= c.maxRetries || ctx.Err() != nil {
					break
				}
				c.clock.Sleep(c.backoffBase * time.Duration(1<<attempt))
				continue
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("non-OK response (%d): %s", resp.StatusCode, string(respBody))
			}

			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
			return nil
		}

		if lastErr != nil {
			return fmt.Errorf("max retries exceeded: %w", lastErr)
		}
		return errors.New("max retries exceeded")
	})

	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("backend unavailable: %w", err)
	}
	return err
}

// --- wire shapes ---

type wireCoordinate [2]float64 // [lng, lat], OSRM convention

func coordsFromPoints(points []geo.Point) []wireCoordinate {
	out := make([]wireCoordinate, len(points))
	for i, p := range points {
		out[i] = wireCoordinate{p.Lng, p.Lat}
	}
	return out
}

type routeWireRequestBody struct {
	Coordinates []wireCoordinate `json:"coordinates"`
}

func routeWireRequest(points []geo.Point) routeWireRequestBody {
	return routeWireRequestBody{Coordinates: coordsFromPoints(points)}
}

type routeWireStep struct {
	Geometry string `json:"geometry"`
}

type routeWireLeg struct {
	Duration float64         `json:"duration"`
	Steps    []routeWireStep `json:"steps"`
}

type routeWireRoute struct {
	Distance float64        `json:"distance"`
	Duration float64        `json:"duration"`
	Geometry string         `json:"geometry"`
	Legs     []routeWireLeg `json:"legs"`
}

type routeWireResponse struct {
	Code   string           `json:"code"`
	Routes []routeWireRoute `json:"routes"`
}

type tableWireRequestBody struct {
	Coordinates []wireCoordinate `json:"coordinates"`
	Sources     []int            `json:"sources,omitempty"`
	Destinations []int           `json:"destinations,omitempty"`
}

func tableWireRequest(req *roadservice.TableRequest) tableWireRequestBody {
	return tableWireRequestBody{
		Coordinates:  coordsFromPoints(req.Coordinates),
		Sources:      req.SourceIndices,
		Destinations: req.DestIndices,
	}
}

type tableWireResponse struct {
	Code      string      `json:"code"`
	Distances [][]float64 `json:"distances"`
	Durations [][]float64 `json:"durations"`
}
