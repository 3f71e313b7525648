// Package enrich resolves client IPs to coarse location data.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"visitorintel/api/logger"
	"visitorintel/api/models"
)

const geoCachePrefix = "visitorintel:geo:"

// IPInfo looks addresses up against the ipinfo.io API. Results are cached in
// Redis when a client is configured.
type IPInfo struct {
	baseURL string
	token   string
	client  *http.Client
	cache   *redis.Client
	ttl     time.Duration
}

type ipinfoResponse struct {
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Org     string `json:"org"`
	Bogon   bool   `json:"bogon"`
}

// NewIPInfo builds a lookup client. cache may be nil.
func NewIPInfo(baseURL, token string, cache *redis.Client, ttl time.Duration) *IPInfo {
	return &IPInfo{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   cache,
		ttl:     ttl,
	}
}

// Lookup never fails: on any error the result carries only the address.
func (i *IPInfo) Lookup(ctx context.Context, ip string) models.Geo {
	geo := models.Geo{IPAddress: ip}
	if net.ParseIP(ip) == nil {
		return geo
	}

	if cached, ok := i.fromCache(ctx, ip); ok {
		return cached
	}

	resolved, err := i.fetch(ctx, ip)
	if err != nil {
		logger.Warnf("Geo lookup for %s failed: %v", ip, err)
		return geo
	}
	i.store(ctx, resolved)
	return resolved
}

func (i *IPInfo) fetch(ctx context.Context, ip string) (models.Geo, error) {
	endpoint := fmt.Sprintf("%s/%s/json", i.baseURL, url.PathEscape(ip))
	if i.token != "" {
		endpoint += "?token=" + url.QueryEscape(i.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Geo{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return models.Geo{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Geo{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body ipinfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Geo{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if body.Bogon {
		return models.Geo{IPAddress: ip}, nil
	}

	return models.Geo{
		IPAddress:    ip,
		City:         body.City,
		Region:       body.Region,
		Country:      body.Country,
		Organization: body.Org,
	}, nil
}

func (i *IPInfo) fromCache(ctx context.Context, ip string) (models.Geo, bool) {
	if i.cache == nil {
		return models.Geo{}, false
	}
	raw, err := i.cache.Get(ctx, geoCachePrefix+ip).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warnf("Geo cache read for %s failed: %v", ip, err)
		}
		return models.Geo{}, false
	}
	var geo models.Geo
	if err := json.Unmarshal(raw, &geo); err != nil {
		return models.Geo{}, false
	}
	return geo, true
}

func (i *IPInfo) store(ctx context.Context, geo models.Geo) {
	if i.cache == nil {
		return
	}
	raw, err := json.Marshal(geo)
	if err != nil {
		return
	}
	if err := i.cache.Set(ctx, geoCachePrefix+geo.IPAddress, raw, i.ttl).Err(); err != nil {
		logger.Warnf("Geo cache write for %s failed: %v", geo.IPAddress, err)
	}
}
