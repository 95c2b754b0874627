// Package device collects best-effort device and network metadata attached
// to account records.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pysugar/homeauth/internal/domain"
	"github.com/pysugar/homeauth/internal/version"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Lookup names reported to FailureRecorder.
const (
	LookupIdentity = "identity"
	LookupIP       = "ip"
	LookupGeo      = "geo"
)

// Network resolves the public IP and its location.
type Network interface {
	PublicIP(ctx context.Context) (string, error)
	Geolocate(ctx context.Context, ip string) (*domain.Location, error)
}

// FailureRecorder counts failed sub-lookups.
type FailureRecorder interface {
	MetadataLookupFailed(lookup string)
}

// Collector gathers DeviceInfo. Network sub-lookup failures leave the
// corresponding fields empty; only an identity failure fails Collect.
type Collector struct {
	identity IdentitySource
	network  Network
	failures FailureRecorder

	flight singleflight.Group
	mu     sync.RWMutex
	cached *domain.DeviceInfo
}

// NewCollector builds a collector. network and failures may be nil.
func NewCollector(identity IdentitySource, network Network, failures FailureRecorder) *Collector {
	return &Collector{
		identity: identity,
		network:  network,
		failures: failures,
	}
}

// Collect performs one collection: identity in parallel with the IP then
// geo chain. It never retries.
func (c *Collector) Collect(ctx context.Context) (domain.DeviceInfo, error) {
	var (
		id  Identity
		ip  string
		loc *domain.Location
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		id, err = c.identity.Identity(gCtx)
		if err != nil {
			c.recordFailure(LookupIdentity)
			return fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
		}
		return nil
	})
	if c.network != nil {
		// Network failures are non-fatal and never cancel the identity read.
		g.Go(func() error {
			var err error
			ip, err = c.network.PublicIP(ctx)
			if err != nil {
				c.recordFailure(LookupIP)
				slog.Debug("public ip lookup failed", "operation", "collect_device", "error", err)
				return nil
			}
			loc, err = c.network.Geolocate(ctx, ip)
			if err != nil {
				c.recordFailure(LookupGeo)
				slog.Debug("geo lookup failed", "operation", "collect_device", "error", err)
				loc = nil
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.DeviceInfo{}, err
	}

	return domain.DeviceInfo{
		DeviceID:   id.DeviceID,
		Brand:      id.Brand,
		Model:      id.Model,
		OSName:     id.OSName,
		OSVersion:  id.OSVersion,
		AppVersion: version.Version,
		IsEmulator: id.IsEmulator,
		IPAddress:  ip,
		Location:   loc,
	}, nil
}

// Cached returns the process-lifetime device info, collecting it on first
// use. Concurrent callers share one collection. Failures are swallowed and
// not memoized: the caller gets an empty DeviceInfo and the next call tries
// again.
func (c *Collector) Cached(ctx context.Context) domain.DeviceInfo {
	if info, ok := c.memo(); ok {
		return info
	}

	v, err, _ := c.flight.Do("device", func() (interface{}, error) {
		if info, ok := c.memo(); ok {
			return info, nil
		}
		info, err := c.Collect(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cached = &info
		c.mu.Unlock()
		return info, nil
	})
	if err != nil {
		slog.Warn("device metadata unavailable", "operation", "collect_device", "error", err)
		return domain.DeviceInfo{}
	}
	return v.(domain.DeviceInfo)
}

func (c *Collector) memo() (domain.DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cached == nil {
		return domain.DeviceInfo{}, false
	}
	return *c.cached, true
}

func (c *Collector) recordFailure(lookup string) {
	if c.failures != nil {
		c.failures.MetadataLookupFailed(lookup)
	}
}
