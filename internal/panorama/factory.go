package panorama

import (
	"time"

	"github.com/apex/log"

	"treewalk/internal/logging"
)

// Config selects the finder chain used by the server.
type Config struct {
	// APIURL points at a remote treewalk server; when set the lookup is proxied there.
	APIURL    string
	Mapillary MapillaryConfig
	CacheTTL  time.Duration
}

// NewFinder builds the finder chain: a remote client when APIURL is set,
// otherwise Mapillary when a token is configured and the stub when not.
// A positive CacheTTL wraps the result in a CachedFinder.
func NewFinder(cfg Config, observer CacheObserver, logger log.Interface) (Finder, error) {
	logger = logging.OrDefault(logger)
	var finder Finder
	switch {
	case cfg.APIURL != "":
		finder = NewHTTPFinder(cfg.APIURL, cfg.Mapillary.Timeout)
		logger.WithField("api_url", cfg.APIURL).Info("panorama lookups proxied to remote api")
	case cfg.Mapillary.Token != "":
		if cfg.Mapillary.Logger == nil {
			cfg.Mapillary.Logger = logger
		}
		m, err := NewMapillaryFinder(cfg.Mapillary)
		if err != nil {
			return nil, err
		}
		finder = m
		logger.Info("panorama lookups served by mapillary")
	default:
		finder = StubFinder{}
		logger.Warn("MAPILLARY_CLIENT_TOKEN not set, panorama lookups run in stub mode")
	}
	if cfg.CacheTTL > 0 {
		finder = NewCachedFinder(finder, cfg.CacheTTL, observer)
	}
	return finder, nil
}
