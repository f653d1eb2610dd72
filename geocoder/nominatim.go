package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"photosorter/logging"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Resolver turns a coordinate pair into a place name. Implementations
// never fail: an unavailable lookup is reported as ok == false.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) (place string, ok bool)
}

// Disabled is a Resolver that never finds a place
type Disabled struct{}

// Resolve always reports no place
func (Disabled) Resolve(context.Context, float64, float64) (string, bool) {
	return "", false
}

// Defaults for the public Nominatim instance and its usage policy
const (
	DefaultEndpoint          = "https://nominatim.openstreetmap.org"
	DefaultUserAgent         = "photosorter/1.0"
	DefaultTimeout           = 10 * time.Second
	DefaultRequestsPerSecond = 1.0
	DefaultCacheSize         = 4096
)

// Options configures a Nominatim client
type Options struct {
	Endpoint          string
	UserAgent         string
	Timeout           time.Duration // per HTTP request
	RequestsPerSecond float64       // <= 0 disables throttling
	CacheSize         int           // <= 0 disables memoization
	HTTPClient        *http.Client
}

// errAbandoned marks a lookup that stopped because the caller that
// started it went away. Callers sharing it through singleflight retry.
var errAbandoned = errors.New("lookup abandoned by its caller")

// lookupResult is what gets memoized, including "no place here"
type lookupResult struct {
	place string
	ok    bool
}

// Nominatim reverse-geocodes coordinates with an OSM Nominatim server
type Nominatim struct {
	endpoint  *url.URL
	userAgent string
	timeout   time.Duration
	client    *http.Client
	limiter   *rate.Limiter
	cache     *lru.Cache[string, lookupResult]
	group     singleflight.Group
	log       *zap.Logger
}

// NewNominatim creates a client, filling unset options with defaults
func NewNominatim(opts Options) (*Nominatim, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	endpoint, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid geocoder endpoint %q: %w", opts.Endpoint, err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("invalid geocoder endpoint %q: scheme must be http or https", opts.Endpoint)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	n := &Nominatim{
		endpoint:  endpoint,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		client:    opts.HTTPClient,
		log:       logging.Named("geocoder"),
	}
	if opts.RequestsPerSecond > 0 {
		n.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	if opts.CacheSize > 0 {
		n.cache, err = lru.New[string, lookupResult](opts.CacheSize)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// reverseResponse is the part of a /reverse answer we use
type reverseResponse struct {
	Error   string `json:"error"`
	Address struct {
		Tourism string `json:"tourism"`
		City    string `json:"city"`
	} `json:"address"`
}

// Resolve prefers a tourism label over the city name. Any failure
// (throttle wait cancelled, timeout, HTTP error, bad JSON) yields no place.
func (n *Nominatim) Resolve(ctx context.Context, lat, lon float64) (string, bool) {
	key := cacheKey(lat, lon)
	if res, ok := n.cached(key); ok {
		return res.place, res.ok
	}

	v, err := n.shared(ctx, key, lat, lon)
	for errors.Is(err, errAbandoned) && ctx.Err() == nil {
		// the lookup we joined was started by a caller that has since
		// been cancelled; ours is still live, so run our own
		v, err = n.shared(ctx, key, lat, lon)
	}
	if err != nil {
		n.log.Warn("reverse geocoding unavailable",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err))
		return "", false
	}

	res := v.(lookupResult)
	n.log.Debug("reverse geocoded",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.String("place", res.place))
	return res.place, res.ok
}

// shared runs one lookup per key at a time under the context of the
// caller that started it
func (n *Nominatim) shared(ctx context.Context, key string, lat, lon float64) (interface{}, error) {
	v, err, _ := n.group.Do(key, func() (interface{}, error) {
		if res, ok := n.cached(key); ok {
			return res, nil
		}
		res, err := n.lookup(ctx, lat, lon)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errAbandoned, err)
			}
			return nil, err
		}
		if n.cache != nil {
			n.cache.Add(key, res)
		}
		return res, nil
	})
	return v, err
}

func (n *Nominatim) cached(key string) (lookupResult, bool) {
	if n.cache == nil {
		return lookupResult{}, false
	}
	return n.cache.Get(key)
}

func (n *Nominatim) lookup(ctx context.Context, lat, lon float64) (lookupResult, error) {
	// throttling waits on the caller's context so a busy limiter delays
	// the answer instead of turning it into "no place"
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return lookupResult{}, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	u := n.endpoint.JoinPath("reverse")
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 7, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 7, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return lookupResult{}, err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return lookupResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return lookupResult{}, fmt.Errorf("nominatim returned HTTP %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return lookupResult{}, fmt.Errorf("decoding nominatim response: %w", err)
	}
	if body.Error != "" {
		// "Unable to geocode": a valid answer meaning there is no place here
		return lookupResult{}, nil
	}

	return pickPlace(body), nil
}

func pickPlace(body reverseResponse) lookupResult {
	if place := strings.TrimSpace(body.Address.Tourism); place != "" {
		return lookupResult{place: place, ok: true}
	}
	if place := strings.TrimSpace(body.Address.City); place != "" {
		return lookupResult{place: place, ok: true}
	}
	return lookupResult{}
}

func cacheKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lon, 'f', 6, 64)
}
