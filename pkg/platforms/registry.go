package platforms

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	errs "fedicaption/pkg/errors"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/transport"
)

// DefaultFallback is the adapter used when neither an explicit type nor
// detection picks one.
const DefaultFallback = PixelfedName

// Registration describes one platform known to a Registry.
type Registration struct {
	Name   string
	New    func(cfg Config) Adapter
	Detect func(instanceURL string) bool
}

// Registry maps platform names to adapter constructors. Detection tries
// registrations in the order they were added.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]Registration
	order    []string
	fallback string
	log      logger.Logger
}

// NewRegistry creates an empty registry with the given fallback platform.
func NewRegistry(fallback string, log logger.Logger) *Registry {
	return &Registry{
		entries:  make(map[string]Registration),
		fallback: strings.ToLower(fallback),
		log:      logger.OrDefault(log).WithField("component", "platforms"),
	}
}

// DefaultRegistry returns a registry holding Pixelfed, Mastodon and Pleroma.
func DefaultRegistry(log logger.Logger) *Registry {
	r := NewRegistry(DefaultFallback, log)
	r.Register(Registration{Name: PixelfedName, New: NewPixelfed, Detect: DetectPixelfed})
	r.Register(Registration{Name: MastodonName, New: NewMastodon, Detect: DetectMastodon})
	r.Register(Registration{Name: PleromaName, New: NewPleroma, Detect: DetectPleroma})
	return r
}

// Register adds or replaces a platform.
func (r *Registry) Register(reg Registration) {
	name := strings.ToLower(reg.Name)
	reg.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = reg
}

// Fallback returns the platform used when detection finds nothing.
func (r *Registry) Fallback() string {
	return r.fallback
}

// Names returns the registered platform names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[strings.ToLower(strings.TrimSpace(name))]
	return reg, ok
}

// Detect returns the first platform whose heuristics match instanceURL.
func (r *Registry) Detect(instanceURL string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		reg := r.entries[name]
		if reg.Detect != nil && reg.Detect(instanceURL) {
			return name, true
		}
	}
	return "", false
}

// Create builds the adapter for cfg: the explicit PlatformType when set,
// else the detected platform, else the fallback. An unknown explicit type
// fails with *errors.UnsupportedPlatformError; configuration problems fail
// with *errors.ConfigurationError.
func (r *Registry) Create(cfg Config) (Adapter, error) {
	if cfg.PlatformType != "" {
		reg, ok := r.lookup(cfg.PlatformType)
		if !ok {
			return nil, &errs.UnsupportedPlatformError{Platform: cfg.PlatformType, Supported: r.Names()}
		}
		return r.build(reg, cfg)
	}
	return r.createDetected(cfg, "")
}

// CreateWithFallback behaves like Create but uses fallback instead of
// failing when the explicit type is not registered.
func (r *Registry) CreateWithFallback(cfg Config, fallback string) (Adapter, error) {
	if cfg.PlatformType != "" {
		if reg, ok := r.lookup(cfg.PlatformType); ok {
			return r.build(reg, cfg)
		}
		r.log.WarnWithFields("unknown platform type, using fallback", map[string]interface{}{
			"platform": cfg.PlatformType,
			"fallback": fallback,
		})
		return r.createFallback(cfg, fallback)
	}
	return r.createDetected(cfg, fallback)
}

// CreateWithDiscovery consults the instance's NodeInfo document when
// neither the explicit type nor the domain heuristics decide.
func (r *Registry) CreateWithDiscovery(ctx context.Context, req transport.Requester, cfg Config) (Adapter, error) {
	if cfg.PlatformType != "" {
		return r.Create(cfg)
	}
	if name, ok := r.Detect(cfg.InstanceURL); ok {
		reg, _ := r.lookup(name)
		return r.build(reg, cfg)
	}

	software, err := Discover(ctx, req, cfg.InstanceURL)
	if err != nil {
		r.log.WithError(err).Debug("nodeinfo discovery failed")
	} else if reg, ok := r.lookup(software); ok {
		r.log.InfoWithFields("platform discovered through nodeinfo", map[string]interface{}{
			"instance": cfg.InstanceURL,
			"platform": software,
		})
		return r.build(reg, cfg)
	}

	return r.createFallback(cfg, "")
}

func (r *Registry) createDetected(cfg Config, fallback string) (Adapter, error) {
	if name, ok := r.Detect(cfg.InstanceURL); ok {
		reg, _ := r.lookup(name)
		r.log.DebugWithFields("platform detected", map[string]interface{}{
			"instance": cfg.InstanceURL,
			"platform": name,
		})
		return r.build(reg, cfg)
	}
	return r.createFallback(cfg, fallback)
}

func (r *Registry) createFallback(cfg Config, fallback string) (Adapter, error) {
	if fallback == "" {
		fallback = r.fallback
	}
	reg, ok := r.lookup(fallback)
	if !ok {
		return nil, &errs.UnsupportedPlatformError{Platform: fallback, Supported: r.Names()}
	}

	r.log.WarnWithFields("could not detect platform, using fallback", map[string]interface{}{
		"instance": cfg.InstanceURL,
		"fallback": reg.Name,
	})
	return r.build(reg, cfg)
}

func (r *Registry) build(reg Registration, cfg Config) (Adapter, error) {
	cfg.PlatformType = reg.Name
	adapter := reg.New(cfg)
	if err := adapter.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("%s: %w", reg.Name, err)
	}
	return adapter, nil
}
