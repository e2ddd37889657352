/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-ratelimitd/log"
)

// DefaultMaxCustomPolicies is the default limit of simultaneously registered custom policies.
const DefaultMaxCustomPolicies = 1000

// RegistryOpts represents options for Registry.
type RegistryOpts struct {
	// Metrics collects decisions metrics. Metrics are disabled if nil.
	Metrics MetricsCollector

	// Logger is used for logging rejected requests and registered policies. Logging is disabled if nil.
	Logger log.FieldLogger

	// MaxCustomPolicies limits the number of custom policies registered at the same time.
	// DefaultMaxCustomPolicies is used if zero.
	MaxCustomPolicies int

	// Clock is used to detect idle custom policies. SystemClock is used if nil.
	Clock Clock
}

// Registry owns rate-limiting policies and their limiters.
// It's safe for concurrent use.
type Registry struct {
	factory LimiterFactory
	metrics MetricsCollector
	logger  log.FieldLogger

	maxCustom int
	clock     Clock

	mu       sync.RWMutex
	limiters map[string]Limiter
	// lastUsed holds the time of the last check of every custom policy.
	lastUsed map[string]*atomic.Time
}

// NewRegistry creates a new empty Registry that creates limiters using the given factory.
func NewRegistry(factory LimiterFactory, opts RegistryOpts) *Registry {
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MaxCustomPolicies == 0 {
		opts.MaxCustomPolicies = DefaultMaxCustomPolicies
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Registry{
		factory:   factory,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		maxCustom: opts.MaxCustomPolicies,
		clock:     opts.Clock,
		limiters:  make(map[string]Limiter),
		lastUsed:  make(map[string]*atomic.Time),
	}
}

// NewRegistryWithBuiltins creates a new Registry with the built-in policies registered.
func NewRegistryWithBuiltins(factory LimiterFactory, opts RegistryOpts) (*Registry, error) {
	r := NewRegistry(factory, opts)
	for _, p := range BuiltinPolicies() {
		if _, err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a named policy. Names starting with "custom_" are reserved for custom policies.
func (r *Registry) Register(policy Policy) (Limiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.IsCustom() {
		return nil, fmt.Errorf("%w: name prefix %q is reserved for custom policies", ErrInvalidPolicy, customPolicyPrefix)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.limiters[policy.Name]; ok {
		return nil, fmt.Errorf("policy %q is already registered", policy.Name)
	}
	lim, err := r.factory.NewLimiter(policy)
	if err != nil {
		return nil, fmt.Errorf("new limiter for policy %q: %w", policy.Name, err)
	}
	r.limiters[policy.Name] = lim
	p := lim.Policy()
	r.logger.Info("rate limit policy registered", log.Policy(p.Name),
		log.Duration("window", p.Window), log.Int("max_requests", p.MaxRequests), log.String("algorithm", string(p.Algorithm)))
	return lim, nil
}

// RegisterCustomPolicy registers a sliding log policy with the given window and max requests number,
// and returns its id. Registering the same window and max again returns the same id and keeps the state,
// the message of the first registration is kept.
// The window must be a whole number of milliseconds. ErrTooManyCustomPolicies is returned when the
// limit of custom policies is reached; idle ones are dropped by Sweep.
func (r *Registry) RegisterCustomPolicy(window time.Duration, maxRequests int, message string) (PolicyID, error) {
	if window <= 0 {
		return "", fmt.Errorf("%w: window should be positive, got %s", ErrInvalidPolicy, window)
	}
	if window%time.Millisecond != 0 {
		return "", fmt.Errorf("%w: window should be a whole number of milliseconds, got %s", ErrInvalidPolicy, window)
	}
	if maxRequests <= 0 {
		return "", fmt.Errorf("%w: max requests should be positive, got %d", ErrInvalidPolicy, maxRequests)
	}
	id := CustomPolicyID(window, maxRequests)
	now := r.clock.Now()

	r.mu.RLock()
	lastUsed, ok := r.lastUsed[string(id)]
	r.mu.RUnlock()
	if ok {
		lastUsed.Store(now)
		return id, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if lastUsed, ok = r.lastUsed[string(id)]; ok {
		lastUsed.Store(now)
		return id, nil
	}
	if len(r.lastUsed) >= r.maxCustom {
		return "", fmt.Errorf("%w: %d", ErrTooManyCustomPolicies, r.maxCustom)
	}
	lim, err := r.factory.NewLimiter(Policy{
		Name:        string(id),
		Window:      window,
		MaxRequests: maxRequests,
		Message:     message,
		Algorithm:   AlgorithmSlidingLog,
	})
	if err != nil {
		return "", fmt.Errorf("new limiter for custom policy %q: %w", id, err)
	}
	r.limiters[string(id)] = lim
	r.lastUsed[string(id)] = atomic.NewTime(now)
	r.logger.Debug("custom rate limit policy registered", log.Policy(string(id)))
	return id, nil
}

// Get returns the limiter of the policy.
func (r *Registry) Get(name string) (Limiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lim, ok := r.limiters[name]
	return lim, ok
}

// Policies returns all registered policies sorted by name.
func (r *Registry) Policies() []Policy {
	r.mu.RLock()
	policies := make([]Policy, 0, len(r.limiters))
	for _, lim := range r.limiters {
		policies = append(policies, lim.Policy())
	}
	r.mu.RUnlock()

	sort.Slice(policies, func(i, j int) bool {
		return policies[i].Name < policies[j].Name
	})
	return policies
}

// Check records a request of the identified client under the policy and returns the decision.
// ErrPolicyNotFound is returned if the policy is not registered.
func (r *Registry) Check(ctx context.Context, policyName, identifier string) (Decision, error) {
	lim, err := r.Limiter(policyName)
	if err != nil {
		return Decision{}, err
	}
	return lim.Check(ctx, identifier)
}

func (r *Registry) check(ctx context.Context, lim Limiter, lastUsed *atomic.Time, identifier string) (Decision, error) {
	if lastUsed != nil {
		lastUsed.Store(r.clock.Now())
	}
	d, err := lim.Check(ctx, identifier)
	if err != nil {
		r.metrics.IncDecisions(lim.Policy(), MetricsResultError)
		return Decision{}, fmt.Errorf("check policy %q: %w", lim.Policy().Name, err)
	}
	if d.Limited {
		r.metrics.IncDecisions(lim.Policy(), MetricsResultRejected)
		r.logger.Debug("request rejected", log.Policy(d.Policy), log.ClientKey(identifier),
			log.Duration("retry_after", d.RetryAfter))
		return d, nil
	}
	r.metrics.IncDecisions(lim.Policy(), MetricsResultAdmitted)
	return d, nil
}

// Limiter returns a Limiter that checks requests against the registered policy and records decisions metrics.
// It's used to compose a policy with HTTP middleware.
func (r *Registry) Limiter(policyName string) (Limiter, error) {
	r.mu.RLock()
	lim, ok := r.limiters[policyName]
	lastUsed := r.lastUsed[policyName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPolicyNotFound, policyName)
	}
	return &registryLimiter{registry: r, limiter: lim, lastUsed: lastUsed}, nil
}

// Forget drops the state of the identified client under every policy.
func (r *Registry) Forget(ctx context.Context, identifier string) error {
	r.mu.RLock()
	limiters := make([]Limiter, 0, len(r.limiters))
	for _, lim := range r.limiters {
		limiters = append(limiters, lim)
	}
	r.mu.RUnlock()

	var errs []error
	for _, lim := range limiters {
		if f, ok := lim.(Forgetter); ok {
			if err := f.Forget(ctx, identifier); err != nil {
				errs = append(errs, fmt.Errorf("forget client under policy %q: %w", lim.Policy().Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Sweep evicts idle client state if the factory keeps it in memory, and returns the number of evicted states.
// Custom policies that were not checked for a whole window are dropped as well. All timestamps of
// such a policy are outside its window, so registering it again yields the same decisions.
func (r *Registry) Sweep(now time.Time) int {
	if dropped := r.dropIdleCustomPolicies(now); dropped > 0 {
		r.logger.Debug("idle custom rate limit policies dropped", log.Int("dropped", dropped))
	}
	if s, ok := r.factory.(Sweeper); ok {
		return s.Sweep(now)
	}
	return 0
}

func (r *Registry) dropIdleCustomPolicies(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped int
	for name, lastUsed := range r.lastUsed {
		if now.Sub(lastUsed.Load()) < r.limiters[name].Policy().Window {
			continue
		}
		delete(r.lastUsed, name)
		delete(r.limiters, name)
		dropped++
	}
	return dropped
}

type registryLimiter struct {
	registry *Registry
	limiter  Limiter
	lastUsed *atomic.Time // nil for named policies
}

func (l *registryLimiter) Check(ctx context.Context, identifier string) (Decision, error) {
	return l.registry.check(ctx, l.limiter, l.lastUsed, identifier)
}

func (l *registryLimiter) Policy() Policy {
	return l.limiter.Policy()
}
