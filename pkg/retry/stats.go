package retry

import (
	"sync"
	"time"
)

// Stats accumulates retry outcomes across every call made through a Policy.
type Stats struct {
	mu        sync.Mutex
	attempts  int64
	successes int64
	failures  int64
	retries   int64
	retryWait time.Duration
	endpoints map[string]*EndpointStats
	statuses  map[int]int64
	kinds     map[string]int64
}

// EndpointStats holds per-endpoint counters.
type EndpointStats struct {
	Attempts  int64 `json:"attempts"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
	Retries   int64 `json:"retries"`
}

// Summary aggregates counters over all endpoints.
type Summary struct {
	Attempts       int64         `json:"attempts"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	Retries        int64         `json:"retries"`
	TotalRetryWait time.Duration `json:"total_retry_wait"`
	SuccessRate    float64       `json:"success_rate_percent"`
}

// Breakdown splits counters by endpoint, HTTP status and error kind.
type Breakdown struct {
	Endpoints   map[string]EndpointStats `json:"endpoints"`
	StatusCodes map[int]int64            `json:"status_codes"`
	ErrorKinds  map[string]int64         `json:"error_kinds"`
}

// NewStats creates empty statistics.
func NewStats() *Stats {
	s := &Stats{}
	s.resetLocked()
	return s
}

func (s *Stats) resetLocked() {
	s.attempts, s.successes, s.failures, s.retries = 0, 0, 0, 0
	s.retryWait = 0
	s.endpoints = make(map[string]*EndpointStats)
	s.statuses = make(map[int]int64)
	s.kinds = make(map[string]int64)
}

func (s *Stats) endpoint(name string) *EndpointStats {
	e, ok := s.endpoints[name]
	if !ok {
		e = &EndpointStats{}
		s.endpoints[name] = e
	}
	return e
}

func (s *Stats) recordAttempt(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	s.endpoint(endpoint).Attempts++
}

func (s *Stats) recordSuccess(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes++
	s.endpoint(endpoint).Successes++
}

func (s *Stats) recordFailure(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.endpoint(endpoint).Failures++
}

func (s *Stats) recordRetry(endpoint string, wait time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
	s.retryWait += wait
	s.endpoint(endpoint).Retries++
}

func (s *Stats) recordError(_ string, d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Status > 0 {
		s.statuses[d.Status]++
	}
	if d.Kind != "" {
		s.kinds[d.Kind]++
	}
}

// Summary returns the aggregate counters.
func (s *Stats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		Attempts:       s.attempts,
		Successes:      s.successes,
		Failures:       s.failures,
		Retries:        s.retries,
		TotalRetryWait: s.retryWait,
	}
	if done := s.successes + s.failures; done > 0 {
		sum.SuccessRate = float64(s.successes) / float64(done) * 100
	}
	return sum
}

// Breakdown returns a copy of the per-endpoint, per-status and per-kind counters.
func (s *Stats) Breakdown() Breakdown {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := Breakdown{
		Endpoints:   make(map[string]EndpointStats, len(s.endpoints)),
		StatusCodes: make(map[int]int64, len(s.statuses)),
		ErrorKinds:  make(map[string]int64, len(s.kinds)),
	}
	for k, v := range s.endpoints {
		b.Endpoints[k] = *v
	}
	for k, v := range s.statuses {
		b.StatusCodes[k] = v
	}
	for k, v := range s.kinds {
		b.ErrorKinds[k] = v
	}
	return b
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}
