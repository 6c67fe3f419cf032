// Package fedimock provides an in-memory server speaking the Mastodon client
// API dialect shared by Pixelfed, Mastodon and Pleroma, for tests.
package fedimock

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Account is a seeded account.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
	URL      string `json:"url"`
}

// Media is a seeded media attachment.
type Media struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	URL         string  `json:"url"`
	Description *string `json:"description"`
}

// Status is a seeded status.
type Status struct {
	ID               string  `json:"id"`
	URL              string  `json:"url"`
	Content          string  `json:"content"`
	CreatedAt        string  `json:"created_at"`
	Account          Account `json:"account"`
	MediaAttachments []Media `json:"media_attachments"`
}

// Request records one request received by the server.
type Request struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

// Server is a mock fediverse instance.
type Server struct {
	server *httptest.Server

	mu             sync.RWMutex
	token          string
	software       string
	accounts       map[string]Account
	statuses       map[string]*Status
	errorResponses map[string][]int
	delays         map[string]time.Duration
	rawStatuses    map[string][]byte
	requests       []Request

	requestCount int32
}

// New starts a server accepting token as the bearer credential. software is
// reported through NodeInfo.
func New(token, software string) *Server {
	m := &Server{
		token:          token,
		software:       software,
		accounts:       make(map[string]Account),
		statuses:       make(map[string]*Status),
		errorResponses: make(map[string][]int),
		delays:         make(map[string]time.Duration),
		rawStatuses:    make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/nodeinfo", m.handleNodeInfoLinks)
	mux.HandleFunc("/nodeinfo/2.0", m.handleNodeInfo)
	mux.HandleFunc("/api/v1/accounts/verify_credentials", m.handleVerifyCredentials)
	mux.HandleFunc("/api/v1/accounts/lookup", m.handleLookup)
	mux.HandleFunc("/api/v1/accounts/", m.handleAccounts)
	mux.HandleFunc("/api/v2/search", m.handleSearch)
	mux.HandleFunc("/api/v1/statuses/", m.handleStatus)
	mux.HandleFunc("/api/v1/media/", m.handleMedia)

	m.server = httptest.NewServer(m.middleware(mux))
	return m
}

// URL returns the base URL of the server.
func (m *Server) URL() string {
	return m.server.URL
}

// Close shuts down the server.
func (m *Server) Close() {
	m.server.Close()
}

// AddAccount seeds an account.
func (m *Server) AddAccount(a Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.URL == "" {
		a.URL = m.server.URL + "/@" + a.Username
	}
	if a.Acct == "" {
		a.Acct = a.Username
	}
	m.accounts[a.ID] = a
}

// AddStatus seeds a status. The account must already exist.
func (m *Server) AddStatus(accountID string, s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Account = m.accounts[accountID]
	if s.URL == "" {
		s.URL = s.Account.URL + "/" + s.ID
	}
	if s.CreatedAt == "" {
		s.CreatedAt = "2024-01-01T00:00:00.000Z"
	}
	m.statuses[s.ID] = &s
}

// AddStatuses seeds n statuses with decreasing numeric ids starting at top.
func (m *Server) AddStatuses(accountID string, top, n int) {
	for i := 0; i < n; i++ {
		id := strconv.Itoa(top - i)
		m.AddStatus(accountID, Status{
			ID:      id,
			Content: "<p>post " + id + "</p>",
			MediaAttachments: []Media{
				{ID: "m" + id, Type: "image", URL: m.server.URL + "/media/" + id + ".jpg"},
			},
		})
	}
}

// SetRawStatuses makes the statuses page of accountID return body verbatim.
func (m *Server) SetRawStatuses(accountID string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawStatuses[accountID] = body
}

// Status returns the stored status with id.
func (m *Server) Status(id string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[id]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

// SetErrorResponse queues status codes returned for path, one per request,
// before normal handling resumes.
func (m *Server) SetErrorResponse(path string, codes ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorResponses[path] = append(m.errorResponses[path], codes...)
}

// SetDelay configures response delay for a path
func (m *Server) SetDelay(path string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[path] = delay
}

// RequestCount returns the total number of requests
func (m *Server) RequestCount() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

// Requests returns every request received so far.
func (m *Server) Requests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request for method and path.
func (m *Server) LastRequest(method, path string) (Request, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.requests) - 1; i >= 0; i-- {
		if m.requests[i].Method == method && m.requests[i].Path == path {
			return m.requests[i], true
		}
	}
	return Request{}, false
}

// ResetCounters forgets recorded requests.
func (m *Server) ResetCounters() {
	atomic.StoreInt32(&m.requestCount, 0)
	m.mu.Lock()
	m.requests = nil
	m.mu.Unlock()
}

func (m *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.requestCount, 1)

		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		m.mu.Lock()
		m.requests = append(m.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
		delay := m.delays[r.URL.Path]
		code := 0
		if queued := m.errorResponses[r.URL.Path]; len(queued) > 0 {
			code = queued[0]
			m.errorResponses[r.URL.Path] = queued[1:]
		}
		m.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if code > 0 {
			if code == http.StatusTooManyRequests {
				w.Header().Set("X-RateLimit-Limit", "300")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "30")
			}
			sendError(w, code, r.URL.Path)
			return
		}

		w.Header().Set("X-RateLimit-Limit", "300")
		w.Header().Set("X-RateLimit-Remaining", "299")
		next.ServeHTTP(w, r)
	})
}

func (m *Server) authorized(r *http.Request) bool {
	return m.token == "" || r.Header.Get("Authorization") == "Bearer "+m.token
}

func (m *Server) handleNodeInfoLinks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"links": []map[string]string{
			{"rel": "http://nodeinfo.diaspora.software/ns/schema/2.0", "href": m.server.URL + "/nodeinfo/2.0"},
		},
	})
}

func (m *Server) handleNodeInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":   "2.0",
		"software":  map[string]string{"name": m.software, "version": "1.0.0"},
		"protocols": []string{"activitypub"},
	})
}

func (m *Server) handleVerifyCredentials(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "The access token is invalid"})
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		writeJSON(w, http.StatusOK, a)
		return
	}
	writeJSON(w, http.StatusOK, Account{ID: "0", Username: "owner", Acct: "owner"})
}

func (m *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	acct := strings.TrimPrefix(r.URL.Query().Get("acct"), "@")
	if a, ok := m.findAccount(acct); ok {
		writeJSON(w, http.StatusOK, a)
		return
	}
	sendError(w, http.StatusNotFound, acct)
}

func (m *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimPrefix(r.URL.Query().Get("q"), "@"))

	m.mu.RLock()
	var matches []Account
	for _, a := range m.accounts {
		if strings.Contains(strings.ToLower(a.Acct), q) || strings.Contains(strings.ToLower(a.Username), q) {
			matches = append(matches, a)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": matches,
		"statuses": []interface{}{},
		"hashtags": []interface{}{},
	})
}

func (m *Server) findAccount(acct string) (Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Acct, acct) || strings.EqualFold(a.Username, acct) {
			return a, true
		}
	}
	return Account{}, false
}

// handleAccounts serves /api/v1/accounts/{id} and /api/v1/accounts/{id}/statuses.
func (m *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/accounts/"), "/"), "/")
	id := parts[0]

	m.mu.RLock()
	account, ok := m.accounts[id]
	raw := m.rawStatuses[id]
	m.mu.RUnlock()

	if !ok {
		sendError(w, http.StatusNotFound, id)
		return
	}

	if len(parts) == 1 {
		writeJSON(w, http.StatusOK, account)
		return
	}
	if parts[1] != "statuses" {
		sendError(w, http.StatusNotFound, r.URL.Path)
		return
	}

	if raw != nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 40 {
		limit = 20
	}
	maxID, _ := strconv.Atoi(r.URL.Query().Get("max_id"))

	writeJSON(w, http.StatusOK, m.page(id, limit, maxID))
}

// page returns statuses of accountID with numeric id below maxID (when set),
// newest first.
func (m *Server) page(accountID string, limit, maxID int) []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []Status
	for _, s := range m.statuses {
		if s.Account.ID != accountID {
			continue
		}
		n, _ := strconv.Atoi(s.ID)
		if maxID > 0 && n >= maxID {
			continue
		}
		all = append(all, *s)
	}
	sort.Slice(all, func(i, j int) bool {
		a, _ := strconv.Atoi(all[i].ID)
		b, _ := strconv.Atoi(all[j].ID)
		return a > b
	})
	if len(all) > limit {
		all = all[:limit]
	}
	if all == nil {
		all = []Status{}
	}
	return all
}

func (m *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/statuses/"), "/")

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.statuses[id]
	if !ok {
		sendError(w, http.StatusNotFound, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s)
	case http.MethodPut:
		if !m.authorized(r) {
			sendError(w, http.StatusUnauthorized, id)
			return
		}
		var edit struct {
			Status          string   `json:"status"`
			MediaIDs        []string `json:"media_ids"`
			MediaAttributes []struct {
				ID          string `json:"id"`
				Description string `json:"description"`
			} `json:"media_attributes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&edit); err != nil {
			sendError(w, http.StatusUnprocessableEntity, id)
			return
		}
		if edit.Status != "" {
			s.Content = "<p>" + edit.Status + "</p>"
		}
		for _, attr := range edit.MediaAttributes {
			for i := range s.MediaAttachments {
				if s.MediaAttachments[i].ID == attr.ID {
					d := attr.Description
					s.MediaAttachments[i].Description = &d
				}
			}
		}
		writeJSON(w, http.StatusOK, s)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/media/"), "/")
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !m.authorized(r) {
		sendError(w, http.StatusUnauthorized, id)
		return
	}

	var body struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendError(w, http.StatusUnprocessableEntity, id)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.statuses {
		for i := range s.MediaAttachments {
			if s.MediaAttachments[i].ID == id {
				d := body.Description
				s.MediaAttachments[i].Description = &d
				writeJSON(w, http.StatusOK, s.MediaAttachments[i])
				return
			}
		}
	}
	sendError(w, http.StatusNotFound, id)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// sendError sends an error response in the Mastodon error shape
func sendError(w http.ResponseWriter, code int, context string) {
	var message string
	switch code {
	case http.StatusUnauthorized:
		message = "The access token is invalid"
	case http.StatusNotFound:
		message = "Record not found"
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "1")
		message = "Too many requests"
	case http.StatusUnprocessableEntity:
		message = "Validation failed"
	default:
		message = fmt.Sprintf("Error %d", code)
	}
	writeJSON(w, code, map[string]string{"error": message + ": " + context})
}
