package provider

import (
	"net/http"
	"sync"
	"time"
)

type poolKey struct {
	url     string
	key     string
	format  Format
	timeout int
}

// Pool owns the HTTP clients shared across providers. Clients are keyed
// by endpoint, API key, protocol format and timeout, so two platforms
// that differ only in sampling parameters reuse the same connection set.
type Pool struct {
	mu      sync.Mutex
	clients map[poolKey]*http.Client
}

func NewPool() *Pool {
	return &Pool{clients: make(map[poolKey]*http.Client)}
}

// Client returns the cached client for the given identity, creating it
// on first use.
func (p *Pool) Client(cfg Config, key string) *http.Client {
	k := poolKey{url: cfg.APIURL, key: key, format: cfg.Format, timeout: cfg.Timeout}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[k]; ok {
		return c
	}
	c := &http.Client{
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
		Transport: &http.Transport{MaxIdleConnsPerHost: 8},
	}
	p.clients[k] = c
	return c
}

// CloseAll drops every pooled client and closes their idle connections.
// In-flight requests are expected to be abandoned via context
// cancellation before this is called.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, c := range p.clients {
		c.CloseIdleConnections()
		delete(p.clients, k)
	}
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
