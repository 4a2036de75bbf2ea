package config

import (
	"strings"
	"time"
)

// MemberAPIConfig configures the resource API client.
type MemberAPIConfig struct {
	URL      string        `env:"URL"       envDefault:"http://localhost:8081"`
	Timeout  time.Duration `env:"TIMEOUT"   envDefault:"10s"`
	PageSize int           `env:"PAGE_SIZE" envDefault:"10"`
}

// Sanitize clamps the page size to what the API accepts.
func (m *MemberAPIConfig) Sanitize() {
	m.URL = strings.TrimSuffix(strings.TrimSpace(m.URL), "/")
	if m.Timeout <= 0 {
		m.Timeout = 10 * time.Second
	}
	if m.PageSize <= 0 {
		m.PageSize = 10
	}
	if m.PageSize > 100 {
		m.PageSize = 100
	}
}
