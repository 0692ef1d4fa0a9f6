package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/pingstatus/internal/domain"
)

// Defaults are the probe parameters applied when a job omits them.
type Defaults struct {
	IntervalSec float64 `koanf:"interval_sec" yaml:"interval_sec" json:"interval_sec"`
	Count       int     `koanf:"count" yaml:"count" json:"count"`
}

func (d Defaults) Validate() error {
	if d.IntervalSec <= 0 || d.IntervalSec > domain.MaxIntervalSec {
		return &domain.ValidationError{Field: "interval_sec", Reason: fmt.Sprintf("must be in (0, %g]", domain.MaxIntervalSec)}
	}
	if d.Count < 1 || d.Count > domain.MaxCount {
		return &domain.ValidationError{Field: "count", Reason: fmt.Sprintf("must be in [1, %d]", domain.MaxCount)}
	}
	return nil
}

// Provider holds the settings that may change while the daemon runs.
type Provider struct {
	mu       sync.RWMutex
	defaults Defaults
	path     string
	adminID  int64
}

func NewProvider(cfg Config) *Provider {
	return &Provider{
		defaults: Defaults{IntervalSec: cfg.DefaultIntervalSec, Count: cfg.DefaultCount},
		path:     cfg.DefaultsPath,
		adminID:  cfg.AdminID,
	}
}

func (p *Provider) Defaults() Defaults {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaults
}

// SetDefaults validates d, writes it to the defaults file (when one is
// configured) and only then makes it current.
func (p *Provider) SetDefaults(d Defaults) error {
	if err := d.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path != "" {
		if err := writeYAML(p.path, d); err != nil {
			return err
		}
	}
	p.defaults = d
	return nil
}

// ApplyDefaults fills unset interval and count on j.
func (p *Provider) ApplyDefaults(j *domain.Job) {
	d := p.Defaults()
	if j.IntervalSec == 0 {
		j.IntervalSec = d.IntervalSec
	}
	if j.Count == 0 {
		j.Count = d.Count
	}
}

func (p *Provider) AdminID() int64 { return p.adminID }

// IsAdmin reports whether id is the configured operator. No admin configured
// means nobody is.
func (p *Provider) IsAdmin(id int64) bool {
	return p.adminID != 0 && id == p.adminID
}

func writeYAML(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create defaults dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write defaults: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace defaults: %w", err)
	}
	return nil
}
