// Package tenant loads per-tenant conversation policy from a YAML file and
// resolves it at the start of every turn.
package tenant

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sokoflow/sokoflow/internal/models"
	"github.com/sokoflow/sokoflow/internal/tone"
)

// Policy is the per-tenant configuration consulted by the pipeline.
type Policy struct {
	TenantID           string            `yaml:"tenant_id"`
	BusinessName       string            `yaml:"business_name"`
	MaxChattinessLevel int               `yaml:"max_chattiness_level"`
	AllowedLanguages   []models.Language `yaml:"allowed_languages"`
	DefaultLanguage    models.Language   `yaml:"default_language"`
	CatalogURL         string            `yaml:"catalog_url"`
	HandoffContact     string            `yaml:"handoff_contact"`
	ReplyTone          []string          `yaml:"reply_tone"`
}

type policyFile struct {
	Default *Policy  `yaml:"default"`
	Tenants []Policy `yaml:"tenants"`
}

// DefaultPolicy is applied when a tenant has no entry and the policy file
// does not override the default section.
func DefaultPolicy() Policy {
	return Policy{
		BusinessName:       "our shop",
		MaxChattinessLevel: 1,
		AllowedLanguages:   []models.Language{models.LanguageEnglish, models.LanguageSwahili},
		DefaultLanguage:    models.LanguageEnglish,
	}
}

// Registry holds the loaded tenant policies. Reload is safe to call
// concurrently with Resolve.
type Registry struct {
	mu           sync.RWMutex
	policies     map[string]Policy
	defaults     Policy
	allowUnknown bool
	path         string
}

// NewRegistry creates a registry backed by the given YAML file. When path is
// empty the registry serves only the default policy for every tenant.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{
		policies: make(map[string]Policy),
		defaults: DefaultPolicy(),
		path:     path,
	}
	if path == "" {
		r.allowUnknown = true
		return r, nil
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the policy file. On parse failure the previous policies
// stay in effect.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read tenant policy file %s: %w", r.path, err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse tenant policy file %s: %w", r.path, err)
	}

	policies := make(map[string]Policy, len(file.Tenants))
	for _, p := range file.Tenants {
		if p.TenantID == "" {
			return fmt.Errorf("tenant policy entry missing tenant_id in %s", r.path)
		}
		if err := validatePolicy(&p); err != nil {
			return fmt.Errorf("tenant %s: %w", p.TenantID, err)
		}
		policies[p.TenantID] = p
	}

	defaults := DefaultPolicy()
	allowUnknown := false
	if file.Default != nil {
		d := *file.Default
		if err := validatePolicy(&d); err != nil {
			return fmt.Errorf("default policy: %w", err)
		}
		defaults = d
		allowUnknown = true
	}

	r.mu.Lock()
	r.policies = policies
	r.defaults = defaults
	r.allowUnknown = allowUnknown
	r.mu.Unlock()

	slog.Debug("Registry.Reload: tenant policies loaded", "count", len(policies), "allowUnknown", allowUnknown)
	return nil
}

// Resolve returns the policy for a tenant. Unknown tenants get the default
// policy only when the file declares one; otherwise resolution fails and
// the message is rejected upstream.
func (r *Registry) Resolve(tenantID string) (Policy, error) {
	if tenantID == "" {
		return Policy{}, models.ErrEmptyTenant
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.policies[tenantID]; ok {
		return p, nil
	}
	if r.allowUnknown {
		p := r.defaults
		p.TenantID = tenantID
		return p, nil
	}
	return Policy{}, fmt.Errorf("tenant %s: %w", tenantID, models.ErrUnknownTenant)
}

// validatePolicy normalizes and checks one policy entry.
func validatePolicy(p *Policy) error {
	if p.MaxChattinessLevel < 0 || p.MaxChattinessLevel > 3 {
		return fmt.Errorf("max_chattiness_level %d out of range 0-3", p.MaxChattinessLevel)
	}
	if len(p.AllowedLanguages) == 0 {
		p.AllowedLanguages = []models.Language{models.LanguageEnglish}
	}
	for _, lang := range p.AllowedLanguages {
		if !models.IsValidLanguage(lang) {
			return fmt.Errorf("invalid allowed language %q", lang)
		}
	}
	if p.DefaultLanguage == "" {
		p.DefaultLanguage = p.AllowedLanguages[0]
	}
	if !models.IsValidLanguage(p.DefaultLanguage) {
		return fmt.Errorf("invalid default language %q", p.DefaultLanguage)
	}
	if !containsLanguage(p.AllowedLanguages, p.DefaultLanguage) {
		return fmt.Errorf("default language %q not in allowed languages", p.DefaultLanguage)
	}
	// Unknown tone tags are dropped rather than rejected.
	p.ReplyTone = tone.ValidateTags(p.ReplyTone)
	return nil
}

func containsLanguage(langs []models.Language, want models.Language) bool {
	for _, l := range langs {
		if l == want {
			return true
		}
	}
	return false
}
