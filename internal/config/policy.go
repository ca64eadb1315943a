package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"presupuestos/internal/core"
)

// Policy is the TOML file that assigns users to stores and decides which
// budget lines may carry forward.
//
//	stores = ["SPS", "Choluteca", "VA", "Nacional"]
//
//	[access]
//	admins = ["administracion@example.com"]
//	default_store = "Nacional"
//
//	[access.stores]
//	"tienda.sps@example.com" = "SPS"
//
//	[overflow]
//	lines = ["energia", "internet"]
//	categories = []
//	system_actor = "system:carry-forward"
type Policy struct {
	Stores   []string       `toml:"stores"`
	Access   AccessPolicy   `toml:"access"`
	Overflow OverflowPolicy `toml:"overflow"`
}

type AccessPolicy struct {
	Admins       []string          `toml:"admins"`
	DefaultStore string            `toml:"default_store"`
	Stores       map[string]string `toml:"stores"`
}

type OverflowPolicy struct {
	Lines       []string `toml:"lines"`
	Categories  []string `toml:"categories"`
	SystemActor string   `toml:"system_actor"`
}

// DefaultPolicy has the four stores, no admins and no overflow-eligible lines.
func DefaultPolicy() Policy {
	return Policy{
		Stores: []string{"SPS", "Choluteca", "VA", "Nacional"},
		Access: AccessPolicy{
			DefaultStore: "Nacional",
			Stores:       map[string]string{},
		},
		Overflow: OverflowPolicy{SystemActor: core.DefaultSystemActor},
	}
}

// LoadPolicy reads path over the defaults. An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes TOML policy data over the defaults.
func ParsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	md, err := toml.Decode(string(data), &p)
	if err != nil {
		return p, fmt.Errorf("parsing policy: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return p, fmt.Errorf("parsing policy: unknown keys %s", strings.Join(keys, ", "))
	}
	if p.Access.Stores == nil {
		p.Access.Stores = map[string]string{}
	}
	return p, p.Validate()
}

// Validate checks that every referenced store and category exists.
func (p Policy) Validate() error {
	var errs []string
	known := map[string]bool{}
	for _, s := range p.Stores {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, core.AllStores) {
			errs = append(errs, fmt.Sprintf("invalid store name %q", s))
			continue
		}
		known[strings.ToLower(s)] = true
	}
	if len(known) == 0 {
		errs = append(errs, "at least one store is required")
	}
	if p.Access.DefaultStore != "" && !known[strings.ToLower(p.Access.DefaultStore)] {
		errs = append(errs, fmt.Sprintf("default store %q is not a known store", p.Access.DefaultStore))
	}
	for user, store := range p.Access.Stores {
		if !known[strings.ToLower(store)] {
			errs = append(errs, fmt.Sprintf("user %s mapped to unknown store %q", user, store))
		}
	}
	for _, c := range p.Overflow.Categories {
		if _, ok := core.LookupCategory(c); !ok {
			errs = append(errs, fmt.Sprintf("unknown overflow category %q", c))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("policy validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// OverflowRules converts the [overflow] section for the ledger.
func (p Policy) OverflowRules() core.OverflowPolicy {
	rules := core.OverflowPolicy{
		LineTags:    append([]string(nil), p.Overflow.Lines...),
		SystemActor: p.Overflow.SystemActor,
	}
	for _, name := range p.Overflow.Categories {
		if c, ok := core.LookupCategory(name); ok {
			rules.Categories = append(rules.Categories, c)
		}
	}
	return rules
}
