// Package deploy installs the lottery modules on a root from a manifest.
package deploy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/access"
	"github.com/MarcoPoloResearchLab/happijack/backend/internal/lottery"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownSystem = errors.New("deploy: unknown system")
	ErrUnknownRole   = errors.New("deploy: unknown role")
	ErrBadAccount    = errors.New("deploy: account must be a hex address")
	ErrEmptyManifest = errors.New("deploy: manifest lists no systems")
)

// Manifest names the modules to install and the extra roles to hand out.
type Manifest struct {
	Systems []string `yaml:"systems" json:"systems"`
	Grants  []Grant  `yaml:"grants,omitempty" json:"grants,omitempty"`
}

// Grant gives Account a role globally, or locally on the module named by
// Scope when Scope is set.
type Grant struct {
	Role    string `yaml:"role" json:"role"`
	Account string `yaml:"account" json:"account"`
	Scope   string `yaml:"scope,omitempty" json:"scope,omitempty"`
}

// DefaultManifest installs the whole lottery catalog without extra grants.
func DefaultManifest() *Manifest {
	systems := lottery.Systems()
	names := make([]string, 0, len(systems))
	for _, sys := range systems {
		names = append(names, sys.Descriptor().Name)
	}
	return &Manifest{Systems: names}
}

// LoadManifest reads a manifest file. An empty path yields the default.
func LoadManifest(path string) (*Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultManifest(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data, path)
}

// ParseManifest decodes JSON for .json files and YAML otherwise.
func ParseManifest(data []byte, filename string) (*Manifest, error) {
	var manifest Manifest
	if strings.HasSuffix(filename, ".json") {
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("parse JSON manifest: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse YAML manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (m *Manifest) Validate() error {
	if len(m.Systems) == 0 {
		return ErrEmptyManifest
	}
	var errs []error
	for _, name := range m.Systems {
		if _, ok := lottery.SystemByName(name); !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownSystem, name))
		}
	}
	for index, grant := range m.Grants {
		if _, ok := access.RoleByName(grant.Role); !ok {
			errs = append(errs, fmt.Errorf("grant %d: %w: %q", index, ErrUnknownRole, grant.Role))
		}
		if !common.IsHexAddress(grant.Account) {
			errs = append(errs, fmt.Errorf("grant %d: %w: %q", index, ErrBadAccount, grant.Account))
		}
		if grant.Scope != "" && !m.lists(grant.Scope) {
			errs = append(errs, fmt.Errorf("grant %d: scope %w: %q", index, ErrUnknownSystem, grant.Scope))
		}
	}
	return errors.Join(errs...)
}

func (m *Manifest) lists(name string) bool {
	for _, candidate := range m.Systems {
		if candidate == name {
			return true
		}
	}
	return false
}
