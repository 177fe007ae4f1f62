package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bridgemint/native/collateral"
)

// LoadCollateralTypes reads the collateral registry file and returns a
// populated registry. The file is a YAML list of collateral type definitions;
// exactly one POOL-class entry is required.
func LoadCollateralTypes(path string) (*collateral.Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read collateral registry: %w", err)
	}
	var entries []collateral.Type
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("config: parse collateral registry: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("config: collateral registry %s is empty", path)
	}
	registry := collateral.NewRegistry()
	poolCount := 0
	for _, entry := range entries {
		if entry.Class == collateral.ClassPool {
			poolCount++
		}
		if err := registry.Add(entry); err != nil {
			return nil, fmt.Errorf("config: collateral type %q: %w", entry.Symbol, err)
		}
	}
	if poolCount != 1 {
		return nil, fmt.Errorf("config: collateral registry needs exactly one pool type, found %d", poolCount)
	}
	return registry, nil
}
