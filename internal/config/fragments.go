package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fragment is a conf.d file adding or overriding tag entries.
type Fragment struct {
	Description string               `yaml:"description"`
	Tags        map[string]TagConfig `yaml:"tags"`
}

// FragmentInfo summarises a fragment for listing.
type FragmentInfo struct {
	Name        string
	Description string
	Enabled     bool
	Path        string
	Tags        []string
}

// LoadFragments reads every .yaml file in dir in lexical order and merges
// its tags into a copy of base. A fragment's entry replaces the base entry
// for the same tag. Files whose base name starts with "_" are listed but
// not merged. A missing directory is not an error.
func LoadFragments(dir string, base *Config) (*Config, []FragmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil
		}
		return nil, nil, fmt.Errorf("reading fragment dir: %w", err)
	}

	result := cloneConfig(base)
	var infos []FragmentInfo

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		enabled := !strings.HasPrefix(baseName, "_")

		frag, err := loadFragment(path)
		if err != nil {
			return nil, nil, err
		}

		info := FragmentInfo{
			Name:        baseName,
			Description: frag.Description,
			Enabled:     enabled,
			Path:        path,
		}
		for tag := range frag.Tags {
			info.Tags = append(info.Tags, tag)
		}
		sort.Strings(info.Tags)
		infos = append(infos, info)

		if !enabled {
			continue
		}
		for tag, tc := range frag.Tags {
			result.Tags[tag] = tc
		}
	}

	return result, infos, nil
}

func loadFragment(path string) (*Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var frag Fragment
	if err := yaml.Unmarshal(data, &frag); err != nil {
		return nil, fmt.Errorf("failed to parse fragment %s: %w", path, err)
	}
	return &frag, nil
}

func cloneConfig(c *Config) *Config {
	clone := *c
	clone.Tags = make(map[string]TagConfig, len(c.Tags))
	for tag, tc := range c.Tags {
		clone.Tags[tag] = tc
	}
	return &clone
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
