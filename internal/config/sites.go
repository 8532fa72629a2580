package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/lei/rundeck-notify/internal/models"
	"gopkg.in/yaml.v3"
)

// SitesConfig represents the site registry file structure. This file is
// the single source of truth for named Rundeck sites.
type SitesConfig struct {
	Sites []SiteDefinition `yaml:"sites"`
}

// SiteDefinition represents one Rundeck site in the registry file
type SiteDefinition struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	Login      string `yaml:"login"`
	Password   string `yaml:"password"`
	Token      string `yaml:"token"`
	APIVersion int    `yaml:"api_version"`
}

// LoadSites reads and parses the site registry file. Environment
// variables are expanded first so credentials can stay out of the file.
func LoadSites(path string) ([]*models.Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg SitesConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse sites file: %w", err)
	}

	return ValidateSites(cfg.Sites)
}

// ValidateSites checks the site invariants and converts to models
func ValidateSites(defs []SiteDefinition) ([]*models.Site, error) {
	sites := make([]*models.Site, 0, len(defs))
	seen := make(map[string]bool)

	for i, sd := range defs {
		if sd.Name == "" {
			return nil, fmt.Errorf("site at index %d missing name", i)
		}
		if seen[sd.Name] {
			return nil, fmt.Errorf("duplicate site name %q", sd.Name)
		}
		seen[sd.Name] = true

		if sd.URL == "" {
			return nil, fmt.Errorf("site %s missing url", sd.Name)
		}
		if parsed, err := url.Parse(sd.URL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("site %s has a malformed url %q", sd.Name, sd.URL)
		}
		if sd.Token == "" && (sd.Login == "" || sd.Password == "") {
			return nil, fmt.Errorf("site %s needs either a token or a login/password pair", sd.Name)
		}

		sites = append(sites, &models.Site{
			Name:       sd.Name,
			URL:        sd.URL,
			Login:      sd.Login,
			Password:   sd.Password,
			Token:      sd.Token,
			APIVersion: sd.APIVersion,
		})
	}

	return sites, nil
}
