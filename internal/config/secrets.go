// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DiscogsSecrets authenticates against the Discogs API.
type DiscogsSecrets struct {
	UserAgent string `yaml:"user_agent"`
	Token     string `yaml:"token"`
}

// LastfmSecrets authenticates against the Last.fm API.
type LastfmSecrets struct {
	UserAgent    string `yaml:"user_agent"`
	APIKey       string `yaml:"api_key"`
	SharedSecret string `yaml:"shared_secret"`
}

// RutrackerSecrets authenticates the scraper's forum session.
type RutrackerSecrets struct {
	Uname  string `yaml:"uname"`
	Passwd string `yaml:"passwd"`
}

// Secrets carries API credentials, kept out of the main config file.
type Secrets struct {
	Discogs   DiscogsSecrets   `yaml:"discogs,omitempty"`
	Lastfm    LastfmSecrets    `yaml:"lastfm,omitempty"`
	Rutracker RutrackerSecrets `yaml:"rutracker,omitempty"`
}

// LoadSecrets strictly decodes the secrets file. A missing file yields empty
// secrets; metadata workers fail their own startup checks when credentials
// they need are absent.
func LoadSecrets(path string) (Secrets, error) {
	var s Secrets
	// #nosec G304 -- the secrets path is derived from the operator-provided root
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("read secrets: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return s, fmt.Errorf("strict secrets parse error: %w", err)
	}
	return s, nil
}
