package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/carbonledger/core/pkg/gwp"
)

// OrgProfile is an organization's reporting configuration profile.
type OrgProfile struct {
	Name        string          `yaml:"name" json:"name"`
	Code        string          `yaml:"code" json:"code"`
	GWPVersion  string          `yaml:"gwp_version" json:"gwp_version"`
	Methodology string          `yaml:"methodology,omitempty" json:"methodology,omitempty"`
	BaseYear    int             `yaml:"base_year,omitempty" json:"base_year,omitempty"`
	Reporting   ReportingConfig `yaml:"reporting" json:"reporting"`
	Credit      CreditConfig    `yaml:"credit" json:"credit"`
	Audit       AuditConfig     `yaml:"audit" json:"audit"`
}

// ReportingConfig holds per-org reporting scope settings.
type ReportingConfig struct {
	Scopes        []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
	PeriodFormat  string   `yaml:"period_format,omitempty" json:"period_format,omitempty"`
	RoundDecimals int      `yaml:"round_decimals,omitempty" json:"round_decimals,omitempty"`
}

// CreditConfig holds credit-project defaults.
type CreditConfig struct {
	DefaultBufferPct float64 `yaml:"default_buffer_pct" json:"default_buffer_pct"`
}

// AuditConfig holds audit acceptance thresholds.
type AuditConfig struct {
	MinScore        int  `yaml:"min_score" json:"min_score"`
	BlockOnCritical bool `yaml:"block_on_critical" json:"block_on_critical"`
}

// LoadProfile loads an org profile YAML by code. It searches the profiles
// directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*OrgProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile OrgProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}
	profile.GWPVersion = gwp.Normalize(profile.GWPVersion)
	if profile.GWPVersion == "" {
		profile.GWPVersion = gwp.DefaultVersion
	}
	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*OrgProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*OrgProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile OrgProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		profile.GWPVersion = gwp.Normalize(profile.GWPVersion)
		if profile.GWPVersion == "" {
			profile.GWPVersion = gwp.DefaultVersion
		}
		profiles[profile.Code] = &profile
	}
	return profiles, nil
}
