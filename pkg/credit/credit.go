// Package credit computes issuable carbon-credit quantities for offset
// projects: avoided emissions net of leakage and buffer-pool withholding.
package credit

import "time"

// Project is one carbon-credit project with its baseline and monitored
// emission totals in tCO2e.
type Project struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`

	ProjectCode string `json:"project_code"`
	Name        string `json:"name"`
	Methodology string `json:"methodology,omitempty"`

	BaselineTCO2e float64 `json:"baseline_tco2e"`
	ProjectTCO2e  float64 `json:"project_tco2e"`
	LeakageTCO2e  float64 `json:"leakage_tco2e"`
	// BufferPct is the buffer-pool fraction withheld from gross reductions
	// (0.1 = 10%).
	BufferPct float64 `json:"buffer_pct"`
	Vintage   string  `json:"vintage"`

	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Result is the credit calculation breakdown for a project.
type Result struct {
	ProjectCode   string         `json:"project_code"`
	Methodology   string         `json:"methodology,omitempty"`
	BaselineTCO2e float64        `json:"baseline_tco2e"`
	ProjectTCO2e  float64        `json:"project_tco2e"`
	LeakageTCO2e  float64        `json:"leakage_tco2e"`
	BufferPct     float64        `json:"buffer_pct"`
	GrossTCO2e    float64        `json:"gross_tco2e"`
	BufferTCO2e   float64        `json:"buffer_tco2e"`
	NetTCO2e      float64        `json:"net_tco2e"`
	Vintage       string         `json:"vintage"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Compute derives issuable credits: gross reduction clamped at zero, buffer
// withheld proportionally, net clamped at zero again.
func Compute(p *Project) Result {
	gross := p.BaselineTCO2e - p.ProjectTCO2e - p.LeakageTCO2e
	if gross < 0 {
		gross = 0
	}
	buffer := gross * p.BufferPct
	net := gross - buffer
	if net < 0 {
		net = 0
	}
	return Result{
		ProjectCode:   p.ProjectCode,
		Methodology:   p.Methodology,
		BaselineTCO2e: p.BaselineTCO2e,
		ProjectTCO2e:  p.ProjectTCO2e,
		LeakageTCO2e:  p.LeakageTCO2e,
		BufferPct:     p.BufferPct,
		GrossTCO2e:    gross,
		BufferTCO2e:   buffer,
		NetTCO2e:      net,
		Vintage:       p.Vintage,
		Extra:         p.Extra,
	}
}
