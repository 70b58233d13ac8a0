package models

import (
	"encoding/json"
	"fmt"
)

// RiskLevel is an ordinal classification of a login attempt
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (l RiskLevel) String() string {
	switch l {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	case RiskCritical:
		return "Critical"
	default:
		return fmt.Sprintf("RiskLevel(%d)", int(l))
	}
}

// MarshalJSON encodes the level by name
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Recommended actions per risk level
const (
	ActionAllow             = "allow"
	ActionAdditionalVerify  = "require additional verification"
	ActionRequireMFA        = "require MFA"
	ActionBlockManualReview = "block and require manual review"
)

// RecommendedAction maps a risk level to its fixed follow-up
func (l RiskLevel) RecommendedAction() string {
	switch {
	case l >= RiskCritical:
		return ActionBlockManualReview
	case l >= RiskHigh:
		return ActionRequireMFA
	case l >= RiskMedium:
		return ActionAdditionalVerify
	default:
		return ActionAllow
	}
}

// RiskAssessment is the transient outcome of evaluating a login attempt
type RiskAssessment struct {
	RiskLevel                  RiskLevel `json:"risk_level"`
	RiskFactors                []string  `json:"risk_factors"`
	RequiresTwoFactor          bool      `json:"requires_two_factor"`
	RequiresDeviceVerification bool      `json:"requires_device_verification"`
	RecommendedAction          string    `json:"recommended_action"`

	// Location resolved while assessing; nil when unknown
	Location *Location `json:"-"`
	// Fingerprint of the client device
	Fingerprint string `json:"-"`
}

// Raise lifts the level to at least l
func (a *RiskAssessment) Raise(l RiskLevel) {
	if l > a.RiskLevel {
		a.RiskLevel = l
	}
}

// AddFactor records a triggered factor and raises the level
func (a *RiskAssessment) AddFactor(factor string, l RiskLevel) {
	a.RiskFactors = append(a.RiskFactors, factor)
	a.Raise(l)
}

// Finalize derives the dependent fields from RiskLevel
func (a *RiskAssessment) Finalize() {
	if a.RiskFactors == nil {
		a.RiskFactors = []string{}
	}
	a.RequiresTwoFactor = a.RiskLevel >= RiskMedium
	a.RecommendedAction = a.RiskLevel.RecommendedAction()
}
