package synthesis

import (
	"strings"

	"github.com/gemfinder/backend/internal/catalog"
)

// Durability scoring is a 0-100 composite:
//   - longevity        0-40  (expected years of use)
//   - failure rate     0-25  (share of units still working after 5+ years)
//   - repairability    0-20  (can it be fixed)
//   - material quality 0-15  (construction materials)

var materialPoints = map[string]int{
	"cast iron":               35,
	"enameled cast iron":      35,
	"forged steel":            35,
	"high-carbon stainless":   35,
	"carbon steel":            34,
	"stainless steel":         33,
	"copper":                  30,
	"hard-anodized aluminum":  30,
	"wood":                    28,
	"bamboo":                  26,
	"aluminum":                25,
	"ceramic":                 25,
	"glass":                   22,
}

func longevityScore(lifespanYears float64) int {
	switch {
	case lifespanYears >= 15:
		return 40
	case lifespanYears >= 10:
		return 32
	case lifespanYears >= 5:
		return 24
	case lifespanYears >= 3:
		return 16
	default:
		return 8
	}
}

func failureRateScore(failurePoints []string, communityEvidence int) int {
	// Without direct still-working statistics, estimate a working percentage
	// and apply the 0.25 weighting.
	workingPercent := 75.0
	if communityEvidence > 10 {
		workingPercent = 80.0
	}
	// every reported failure mode shaves the estimate
	workingPercent -= float64(len(failurePoints)) * 5
	if workingPercent < 20 {
		workingPercent = 20
	}

	return clamp(int(workingPercent*0.25), 0, 25)
}

func repairabilityRaw(repairability, maintenanceLevel string) int {
	info := strings.ToLower(repairability)
	switch {
	case containsAny(info, "user-serviceable", "easy to repair", "diy repair", "spare parts available"):
		return 95
	case containsAny(info, "professional repair", "authorized service", "repairable"):
		return 75
	case containsAny(info, "some repair", "limited repair", "basic maintenance"):
		return 55
	case containsAny(info, "difficult to repair", "proprietary parts", "not repairable"):
		return 30
	}

	// fall back to the maintenance level as a proxy
	level := strings.ToLower(maintenanceLevel)
	switch {
	case strings.Contains(level, "low"):
		return 75
	case strings.Contains(level, "medium"), strings.Contains(level, "moderate"):
		return 50
	case strings.Contains(level, "high"):
		return 40
	}
	return 50
}

func materialQualityScore(materials []string, tier catalog.Tier, whyGem string) int {
	raw := 0
	for _, material := range materials {
		lower := strings.ToLower(material)
		for name, points := range materialPoints {
			if strings.Contains(lower, name) {
				raw += points
				break
			}
		}
	}
	if raw > 100 {
		raw = 100
	}

	if raw == 0 {
		switch tier {
		case catalog.TierBest:
			raw = 80
		case catalog.TierBetter:
			raw = 60
		default:
			raw = 40
		}
	}

	if containsAny(strings.ToLower(whyGem), "professional-grade", "commercial quality", "heirloom", "lifetime warranty") {
		raw = min(raw+10, 100)
	}

	return clamp(int(float64(raw)*0.15), 0, 15)
}

func durabilityGrade(total int) string {
	switch {
	case total >= 90:
		return "A+"
	case total >= 85:
		return "A"
	case total >= 80:
		return "A-"
	case total >= 75:
		return "B+"
	case total >= 70:
		return "B"
	case total >= 65:
		return "B-"
	case total >= 60:
		return "C+"
	case total >= 55:
		return "C"
	default:
		return "C-"
	}
}

type durabilityInput struct {
	LifespanYears     float64
	Materials         []string
	MaintenanceLevel  string
	Repairability     string
	FailurePoints     []string
	Tier              catalog.Tier
	WhyGem            string
	CommunityEvidence int
	DataSources       []string
}

func scoreDurability(in durabilityInput) *catalog.DurabilityData {
	repairRaw := repairabilityRaw(in.Repairability, in.MaintenanceLevel)

	total := longevityScore(in.LifespanYears) +
		failureRateScore(in.FailurePoints, in.CommunityEvidence) +
		clamp(int(float64(repairRaw)*0.20), 0, 20) +
		materialQualityScore(in.Materials, in.Tier, in.WhyGem)

	return &catalog.DurabilityData{
		Score:                clamp(total, 0, 100),
		Grade:                durabilityGrade(total),
		AverageLifespanYears: in.LifespanYears,
		RepairabilityScore:   repairRaw,
		FailurePoints:        in.FailurePoints,
		DataSources:          in.DataSources,
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
