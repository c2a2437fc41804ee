package synth

import (
	"fmt"
	"strings"
)

// Quality is a named speed/fidelity tradeoff for clip synthesis.
type Quality string

const (
	QualityDraft    Quality = "draft"
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
	QualityUltra    Quality = "ultra"
)

// SampleSteps maps a quality preset to the diffusion step count sent to
// the synthesis app.
func (q Quality) SampleSteps() int {
	switch q {
	case QualityDraft:
		return 15
	case QualityStandard:
		return 30
	case QualityHigh:
		return 50
	case QualityUltra:
		return 75
	default:
		return 30
	}
}

// ParseQuality validates a quality name from configuration.
func ParseQuality(raw string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(raw)))
	switch q {
	case QualityDraft, QualityStandard, QualityHigh, QualityUltra:
		return q, nil
	case "":
		return QualityStandard, nil
	default:
		return "", fmt.Errorf("unknown quality %q", raw)
	}
}
