package core

import (
	"encoding/json"
	"fmt"
)

// RatingTier is the ordered supplier rating for one insumo. Higher is better.
type RatingTier int

const (
	RatingUnknown RatingTier = iota
	RatingPoor
	RatingRegular
	RatingGood
	RatingExcellent
)

// ratingLabels holds every label observed in supplier evaluations. Two
// vocabularies are in use ("Bueno/Malo" and "Aceptable/Poco Eficiente");
// both are read as the same four-tier scale.
var ratingLabels = map[string]RatingTier{
	"excelente":      RatingExcellent,
	"excellent":      RatingExcellent,
	"bueno":          RatingGood,
	"buena":          RatingGood,
	"aceptable":      RatingGood,
	"good":           RatingGood,
	"regular":        RatingRegular,
	"malo":           RatingPoor,
	"mala":           RatingPoor,
	"poco eficiente": RatingPoor,
	"poor":           RatingPoor,
}

// ParseRatingTier maps a rating label from either vocabulary onto the canonical tier.
func ParseRatingTier(label string) (RatingTier, error) {
	if tier, ok := ratingLabels[FoldLabel(label)]; ok {
		return tier, nil
	}
	return RatingUnknown, fmt.Errorf("unknown supplier rating %q", label)
}

func (t RatingTier) String() string {
	switch t {
	case RatingExcellent:
		return "Excellent"
	case RatingGood:
		return "Good"
	case RatingRegular:
		return "Regular"
	case RatingPoor:
		return "Poor"
	default:
		return "Unknown"
	}
}

func (t RatingTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
