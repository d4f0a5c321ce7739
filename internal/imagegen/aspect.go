package imagegen

import "strings"

type Orientation string

const (
	Landscape Orientation = "IMAGE_ASPECT_RATIO_LANDSCAPE"
	Square    Orientation = "IMAGE_ASPECT_RATIO_SQUARE"
	Portrait  Orientation = "IMAGE_ASPECT_RATIO_PORTRAIT"
)

var aspectRatios = map[string]Orientation{
	"16:9": Landscape,
	"4:3":  Landscape,
	"1:1":  Square,
	"9:16": Portrait,
	"3:4":  Portrait,
}

// NormalizeAspectRatio maps a "W:H" ratio to the service orientation.
// Unrecognized ratios fall back to Square.
func NormalizeAspectRatio(ratio string) Orientation {
	if o, ok := aspectRatios[strings.TrimSpace(ratio)]; ok {
		return o
	}
	return Square
}

// CanonicalRatio returns ratio if it is one of the supported ratios and
// "1:1" otherwise.
func CanonicalRatio(ratio string) string {
	ratio = strings.TrimSpace(ratio)
	if _, ok := aspectRatios[ratio]; ok {
		return ratio
	}
	return "1:1"
}
