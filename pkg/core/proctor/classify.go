// Package proctor watches the candidate through the camera and escalates
// sustained inattention into warnings and, ultimately, a session lockout.
package proctor

import "math"

// Point is a normalized facial landmark coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Face-mesh landmark indices, valid for detectors that emit refined iris
// landmarks (477 points or more).
const (
	minLandmarks = 477

	leftEyeOuter  = 33
	leftEyeInner  = 133
	rightEyeInner = 362
	rightEyeOuter = 263

	leftLidUpper  = 159
	leftLidLower  = 145
	rightLidUpper = 386
	rightLidLower = 374
)

// ClassifierConfig holds the attention-test thresholds. These are tuned
// policy values; loosening them weakens proctoring strictness.
type ClassifierConfig struct {
	// EyeOpenMin is the minimum lid-distance to eye-width ratio for an
	// eye to count as open.
	EyeOpenMin float64 `json:"eye_open_min"`

	// IrisRatioMin and IrisRatioMax bound the horizontal iris position
	// within the eye width for the gaze to count as centered.
	IrisRatioMin float64 `json:"iris_ratio_min"`
	IrisRatioMax float64 `json:"iris_ratio_max"`
}

// DefaultClassifierConfig returns the standard attention thresholds.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		EyeOpenMin:   0.12,
		IrisRatioMin: 0.2,
		IrisRatioMax: 0.8,
	}
}

// OnScreen reports whether a landmark set describes a candidate looking at
// the screen: both eyes open beyond the openness threshold and both irises
// horizontally centered within their eye. A short or missing landmark set
// classifies as off-screen.
func OnScreen(landmarks []Point, cfg ClassifierConfig) bool {
	if len(landmarks) < minLandmarks {
		return false
	}

	leftOuter := landmarks[leftEyeOuter]
	leftInner := landmarks[leftEyeInner]
	rightInner := landmarks[rightEyeInner]
	rightOuter := landmarks[rightEyeOuter]

	leftIris := averagePoint(landmarks[468:472])
	rightIris := averagePoint(landmarks[473:477])

	leftEyeWidth := math.Max(distance(leftOuter, leftInner), 0.0001)
	rightEyeWidth := math.Max(distance(rightOuter, rightInner), 0.0001)
	leftEyeOpen := distance(landmarks[leftLidUpper], landmarks[leftLidLower]) / leftEyeWidth
	rightEyeOpen := distance(landmarks[rightLidUpper], landmarks[rightLidLower]) / rightEyeWidth

	leftRatio := (leftIris.X - leftOuter.X) / math.Max(leftInner.X-leftOuter.X, 0.0001)
	rightRatio := (rightIris.X - rightInner.X) / math.Max(rightOuter.X-rightInner.X, 0.0001)

	eyesOpen := leftEyeOpen > cfg.EyeOpenMin && rightEyeOpen > cfg.EyeOpenMin
	gazeCentered := leftRatio > cfg.IrisRatioMin && leftRatio < cfg.IrisRatioMax &&
		rightRatio > cfg.IrisRatioMin && rightRatio < cfg.IrisRatioMax
	return eyesOpen && gazeCentered
}

func distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func averagePoint(points []Point) Point {
	var sum Point
	for _, p := range points {
		sum.X += p.X
		sum.Y += p.Y
	}
	n := float64(len(points))
	return Point{X: sum.X / n, Y: sum.Y / n}
}
