package proctor

import "testing"

// attentiveLandmarks builds a full landmark set describing open eyes with
// centered irises, then lets a test distort individual points.
func attentiveLandmarks() []Point {
	pts := make([]Point, minLandmarks)

	// Left eye spans x 0.30..0.40, right eye x 0.60..0.70.
	pts[leftEyeOuter] = Point{X: 0.30, Y: 0.40}
	pts[leftEyeInner] = Point{X: 0.40, Y: 0.40}
	pts[rightEyeInner] = Point{X: 0.60, Y: 0.40}
	pts[rightEyeOuter] = Point{X: 0.70, Y: 0.40}

	// Lid gap of 0.02 over an eye width of 0.10 gives openness 0.2.
	pts[leftLidUpper] = Point{X: 0.35, Y: 0.39}
	pts[leftLidLower] = Point{X: 0.35, Y: 0.41}
	pts[rightLidUpper] = Point{X: 0.65, Y: 0.39}
	pts[rightLidLower] = Point{X: 0.65, Y: 0.41}

	for i := 468; i < 472; i++ {
		pts[i] = Point{X: 0.35, Y: 0.40}
	}
	for i := 473; i < 477; i++ {
		pts[i] = Point{X: 0.65, Y: 0.40}
	}
	return pts
}

func TestOnScreen(t *testing.T) {
	cfg := DefaultClassifierConfig()

	tests := []struct {
		name      string
		landmarks func() []Point
		want      bool
	}{
		{
			name:      "attentive face",
			landmarks: attentiveLandmarks,
			want:      true,
		},
		{
			name:      "no landmarks",
			landmarks: func() []Point { return nil },
			want:      false,
		},
		{
			name: "too few landmarks",
			landmarks: func() []Point {
				return attentiveLandmarks()[:400]
			},
			want: false,
		},
		{
			name: "eyes closed",
			landmarks: func() []Point {
				pts := attentiveLandmarks()
				pts[leftLidUpper].Y = 0.40
				pts[leftLidLower].Y = 0.401
				return pts
			},
			want: false,
		},
		{
			name: "left iris at eye corner",
			landmarks: func() []Point {
				pts := attentiveLandmarks()
				for i := 468; i < 472; i++ {
					pts[i].X = 0.31
				}
				return pts
			},
			want: false,
		},
		{
			name: "right iris at eye corner",
			landmarks: func() []Point {
				pts := attentiveLandmarks()
				for i := 473; i < 477; i++ {
					pts[i].X = 0.69
				}
				return pts
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OnScreen(tt.landmarks(), cfg); got != tt.want {
				t.Errorf("OnScreen() = %v, want %v", got, tt.want)
			}
		})
	}
}
