package dataset

import (
	"math"
	"math/rand"

	"github.com/born-ml/distill/internal/tensor"
)

// Augmentation describes random per-sample transforms applied to training
// images. Zero values disable the corresponding transform.
type Augmentation struct {
	RotationRange    float64    `yaml:"rotation_range"`     // Max rotation in degrees, either direction
	WidthShiftRange  float64    `yaml:"width_shift_range"`  // Max horizontal shift as a fraction of width
	HeightShiftRange float64    `yaml:"height_shift_range"` // Max vertical shift as a fraction of height
	ZoomRange        float64    `yaml:"zoom_range"`         // Scale drawn from [1-z, 1+z]
	HorizontalFlip   bool       `yaml:"horizontal_flip"`    // Mirror half of the samples
	BrightnessRange  [2]float64 `yaml:"brightness_range"`   // Multiplier drawn from [lo, hi]; zero disables
}

// Enabled reports whether any transform is active.
func (a Augmentation) Enabled() bool {
	return a.RotationRange != 0 || a.WidthShiftRange != 0 || a.HeightShiftRange != 0 ||
		a.ZoomRange != 0 || a.HorizontalFlip || a.BrightnessRange != [2]float64{}
}

// Apply transforms one [H, W, C] sample in place.
//
// Geometric transforms are combined into a single inverse mapping from
// output to source pixel around the image center. Source coordinates that
// fall outside the image take the nearest edge pixel.
func (a Augmentation) Apply(sample []float32, shape tensor.Shape, rng *rand.Rand) {
	h, w, c := shape[0], shape[1], shape[2]

	theta := 0.0
	if a.RotationRange != 0 {
		theta = (rng.Float64()*2 - 1) * a.RotationRange * math.Pi / 180
	}
	tx, ty := 0.0, 0.0
	if a.WidthShiftRange != 0 {
		tx = (rng.Float64()*2 - 1) * a.WidthShiftRange * float64(w)
	}
	if a.HeightShiftRange != 0 {
		ty = (rng.Float64()*2 - 1) * a.HeightShiftRange * float64(h)
	}
	zoom := 1.0
	if a.ZoomRange != 0 {
		zoom = 1 + (rng.Float64()*2-1)*a.ZoomRange
	}
	flip := a.HorizontalFlip && rng.Float64() < 0.5

	if theta != 0 || tx != 0 || ty != 0 || zoom != 1 || flip {
		src := append([]float32(nil), sample...)
		cx, cy := float64(w-1)/2, float64(h-1)/2
		cos, sin := math.Cos(theta), math.Sin(theta)
		for y := range h {
			for x := range w {
				ox := float64(x) - cx - tx
				oy := float64(y) - cy - ty
				sx := (cos*ox+sin*oy)/zoom + cx
				sy := (-sin*ox+cos*oy)/zoom + cy
				if flip {
					sx = float64(w-1) - sx
				}
				ix := clampIndex(int(math.Round(sx)), w)
				iy := clampIndex(int(math.Round(sy)), h)
				copy(sample[(y*w+x)*c:(y*w+x+1)*c], src[(iy*w+ix)*c:(iy*w+ix+1)*c])
			}
		}
	}

	if lo, hi := a.BrightnessRange[0], a.BrightnessRange[1]; hi > 0 {
		factor := float32(lo + rng.Float64()*(hi-lo))
		for i, v := range sample {
			sample[i] = v * factor
		}
	}
}

func clampIndex(i, n int) int {
	return min(max(i, 0), n-1)
}
