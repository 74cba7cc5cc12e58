package dataset

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/distill/internal/tensor"
)

// Synthetic generates perClass images for each of classes classes.
//
// Every class has its own mean color and a stripe orientation, so the
// classes are separable by small networks. Pixel values lie in [0, 1].
func Synthetic(classes, perClass int, shape tensor.Shape, seed int64) (*InMemory, error) {
	if classes < 2 || perClass < 1 {
		return nil, fmt.Errorf("synthetic dataset: need classes >= 2 and perClass >= 1, got %d and %d", classes, perClass)
	}
	if len(shape) != 3 {
		return nil, fmt.Errorf("synthetic dataset: shape must be [H,W,C], got %v", shape)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("synthetic dataset: %w", err)
	}

	rng := rand.New(rand.NewSource(seed))
	h, w, c := shape[0], shape[1], shape[2]
	n := classes * perClass
	images := tensor.Zeros(tensor.Shape{n, h, w, c})
	data := images.Data()
	labels := make([]int, n)
	names := make([]string, classes)

	for k := range classes {
		names[k] = fmt.Sprintf("class_%d", k)
	}

	for i := range n {
		k := i % classes
		labels[i] = k
		angle := math.Pi * float64(k) / float64(classes)
		dx, dy := math.Cos(angle), math.Sin(angle)
		base := i * h * w * c
		for y := range h {
			for x := range w {
				stripe := 0.5 + 0.5*math.Sin(2*math.Pi*(dx*float64(x)+dy*float64(y))/4)
				for ch := range c {
					tint := float64((k+ch)%classes) / float64(classes)
					v := 0.5*tint + 0.4*stripe + 0.1*rng.Float64()
					data[base+(y*w+x)*c+ch] = float32(min(max(v, 0), 1))
				}
			}
		}
	}
	return NewInMemory(images, labels, names)
}
