package dataset

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/distill/internal/tensor"
)

// InMemory is a Source backed by a dense image tensor.
type InMemory struct {
	images     *tensor.Tensor // [N, H, W, C]
	classes    []int
	classNames []string

	shuffle *rand.Rand    // nil keeps sample order
	augment *Augmentation // nil disables augmentation
	augRNG  *rand.Rand
}

// NewInMemory wraps images [N, H, W, C] labelled by classes, where
// classes[i] indexes classNames.
func NewInMemory(images *tensor.Tensor, classes []int, classNames []string) (*InMemory, error) {
	s := images.Shape()
	if len(s) != 4 {
		return nil, fmt.Errorf("in-memory dataset: images must be [N,H,W,C], got %v", s)
	}
	if s[0] != len(classes) {
		return nil, fmt.Errorf("in-memory dataset: %d images but %d labels", s[0], len(classes))
	}
	if len(classNames) < 2 {
		return nil, fmt.Errorf("in-memory dataset: need at least 2 classes, got %d", len(classNames))
	}
	for i, c := range classes {
		if c < 0 || c >= len(classNames) {
			return nil, fmt.Errorf("in-memory dataset: sample %d has class %d outside [0,%d)", i, c, len(classNames))
		}
	}
	return &InMemory{
		images:     images,
		classes:    append([]int(nil), classes...),
		classNames: append([]string(nil), classNames...),
	}, nil
}

// WithShuffle makes every Iterator visit samples in a fresh random order
// drawn from seed. Use it for training sources only.
func (d *InMemory) WithShuffle(seed int64) *InMemory {
	d.shuffle = rand.New(rand.NewSource(seed))
	return d
}

// WithAugmentation applies aug to every sample as it is batched.
func (d *InMemory) WithAugmentation(aug Augmentation, seed int64) *InMemory {
	if !aug.Enabled() {
		d.augment = nil
		return d
	}
	d.augment = &aug
	d.augRNG = rand.New(rand.NewSource(seed))
	return d
}

// NumClasses implements Source.
func (d *InMemory) NumClasses() int { return len(d.classNames) }

// ClassNames implements Source.
func (d *InMemory) ClassNames() []string { return append([]string(nil), d.classNames...) }

// InputShape implements Source.
func (d *InMemory) InputShape() tensor.Shape { return d.images.Shape()[1:].Clone() }

// Len implements Source.
func (d *InMemory) Len() int { return len(d.classes) }

// Classes returns the class index of every sample in storage order.
func (d *InMemory) Classes() []int { return append([]int(nil), d.classes...) }

// Iterator implements Source. A non-positive batchSize yields one batch
// holding every sample.
func (d *InMemory) Iterator(batchSize int) *Iterator {
	n := d.Len()
	if batchSize <= 0 {
		batchSize = max(n, 1)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if d.shuffle != nil {
		d.shuffle.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return &Iterator{batchSize: batchSize, order: order, build: d.gather}
}

func (d *InMemory) gather(indices []int) Batch {
	shape := d.InputShape()
	sampleSize := shape.NumElements()
	images := tensor.Zeros(tensor.Shape{len(indices), shape[0], shape[1], shape[2]})
	dst := images.Data()
	src := d.images.Data()
	classes := make([]int, len(indices))
	for i, idx := range indices {
		sample := dst[i*sampleSize : (i+1)*sampleSize]
		copy(sample, src[idx*sampleSize:(idx+1)*sampleSize])
		if d.augment != nil {
			d.augment.Apply(sample, shape, d.augRNG)
		}
		classes[i] = d.classes[idx]
	}
	batch, err := NewBatch(images, classes, d.NumClasses())
	if err != nil {
		// classes were validated in NewInMemory.
		panic(err)
	}
	return batch
}
