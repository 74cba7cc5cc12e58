package dataset

import (
	"github.com/born-ml/distill/internal/tensor"
)

// Source is a finite, restartable collection of labelled images.
type Source interface {
	// NumClasses returns the number of classes K.
	NumClasses() int
	// ClassNames returns the class names indexed by class.
	ClassNames() []string
	// InputShape returns the per-sample image shape [H, W, C].
	InputShape() tensor.Shape
	// Len returns the number of samples.
	Len() int
	// Iterator starts a new pass over the data in batches of batchSize.
	// The last batch may be smaller.
	Iterator(batchSize int) *Iterator
}

// Iterator walks one pass of a Source.
//
//	it := src.Iterator(32)
//	for it.Next() {
//	    batch := it.Batch()
//	}
type Iterator struct {
	batchSize int
	order     []int
	pos       int
	current   Batch
	build     func(indices []int) Batch
}

// Next advances to the next batch and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.pos >= len(it.order) {
		return false
	}
	end := min(it.pos+it.batchSize, len(it.order))
	it.current = it.build(it.order[it.pos:end])
	it.pos = end
	return true
}

// Batch returns the batch produced by the last call to Next.
func (it *Iterator) Batch() Batch {
	return it.current
}

// Batches returns the number of batches in a full pass.
func (it *Iterator) Batches() int {
	return (len(it.order) + it.batchSize - 1) / it.batchSize
}
