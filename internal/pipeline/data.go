package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/born-ml/distill/internal/config"
	"github.com/born-ml/distill/internal/dataset"
	"github.com/born-ml/distill/internal/tensor"
)

// loadData returns the training and validation sources described by cfg.
// The training source is shuffled and augmented; validation keeps its order.
func loadData(ctx context.Context, cfg config.DataConfig, seed int64) (train, validation *dataset.InMemory, err error) {
	shape := tensor.Shape{cfg.Height, cfg.Width, cfg.Channels()}

	if s := cfg.Synthetic; s != nil {
		train, err = dataset.Synthetic(s.Classes, s.PerClass, shape, seed)
		if err != nil {
			return nil, nil, fmt.Errorf("synthetic training data: %w", err)
		}
		validation, err = dataset.Synthetic(s.Classes, s.ValidationPerClass, shape, seed+1)
		if err != nil {
			return nil, nil, fmt.Errorf("synthetic validation data: %w", err)
		}
		log.Info().
			Int("classes", s.Classes).
			Int("train", train.Len()).
			Int("validation", validation.Len()).
			Msg("using synthetic data")
	} else {
		opts := dataset.ImageFolderOptions{
			Height:    cfg.Height,
			Width:     cfg.Width,
			Rescale:   cfg.Rescale,
			Grayscale: cfg.Grayscale,
			Workers:   cfg.Workers,
		}
		train, err = dataset.LoadImageFolder(ctx, cfg.TrainDir, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("training data: %w", err)
		}
		validation, err = dataset.LoadImageFolder(ctx, cfg.ValidationDir, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("validation data: %w", err)
		}
		if !slices.Equal(train.ClassNames(), validation.ClassNames()) {
			return nil, nil, fmt.Errorf("class mismatch: training %v, validation %v", train.ClassNames(), validation.ClassNames())
		}
		log.Info().
			Strs("classes", train.ClassNames()).
			Int("train", train.Len()).
			Int("validation", validation.Len()).
			Msg("loaded image folders")
	}

	train.WithShuffle(seed).WithAugmentation(cfg.Augmentation, seed+2)
	return train, validation, nil
}
