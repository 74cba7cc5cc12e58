package dataset

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/distill/internal/parallel"
	"github.com/born-ml/distill/internal/tensor"
)

// ImageFolderOptions controls how an image folder is decoded.
type ImageFolderOptions struct {
	Height    int     // Target height in pixels
	Width     int     // Target width in pixels
	Rescale   float32 // Multiplier applied to 8-bit channel values (default 1/255)
	Grayscale bool    // Decode to a single channel instead of RGB
	Workers   int     // Concurrent decoders (default: parallel.DefaultConfig().NumWorkers)
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// LoadImageFolder decodes a directory laid out as one sub-directory per
// class:
//
//	root/
//	  cats/ 001.jpg 002.png ...
//	  dogs/ 001.jpg ...
//
// Class indices follow the sorted sub-directory names. Images are resized
// to Height×Width with bilinear interpolation and stored in file order.
func LoadImageFolder(ctx context.Context, root string, opts ImageFolderOptions) (*InMemory, error) {
	if opts.Height <= 0 || opts.Width <= 0 {
		return nil, fmt.Errorf("image folder %s: invalid target size %dx%d", root, opts.Height, opts.Width)
	}
	if opts.Rescale == 0 {
		opts.Rescale = 1.0 / 255
	}
	if opts.Workers <= 0 {
		opts.Workers = parallel.DefaultConfig().NumWorkers
	}
	channels := 3
	if opts.Grayscale {
		channels = 1
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("image folder: %w", err)
	}
	var classNames []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			classNames = append(classNames, e.Name())
		}
	}
	sort.Strings(classNames)
	if len(classNames) < 2 {
		return nil, fmt.Errorf("image folder %s: need at least 2 class directories, found %d", root, len(classNames))
	}

	var files []string
	var classes []int
	for k, name := range classNames {
		dirEntries, err := os.ReadDir(filepath.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("image folder: %w", err)
		}
		for _, e := range dirEntries {
			if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			files = append(files, filepath.Join(root, name, e.Name()))
			classes = append(classes, k)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("image folder %s: no images found", root)
	}

	sampleSize := opts.Height * opts.Width * channels
	images := tensor.Zeros(tensor.Shape{len(files), opts.Height, opts.Width, channels})
	data := images.Data()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return decodeInto(path, data[i*sampleSize:(i+1)*sampleSize], opts, channels)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("image folder %s: %w", root, err)
	}

	return NewInMemory(images, classes, classNames)
}

// decodeInto decodes the image at path, resizes it and writes rescaled
// channel values into dst.
func decodeInto(path string, dst []float32, opts ImageFolderOptions, channels int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	resized := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.BiLinear.Scale(resized, resized.Bounds(), src, src.Bounds(), draw.Src, nil)

	for y := range opts.Height {
		for x := range opts.Width {
			off := resized.PixOffset(x, y)
			r := float32(resized.Pix[off])
			gr := float32(resized.Pix[off+1])
			b := float32(resized.Pix[off+2])
			base := (y*opts.Width + x) * channels
			if channels == 1 {
				dst[base] = (0.299*r + 0.587*gr + 0.114*b) * opts.Rescale
				continue
			}
			dst[base] = r * opts.Rescale
			dst[base+1] = gr * opts.Rescale
			dst[base+2] = b * opts.Rescale
		}
	}
	return nil
}
