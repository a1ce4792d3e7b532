package engine

import (
	"image"
	"image/color"
)

// ToGray converts any frame to grayscale. Returns the input unchanged when
// it is already *image.Gray.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// NormalizeFace crops a face region out of a grayscale frame and resizes it
// to size x size via nearest-neighbour sampling. Returns nil for degenerate
// regions.
func NormalizeFace(gray *image.Gray, r image.Rectangle, size int) *image.Gray {
	r = r.Intersect(gray.Bounds())
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return nil
	}

	dst := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			srcX := r.Min.X + x*r.Dx()/size
			srcY := r.Min.Y + y*r.Dy()/size
			dst.SetGray(x, y, gray.GrayAt(srcX, srcY))
		}
	}
	return dst
}

// primaryFace picks the largest box when the detector returned several. The
// detector already orders by score, so ties go to index 0.
func primaryFace(faces []image.Rectangle) image.Rectangle {
	best := faces[0]
	bestArea := best.Dx() * best.Dy()
	for _, r := range faces[1:] {
		if a := r.Dx() * r.Dy(); a > bestArea {
			best = r
			bestArea = a
		}
	}
	return best
}
