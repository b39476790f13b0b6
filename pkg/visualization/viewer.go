// Package visualization renders reconstructed volumes as grayscale images for
// visual inspection of results.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"rbyrct/pkg/volume"
)

// Viewer renders 2D slices of a reconstructed volume. Voxel values are
// windowed to the volume's own min/max range so the full dynamic range maps
// onto the 16-bit grayscale output.
type Viewer struct {
	vol *volume.Volume

	// window bounds for value-to-gray mapping
	lo, hi float64
}

// NewViewer creates a viewer with the window set to the volume's value range.
func NewViewer(vol *volume.Volume) *Viewer {
	lo, hi := vol.MinMax()
	return &Viewer{vol: vol, lo: lo, hi: hi}
}

// SetWindow overrides the automatic value window, for comparing images across
// runs on a common scale.
func (v *Viewer) SetWindow(lo, hi float64) {
	v.lo, v.hi = lo, hi
}

func (v *Viewer) gray(val float64) color.Gray16 {
	if v.hi <= v.lo {
		return color.Gray16{}
	}
	t := (val - v.lo) / (v.hi - v.lo)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return color.Gray16{Y: uint16(t * 65535)}
}

// ExtractSlice renders one 2D slice perpendicular to the given axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	g := v.vol.Grid
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// Slice along the YZ plane
		if position >= g.Nx {
			return nil, fmt.Errorf("position %d exceeds width %d", position, g.Nx)
		}
		img = image.NewGray16(image.Rect(0, 0, g.Nz, g.Ny))
		for y := 0; y < g.Ny; y++ {
			for z := 0; z < g.Nz; z++ {
				img.SetGray16(z, y, v.gray(v.vol.At(position, y, z)))
			}
		}

	case "y", "Y":
		// Slice along the XZ plane
		if position >= g.Ny {
			return nil, fmt.Errorf("position %d exceeds height %d", position, g.Ny)
		}
		img = image.NewGray16(image.Rect(0, 0, g.Nx, g.Nz))
		for z := 0; z < g.Nz; z++ {
			for x := 0; x < g.Nx; x++ {
				img.SetGray16(x, z, v.gray(v.vol.At(x, position, z)))
			}
		}

	case "z", "Z":
		// Slice along the XY plane
		if position >= g.Nz {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, g.Nz)
		}
		img = image.NewGray16(image.Rect(0, 0, g.Nx, g.Ny))
		for y := 0; y < g.Ny; y++ {
			for x := 0; x < g.Nx; x++ {
				img.SetGray16(x, y, v.gray(v.vol.At(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves a rendered slice as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence renders and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	g := v.vol.Grid
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = g.Nx
	case "y", "Y":
		maxPos = g.Ny
	case "z", "Z":
		maxPos = g.Nz
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
