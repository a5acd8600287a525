package pipeline

import (
	"sort"
	"strings"
)

// Named 3x3 spatial filters, applied per channel between windowing and the
// geometry steps. Borders replicate the nearest edge pixel.
var filterKernels = map[string][9]float64{
	"smooth":  {1.0 / 9, 1.0 / 9, 1.0 / 9, 1.0 / 9, 1.0 / 9, 1.0 / 9, 1.0 / 9, 1.0 / 9, 1.0 / 9},
	"sharpen": {0, -1, 0, -1, 5, -1, 0, -1, 0},
	"edge":    {0, 1, 0, 1, -4, 1, 0, 1, 0},
}

// validateFilters rejects unknown filter names so bad requests fail at
// admission instead of being silently ignored.
func validateFilters(names []string) error {
	for _, name := range names {
		if _, ok := filterKernels[name]; !ok {
			return errPreprocessf("unknown filter %q (known: %s)", name, strings.Join(knownFilters(), ", "))
		}
	}
	return nil
}

func knownFilters() []string {
	names := make([]string, 0, len(filterKernels))
	for name := range filterKernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// applyFilters runs the named filters in request order. Filters preserve
// buffer dimensions.
func applyFilters(buf []float32, w, h, c int, names []string) ([]float32, error) {
	if err := validateFilters(names); err != nil {
		return nil, err
	}
	for _, name := range names {
		buf = convolve3x3(buf, w, h, c, filterKernels[name])
	}
	return buf, nil
}

func convolve3x3(buf []float32, w, h, c int, k [9]float64) []float32 {
	out := make([]float32, len(buf))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ci := 0; ci < c; ci++ {
				var sum float64
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						sy := clampIdx(y+dy, h)
						sx := clampIdx(x+dx, w)
						sum += k[(dy+1)*3+(dx+1)] * float64(buf[(sy*w+sx)*c+ci])
					}
				}
				out[(y*w+x)*c+ci] = float32(sum)
			}
		}
	}
	return out
}
