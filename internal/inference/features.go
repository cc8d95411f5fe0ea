package inference

import (
	"math"

	"github.com/ItsKevinRafaell/cctv-ai-worker/internal/domain/entity"
)

const (
	histBins = 32

	// RawFeatureDim is the natural length of the descriptor: three 32-bin
	// histograms plus ten scalar statistics.
	RawFeatureDim = 3*histBins + 10

	cannyLow  = 100.0
	cannyHigh = 200.0
)

// Extractor computes the per-frame descriptor the temporal model was
// trained on. It is stateless and safe to share.
type Extractor struct {
	dim int
}

func NewExtractor(dim int) *Extractor {
	if dim <= 0 {
		dim = RawFeatureDim
	}
	return &Extractor{dim: dim}
}

func (e *Extractor) Dim() int { return e.dim }

// Extract returns a vector of exactly Dim values. adjusted reports that the
// raw descriptor had to be zero-padded or truncated to get there.
func (e *Extractor) Extract(f entity.Frame) (vec []float32, adjusted bool) {
	return fitDim(rawFeatures(f), e.dim)
}

func fitDim(raw []float32, dim int) ([]float32, bool) {
	if len(raw) == dim {
		return raw, false
	}
	out := make([]float32, dim)
	copy(out, raw)
	return out, true
}

func rawFeatures(f entity.Frame) []float32 {
	n := f.Width * f.Height
	feats := make([]float32, 0, RawFeatureDim)
	if n == 0 {
		return append(feats, make([]float32, RawFeatureDim)...)
	}

	var hist [3][histBins]float64
	var sum, sumSq [3]float64
	gray := make([]uint8, n)

	for i := 0; i < n; i++ {
		px := f.Pix[i*3 : i*3+3]
		for c := 0; c < 3; c++ {
			v := float64(px[c]) / 255.0
			bin := int(v * histBins)
			if bin >= histBins {
				bin = histBins - 1
			}
			hist[c][bin]++
			sum[c] += v
			sumSq[c] += v * v
		}
		gray[i] = grayValue(px[0], px[1], px[2])
	}

	for c := 0; c < 3; c++ {
		var total float64
		for _, h := range hist[c] {
			total += h
		}
		for _, h := range hist[c] {
			if total > 0 {
				feats = append(feats, float32(h/total))
			} else {
				feats = append(feats, 0)
			}
		}
	}

	var mean, std [3]float64
	for c := 0; c < 3; c++ {
		mean[c] = sum[c] / float64(n)
		std[c] = math.Sqrt(math.Max(sumSq[c]/float64(n)-mean[c]*mean[c], 0))
	}

	grayMean, grayStd := meanStdU8(gray)

	feats = append(feats,
		float32(mean[0]), float32(mean[1]), float32(mean[2]),
		float32(std[0]), float32(std[1]), float32(std[2]),
		float32(grayMean/255.0), float32(grayStd/255.0),
		float32(edgeDensity(f)),
		float32(laplacianVariance(gray, f.Width, f.Height)/(255.0*255.0)),
	)
	return feats
}

// grayValue uses BT.601 weights with channel 0 as blue, matching how the
// training frames were converted.
func grayValue(b, g, r byte) uint8 {
	v := 0.114*float64(b) + 0.587*float64(g) + 0.299*float64(r)
	return uint8(math.Min(math.Round(v), 255))
}

func meanStdU8(values []uint8) (float64, float64) {
	var sum, sumSq float64
	for _, v := range values {
		f := float64(v)
		sum += f
		sumSq += f * f
	}
	n := float64(len(values))
	mean := sum / n
	return mean, math.Sqrt(math.Max(sumSq/n-mean*mean, 0))
}

// reflect101 mirrors an out-of-range index without repeating the border
// sample (… 2 1 | 0 1 2 … n-2 n-1 | n-2 …).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func laplacianVariance(gray []uint8, w, h int) float64 {
	at := func(x, y int) float64 {
		return float64(gray[reflect101(y, h)*w+reflect101(x, w)])
	}
	var sum, sumSq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += v
			sumSq += v * v
		}
	}
	n := float64(w * h)
	mean := sum / n
	return math.Max(sumSq/n-mean*mean, 0)
}

// edgeDensity runs a Canny detector over the colour frame (per pixel the
// channel with the strongest gradient wins) and returns the edge fraction.
func edgeDensity(f entity.Frame) float64 {
	w, h := f.Width, f.Height
	n := w * h
	mag := make([]float64, n)
	gxs := make([]float64, n)
	gys := make([]float64, n)

	ch := func(x, y, c int) float64 {
		return float64(f.Pix[(reflect101(y, h)*w+reflect101(x, w))*3+c])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := -1.0
			for c := 0; c < 3; c++ {
				gx := (ch(x+1, y-1, c) + 2*ch(x+1, y, c) + ch(x+1, y+1, c)) -
					(ch(x-1, y-1, c) + 2*ch(x-1, y, c) + ch(x-1, y+1, c))
				gy := (ch(x-1, y+1, c) + 2*ch(x, y+1, c) + ch(x+1, y+1, c)) -
					(ch(x-1, y-1, c) + 2*ch(x, y-1, c) + ch(x+1, y-1, c))
				m := math.Abs(gx) + math.Abs(gy)
				if m > best {
					best = m
					gxs[y*w+x], gys[y*w+x] = gx, gy
				}
			}
			mag[y*w+x] = best
		}
	}

	magAt := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	const (
		none = iota
		weak
		strong
	)
	state := make([]uint8, n)
	stack := make([]int, 0, n/8)

	tan22 := math.Tan(math.Pi / 8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m <= cannyLow {
				continue
			}
			ax, ay := math.Abs(gxs[i]), math.Abs(gys[i])
			var n1, n2 float64
			switch {
			case ay <= ax*tan22:
				n1, n2 = magAt(x-1, y), magAt(x+1, y)
			case ay >= ax/tan22:
				n1, n2 = magAt(x, y-1), magAt(x, y+1)
			case (gxs[i] > 0) == (gys[i] > 0):
				n1, n2 = magAt(x-1, y-1), magAt(x+1, y+1)
			default:
				n1, n2 = magAt(x+1, y-1), magAt(x-1, y+1)
			}
			if m < n1 || m < n2 {
				continue
			}
			if m > cannyHigh {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	var edges int
	for _, s := range state {
		if s == strong {
			edges++
		}
	}
	return float64(edges) / float64(n)
}
