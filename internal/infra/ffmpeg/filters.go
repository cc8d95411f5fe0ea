package ffmpeg

import (
	"fmt"
	"strings"
)

// FilterBuilder assembles a -vf filter chain.
type FilterBuilder struct {
	filters []string
}

func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{}
}

// SelectEvery keeps frames 0, n, 2n, ... by decode index.
func (fb *FilterBuilder) SelectEvery(n int) *FilterBuilder {
	if n <= 1 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf(`select=not(mod(n\,%d))`, n))
	return fb
}

func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d:flags=bilinear", width, height))
	return fb
}

// Banner draws a filled black strip of the given height across the top.
func (fb *FilterBuilder) Banner(height int) *FilterBuilder {
	fb.filters = append(fb.filters, fmt.Sprintf("drawbox=x=0:y=0:w=iw:h=%d:color=black:t=fill", height))
	return fb
}

func (fb *FilterBuilder) Text(text string, x, y, size int, color string) *FilterBuilder {
	fb.filters = append(fb.filters, fmt.Sprintf("drawtext=text='%s':x=%d:y=%d:fontsize=%d:fontcolor=%s",
		escapeText(text), x, y, size, color))
	return fb
}

func (fb *FilterBuilder) Build() string {
	return strings.Join(fb.filters, ",")
}

func (fb *FilterBuilder) Empty() bool {
	return len(fb.filters) == 0
}

var textEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `%`, `\%`)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}
