package viewport

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("T%03d", i)
	}
	return out
}

func TestComputeDefaults(t *testing.T) {
	w := Compute(0, DefaultViewport, DefaultRowHeight, DefaultOverscan, 100)
	assert.Equal(t, 0, w.Start)
	assert.Equal(t, 11, w.End) // ceil(620/132)=5, +6
	assert.Equal(t, 0.0, w.Leading)
	assert.Equal(t, float64(89*DefaultRowHeight), w.Trailing)
}

func TestComputeScrolled(t *testing.T) {
	w := Compute(1320, 620, 132, 6, 100)
	assert.Equal(t, 4, w.Start)  // 10-6
	assert.Equal(t, 21, w.End)   // ceil(1940/132)=15, +6
	assert.Equal(t, 528.0, w.Leading)
	assert.Equal(t, float64(79*132), w.Trailing)
}

func TestComputeBoundsProperty(t *testing.T) {
	for _, n := range []int{0, 1, 7, 50} {
		for _, s := range []float64{0, 10, 131, 500, 6000, 1e6} {
			for _, o := range []int{0, 1, 6} {
				w := Compute(s, 620, 132, o, n)
				require.GreaterOrEqual(t, w.Start, 0)
				require.LessOrEqual(t, w.Start, w.End)
				require.LessOrEqual(t, w.End, n)
				if n > 0 {
					assert.InDelta(t, float64(n)*132, w.Leading+w.Trailing+float64(w.Len())*132, 1e-9)
				}
			}
		}
	}
}

func TestComputeDegenerateInputs(t *testing.T) {
	assert.Equal(t, Window{}, Compute(0, 620, 0, 6, 10))
	assert.Equal(t, Window{}, Compute(0, 620, 132, 6, 0))
}

func TestWindowerScrollPublishesVisibleIDs(t *testing.T) {
	w := New(Config{RowHeight: 10, Viewport: 30, Overscan: 1, ViewportTolerance: 2, RowTolerance: 1})
	w.SetItems(ids(20))
	assert.Equal(t, ids(20)[0:4], w.VisibleIDs())

	assert.True(t, w.ScrollTo(50))
	assert.Equal(t, ids(20)[4:9], w.VisibleIDs())
	assert.False(t, w.ScrollTo(50))

	// Clamped to the last full page.
	assert.True(t, w.ScrollTo(1e6))
	assert.Equal(t, 170.0, w.Scroll())
	assert.Equal(t, 20, w.Window().End)

	assert.True(t, w.ScrollRows(-1))
	assert.Equal(t, 160.0, w.Scroll())
}

func TestCalibrateConverges(t *testing.T) {
	w := New(DefaultConfig())
	w.SetItems(ids(50))

	assert.False(t, w.Calibrate(Measurement{Viewport: 621, RowHeight: 132.5}), "noise is ignored")
	assert.True(t, w.Calibrate(Measurement{Viewport: 400, RowHeight: 88}))
	assert.Equal(t, 88.0, w.Config().RowHeight)
	assert.Equal(t, 400.0, w.Config().Viewport)

	// The same measurement after the re-render settles.
	assert.False(t, w.Calibrate(Measurement{Viewport: 400, RowHeight: 88}))
	assert.False(t, w.Calibrate(Measurement{}))
}

func TestSetItemsResetsScroll(t *testing.T) {
	w := New(Config{RowHeight: 10, Viewport: 30, Overscan: 0})
	w.SetItems(ids(20))
	w.ScrollTo(100)
	w.SetItems(ids(5))
	assert.Equal(t, 0.0, w.Scroll())
	assert.Equal(t, ids(5)[0:3], w.VisibleIDs())
}
