package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cavedrone/cave"
)

func window(t *testing.T, segs ...[2]int) *cave.Window {
	t.Helper()
	w := cave.NewWindow(50)
	for _, s := range segs {
		if _, err := w.Append(s[0], s[1]); err != nil {
			t.Fatalf("append %v: %v", s, err)
		}
	}
	return w
}

func TestEvaluateClearWithoutGeometry(t *testing.T) {
	tu := testTuning()
	assert.Equal(t, Clear, Evaluate(Position{X: -500, Y: 0}, cave.NewWindow(50), tu))

	w := window(t, [2]int{100, 200})
	assert.Equal(t, Clear, Evaluate(Position{X: -500, Y: 25}, w, tu), "depth not streamed yet")
}

func TestEvaluateBounds(t *testing.T) {
	tu := testTuning()
	w := window(t, [2]int{100, 200}, [2]int{110, 210})

	cases := []struct {
		pos  Position
		want Verdict
	}{
		{Position{X: 150, Y: 0}, Clear},
		{Position{X: 100, Y: 5}, Clear},
		{Position{X: 180, Y: 9.9}, Clear},
		{Position{X: 99, Y: 0}, Colliding},
		{Position{X: 181, Y: 0}, Colliding},
		{Position{X: 150, Y: 10}, Clear},
		{Position{X: 90, Y: 10}, Colliding},
		{Position{X: 105, Y: 15}, Colliding},
		{Position{X: 190, Y: 19}, Clear},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Evaluate(c.pos, w, tu), "pos %+v", c.pos)
	}
}

func TestEvaluateSkipsEvictedSegments(t *testing.T) {
	tu := testTuning()
	w := cave.NewWindow(1)
	_, _ = w.Append(100, 200)
	_, _ = w.Append(0, 10)

	assert.Equal(t, Clear, Evaluate(Position{X: 150, Y: 0}, w, tu), "segment 0 evicted")
	assert.Equal(t, Colliding, Evaluate(Position{X: 150, Y: 10}, w.Snapshot(), tu))
}

func TestEvaluateOriginOffset(t *testing.T) {
	tu := testTuning()
	tu.OriginX = 160
	w := window(t, [2]int{-100, 100})

	assert.Equal(t, Clear, Evaluate(Position{X: 150, Y: 0}, w, tu))
	assert.Equal(t, Colliding, Evaluate(Position{X: 50, Y: 0}, w, tu))
}

func TestDepthIndex(t *testing.T) {
	tu := testTuning()
	assert.Equal(t, 0, DepthIndex(9.99, tu))
	assert.Equal(t, 1, DepthIndex(10, tu))
	assert.Equal(t, "colliding", Colliding.String())
}

func TestEvaluatePathChecksSkippedRows(t *testing.T) {
	tu := testTuning()
	w := window(t, [2]int{0, 320}, [2]int{0, 100}, [2]int{0, 320})

	from := Position{X: 150, Y: 9}
	to := Position{X: 150, Y: 21}
	assert.Equal(t, Clear, Evaluate(to, w, tu), "destination row alone is clear")
	assert.Equal(t, Colliding, EvaluatePath(from, to, w, tu))
}

func TestEvaluatePathWithinOneRow(t *testing.T) {
	tu := testTuning()
	w := window(t, [2]int{100, 200})

	assert.Equal(t, Clear, EvaluatePath(Position{X: 150, Y: 1}, Position{X: 160, Y: 3}, w, tu))
	assert.Equal(t, Colliding, EvaluatePath(Position{X: 150, Y: 1}, Position{X: 190, Y: 3}, w, tu))
}
