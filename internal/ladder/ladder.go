// Package ladder holds the fixed sequence of point values awarded per
// question position.
package ladder

// Default is the reference deployment's 15-step ladder: five easy, five
// medium, five hard, each tier starting above the previous tier's maximum.
var Default = Ladder{
	5, 10, 20, 50, 100,
	200, 300, 400, 500, 1000,
	2000, 3000, 4000, 5000, 10000,
}

type Ladder []int64

// ValueAt returns the points awarded for answering the question at the
// given 0-based position. Out-of-range positions are worth nothing.
func (l Ladder) ValueAt(index int) int64 {
	if index < 0 || index >= len(l) {
		return 0
	}
	return l[index]
}

func (l Ladder) Len() int {
	return len(l)
}
