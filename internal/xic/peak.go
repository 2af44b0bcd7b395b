package xic

// Window bounds a chromatographic peak. All fields are sample indices
// with Left <= Peak <= Right.
type Window struct {
	Left  int
	Peak  int
	Right int
}

// FindPeak returns the local maximum of y reached from position pos.
// On a plateau the walk continues until a slope appears; a valley
// resolves to the peak on its left (dir -1) or right (dir 1).
func FindPeak(y []float64, pos, dir int) int {
	n := len(y)
	right := slope(y, pos, 1)
	left := slope(y, pos, -1)

	switch {
	case (right == -1 && left == -1) || (right == 0 && left == 0):
		return pos
	case right == -1 && left == 0:
		return 0
	case right == 0 && left == -1:
		return n - 1
	case right <= 0 && left == 1:
		dir = -1
	case right == 1 && left <= 0:
		dir = 1
	}

	for pos+dir >= 0 && pos+dir < n && y[pos] <= y[pos+dir] {
		pos += dir
	}
	if pos+dir < 0 {
		return 0
	}
	if pos+dir >= n {
		return n - 1
	}
	return pos
}

// slope returns 1 if the signal rises when walking from pos in
// direction dir, -1 if it falls and 0 if it stays flat up to the end
func slope(y []float64, pos, dir int) int {
	i := pos + dir
	for i >= 0 && i < len(y) && y[i] == y[pos] {
		i += dir
	}
	switch {
	case i < 0 || i >= len(y):
		return 0
	case y[pos] < y[i]:
		return 1
	}
	return -1
}

// nextValley returns the first strict local minimum walking from pos in
// direction dir, or -1 if the signal boundary is reached first
func nextValley(y []float64, pos, dir int) int {
	n := len(y)
	inside := func(p int) bool {
		return p-dir >= 0 && p-dir < n && p+dir >= 0 && p+dir < n
	}
	pos += dir
	for inside(pos) && (y[pos] > y[pos-dir] || y[pos] >= y[pos+dir]) {
		pos += dir
	}
	if !inside(pos) {
		return -1
	}
	if y[pos] <= y[pos-dir] && y[pos] < y[pos+dir] {
		return pos
	}
	return -1
}

// PeakAndValleys finds the peak of y near anchor and its bounding
// valleys. Valleys are pulled in to the outermost samples that are not
// below background. If that leaves no samples, the window collapses to
// the peak.
func PeakAndValleys(y []float64, anchor int, background float64) Window {
	n := len(y)
	var w Window
	if n == 0 {
		return w
	}
	if anchor < 0 {
		anchor = 0
	}
	if anchor > n-1 {
		anchor = n - 1
	}
	w.Peak = FindPeak(y, anchor, -1)

	w.Left = nextValley(y, w.Peak, -1)
	if w.Left == -1 {
		w.Left = 0
	}
	w.Right = nextValley(y, w.Peak, 1)
	if w.Right == -1 {
		w.Right = n - 1
	}

	i := w.Peak
	for ; i >= w.Left; i-- {
		if y[i] < background {
			break
		}
	}
	w.Left = i + 1
	i = w.Peak
	for ; i <= w.Right; i++ {
		if y[i] < background {
			break
		}
	}
	w.Right = i - 1

	if w.Left > w.Right {
		w.Left = w.Peak
		w.Right = w.Peak
	}
	return w
}
