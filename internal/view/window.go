package view

import "strings"

// Window is the scroll and selection state over the projected document.
// After every operation: 0 <= Mark <= doc-1, 0 <= Top <= max(0, doc-h),
// and Top <= Mark < Top+h whenever the document is non-empty.
type Window struct {
	Top    int
	Mark   int
	Height int

	// selPath is the path of the group selected before the last rebuild;
	// the numeric Mark cannot survive a full document regeneration.
	selPath string
}

func (w *Window) Resize(h int) {
	if h < 1 {
		h = 1
	}
	w.Height = h
}

func (w *Window) Up(doc int) {
	w.Mark = clamp(w.Mark-1, 0, doc-1)
	w.Fit(doc)
}

func (w *Window) Down(doc int) {
	w.Mark = clamp(w.Mark+1, 0, doc-1)
	w.Fit(doc)
}

func (w *Window) Home(doc int) {
	w.Mark = 0
	w.Fit(doc)
}

func (w *Window) End(doc int) {
	w.Mark = doc - 1
	w.Fit(doc)
}

// PageUp and PageDown move Top and Mark together by a page, each clamped
// independently. This is the one pair of operations that sets both
// directly instead of refitting one from the other.
func (w *Window) PageUp(doc int) {
	w.Top = clamp(w.Top-(w.Height-1), 0, maxTop(doc, w.Height))
	w.Mark = clamp(w.Mark-(w.Height-1), 0, doc-1)
}

func (w *Window) PageDown(doc int) {
	w.Top = clamp(w.Top+(w.Height-1), 0, maxTop(doc, w.Height))
	w.Mark = clamp(w.Mark+(w.Height-1), 0, doc-1)
}

// Fit scrolls Top the minimal distance needed to bring Mark into view.
func (w *Window) Fit(doc int) {
	if doc <= 0 {
		w.Top, w.Mark = 0, 0
		return
	}
	w.Mark = clamp(w.Mark, 0, doc-1)
	w.Top = clamp(w.Top, 0, maxTop(doc, w.Height))
	bottom := w.Top + w.Height
	if w.Top > w.Mark {
		w.Top = w.Mark
	} else if bottom <= w.Mark {
		bottom = w.Mark + 1
		w.Top = bottom - w.Height
		if w.Top < 0 {
			w.Top = 0
		}
	}
}

// Select records the identity of the line under Mark so the selection
// can be re-anchored after the document is rebuilt.
func (w *Window) Select(lines []Line) {
	if w.Mark >= 0 && w.Mark < len(lines) {
		w.selPath = lines[w.Mark].Group.Path
	}
}

// Rebind re-anchors Mark on a freshly projected document: the last line
// whose path is an ancestor-or-self of the retained selection. Pre-order
// puts descendants after their ancestors, so the last match is the
// deepest still-present ancestor; an exact survivor matches itself.
func (w *Window) Rebind(lines []Line) {
	if w.selPath != "" {
		for i, ln := range lines {
			if isPathPrefix(ln.Group.Path, w.selPath) {
				w.Mark = i
			}
		}
	}
	w.Fit(len(lines))
	w.Select(lines)
}

// isPathPrefix reports whether p is sel itself or one of its ancestors.
func isPathPrefix(p, sel string) bool {
	if p == "/" || p == sel {
		return true
	}
	return strings.HasPrefix(sel, p+"/")
}

func maxTop(doc, h int) int {
	if doc <= h {
		return 0
	}
	return doc - h
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
