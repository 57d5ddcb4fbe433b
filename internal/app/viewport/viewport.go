// Package viewport implements the scroll-position policy for a message
// window: follow new content while the viewer sits at the bottom,
// otherwise count arrivals behind a "new messages" affordance, and keep
// the visible anchor still when older history is prepended.
package viewport

// DefaultBottomThreshold is how close to the end, in content units, the
// viewer may be and still count as "at bottom".
const DefaultBottomThreshold = 80

// Viewport tracks a window over linear content. Offset is the distance
// from the top of the content to the top of the window.
type Viewport struct {
	threshold int
	height    int
	content   int
	offset    int
	pending   int
}

// New returns a viewport with the given at-bottom threshold; a
// non-positive threshold falls back to the default.
func New(threshold int) *Viewport {
	if threshold <= 0 {
		threshold = DefaultBottomThreshold
	}
	return &Viewport{threshold: threshold}
}

// Resize sets the window extent.
func (v *Viewport) Resize(height int) {
	if height < 0 {
		height = 0
	}
	v.height = height
	v.clamp()
}

// Offset returns the current scroll offset.
func (v *Viewport) Offset() int { return v.offset }

// Pending returns the count of arrivals not yet brought into view.
func (v *Viewport) Pending() int { return v.pending }

// AtBottom reports whether the window sits within the threshold of the
// newest content. Recomputed from the current offset on every call,
// matching the recompute-on-scroll-event behavior.
func (v *Viewport) AtBottom() bool {
	return v.content-(v.offset+v.height) <= v.threshold
}

// ScrollTo moves the window to an absolute offset, clamped to content.
func (v *Viewport) ScrollTo(offset int) {
	v.offset = offset
	v.clamp()
	if v.AtBottom() {
		v.pending = 0
	}
}

// Append extends the content by extent for one newly arrived message.
// At-bottom viewers follow; everyone else gets a pending count instead
// of a moving viewport.
func (v *Viewport) Append(extent int) {
	if extent < 0 {
		extent = 0
	}
	wasAtBottom := v.AtBottom()
	v.content += extent
	if wasAtBottom {
		v.JumpToNewest()
		return
	}
	v.pending++
}

// Prepend extends the content above the window by extent, shifting the
// offset so already-rendered messages do not move.
func (v *Viewport) Prepend(extent int) {
	if extent < 0 {
		extent = 0
	}
	v.content += extent
	v.offset += extent
	v.clamp()
}

// Restore positions the window for a revisited conversation: a saved
// mid-history offset wins over the default jump to the newest content.
func (v *Viewport) Restore(offset int, saved bool) {
	if saved {
		v.ScrollTo(offset)
		return
	}
	v.JumpToNewest()
}

// Leave reports what to persist when the viewer switches away: the
// current offset, and whether it is worth keeping. Leaving at the bottom
// keeps nothing, so the next visit jumps to the newest content.
func (v *Viewport) Leave() (int, bool) {
	if v.AtBottom() {
		return 0, false
	}
	return v.offset, true
}

// JumpToNewest scrolls to the end and clears the pending counter.
func (v *Viewport) JumpToNewest() {
	v.offset = v.maxOffset()
	v.pending = 0
}

func (v *Viewport) maxOffset() int {
	max := v.content - v.height
	if max < 0 {
		return 0
	}
	return max
}

func (v *Viewport) clamp() {
	if v.offset < 0 {
		v.offset = 0
	}
	if max := v.maxOffset(); v.offset > max {
		v.offset = max
	}
}
