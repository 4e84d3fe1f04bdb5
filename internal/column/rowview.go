package column

// RowView layers an optional selection vector and an optional permutation
// vector onto a Bundle. It is a value type: cheap to copy, and all
// sharing happens at the Bundle/column level.
type RowView struct {
	Bundle      *Bundle
	Selection   []int // ascending row indices, or nil for "all rows"
	Permutation []int // iteration order, or nil for identity order
}

// NewRowView builds the identity view over a freshly constructed bundle:
// no selection, no permutation, dense [0,N).
func NewRowView(b *Bundle) RowView {
	return RowView{Bundle: b}
}

// Active returns the ordered sequence of row indices this view iterates,
// per a fixed, deterministic rule:
//   - both present: permutation order filtered by selection membership
//   - only selection: selection order
//   - only permutation: permutation order
//   - neither: [0,N)
func (v RowView) Active() []int {
	switch {
	case v.Permutation != nil && v.Selection != nil:
		inSel := make(map[int]struct{}, len(v.Selection))
		for _, i := range v.Selection {
			inSel[i] = struct{}{}
		}
		out := make([]int, 0, len(v.Selection))
		for _, i := range v.Permutation {
			if _, ok := inSel[i]; ok {
				out = append(out, i)
			}
		}
		return out
	case v.Selection != nil:
		return v.Selection
	case v.Permutation != nil:
		return v.Permutation
	default:
		out := make([]int, v.Bundle.N)
		for i := range out {
			out[i] = i
		}
		return out
	}
}

// LogicalSize is the length of Active() without materializing it when
// possible (cheap paths for the common cases).
func (v RowView) LogicalSize() int {
	switch {
	case v.Permutation != nil && v.Selection != nil:
		return len(v.Active())
	case v.Selection != nil:
		return len(v.Selection)
	case v.Permutation != nil:
		return len(v.Permutation)
	default:
		return v.Bundle.N
	}
}

// WithSelection returns a new view with the given selection and no
// permutation — the shape every filter operator produces.
func (v RowView) WithSelection(sel []int) RowView {
	return RowView{Bundle: v.Bundle, Selection: sel}
}

// WithPermutation returns a new view with the given permutation, keeping
// the existing selection — the shape the sort operator produces.
func (v RowView) WithPermutation(perm []int) RowView {
	return RowView{Bundle: v.Bundle, Selection: v.Selection, Permutation: perm}
}

// Truncate returns a new view whose selection is the first K active
// indices and which carries no permutation.
func (v RowView) Truncate(k int) RowView {
	active := v.Active()
	if k > len(active) {
		k = len(active)
	}
	sel := make([]int, k)
	copy(sel, active[:k])
	return RowView{Bundle: v.Bundle, Selection: sel}
}

// IsSubsequenceOf reports whether v's active sequence is a (not
// necessarily contiguous) subsequence of other's active sequence, in the
// same relative order — the invariant filter operators must preserve
// so a filtered view never reorders rows relative to its input.
func (v RowView) IsSubsequenceOf(other RowView) bool {
	a, b := v.Active(), other.Active()
	j := 0
	for _, x := range a {
		for j < len(b) && b[j] != x {
			j++
		}
		if j == len(b) {
			return false
		}
		j++
	}
	return true
}
