package rules

// combineBindings forms the Cartesian product of the per-pattern binding
// sets produced by a comma-separated MATCH clause. Each output tuple is a
// fresh context merged left to right, so a later pattern's binding for a
// shared name overwrites an earlier one.
//
// If any input set is empty the product is empty: zero matches overall,
// not one match with missing bindings. The combiner never deduplicates;
// identical tuples from repeated patterns survive. Output order is
// lexicographic over the input sets' iteration order.
func combineBindings(sets [][]*Bindings) []*Bindings {
	if len(sets) == 0 {
		return nil
	}
	for _, set := range sets {
		if len(set) == 0 {
			return nil
		}
	}

	total := 1
	for _, set := range sets {
		total *= len(set)
	}

	result := make([]*Bindings, 0, total)
	combo := make([]int, len(sets))
	for {
		merged := NewBindings()
		for i, set := range sets {
			merged.Merge(set[combo[i]])
		}
		result = append(result, merged)

		// Odometer increment, rightmost set varies fastest
		pos := len(sets) - 1
		for pos >= 0 {
			combo[pos]++
			if combo[pos] < len(sets[pos]) {
				break
			}
			combo[pos] = 0
			pos--
		}
		if pos < 0 {
			return result
		}
	}
}
