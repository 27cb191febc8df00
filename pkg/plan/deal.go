package plan

import "sort"

// deal splits indices into k parts so every stratum is spread as evenly as
// possible: within a stratum part sizes differ by at most one, and part
// totals differ by at most one. Strata are visited in sorted key order and
// the dealing position carries over between strata.
func deal(indices []int, k int, stratum func(i int) string) [][]int {
	groups := make(map[string][]int)
	for _, i := range indices {
		key := stratum(i)
		groups[key] = append(groups[key], i)
	}
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([][]int, k)
	next := 0
	for _, key := range keys {
		for _, i := range groups[key] {
			parts[next] = append(parts[next], i)
			next = (next + 1) % k
		}
	}
	return parts
}
