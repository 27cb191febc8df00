package plan

type adjacencyKey struct {
	category int
	pair     int
}

func keyOf(d draft) adjacencyKey {
	return adjacencyKey{int(d.Category), d.pair}
}

// repairAdjacency rearranges a block so no two consecutive trials share
// category and pair. Each pass scans forward; a conflicting trial is
// swapped with the first later trial that differs from its predecessor,
// or, when none is left, with an earlier trial whose move creates no new
// conflict. Passes repeat until one changes nothing. Cue timing belongs
// to the position and stays put. It returns the conflicts left.
func repairAdjacency(block []draft) int {
	for pass := 0; pass < len(block); pass++ {
		if !repairPass(block) {
			break
		}
	}
	return countAdjacent(block)
}

func repairPass(block []draft) bool {
	changed := false
	for i := 1; i < len(block); i++ {
		prev := keyOf(block[i-1])
		if keyOf(block[i]) != prev {
			continue
		}
		if swapLater(block, i, prev) || swapEarlier(block, i) {
			changed = true
		}
	}
	return changed
}

func swapLater(block []draft, i int, prev adjacencyKey) bool {
	for j := i + 1; j < len(block); j++ {
		if keyOf(block[j]) != prev {
			swapTrials(block, i, j)
			return true
		}
	}
	return false
}

func swapEarlier(block []draft, i int) bool {
	for k := 0; k < i-1; k++ {
		if keyOf(block[k]) == keyOf(block[i]) {
			continue
		}
		swapTrials(block, i, k)
		if !conflictAt(block, i) && !conflictAt(block, k) {
			return true
		}
		swapTrials(block, i, k)
	}
	return false
}

// swapTrials exchanges two trials but leaves each position's cue timing.
func swapTrials(block []draft, i, j int) {
	block[i], block[j] = block[j], block[i]
	block[i].Cue, block[j].Cue = block[j].Cue, block[i].Cue
}

func conflictAt(block []draft, i int) bool {
	k := keyOf(block[i])
	return (i > 0 && keyOf(block[i-1]) == k) || (i+1 < len(block) && keyOf(block[i+1]) == k)
}

func countAdjacent(block []draft) int {
	n := 0
	for i := 1; i < len(block); i++ {
		if keyOf(block[i]) == keyOf(block[i-1]) {
			n++
		}
	}
	return n
}
