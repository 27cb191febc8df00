package session

// BlockAccuracy is the percentage of correct responses in block b, shown
// on the break screen. The denominator is the block size: trials without
// a response or without a defined correct side count as errors.
func (s *Session) BlockAccuracy(b int) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := s.Plan.BlockRange(b)
	if end <= start {
		return 0
	}
	hits := 0
	for i := start; i < end && i < len(s.Results); i++ {
		if ok, _ := Correct(&s.Plan.Trials[i], s.Results[i]); ok {
			hits++
		}
	}
	return 100 * float64(hits) / float64(end-start)
}

// FinalAccuracy is the percentage correct over completed trials whose
// correct side is defined; the second value is that denominator. Trials
// with an undefined correct side are excluded rather than scored.
func (s *Session) FinalAccuracy() (float64, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, scored := 0, 0
	for i, r := range s.Results {
		ok, defined := Correct(&s.Plan.Trials[i], r)
		if !defined {
			continue
		}
		scored++
		if ok {
			hits++
		}
	}
	if scored == 0 {
		return 0, 0
	}
	return 100 * float64(hits) / float64(scored), scored
}
