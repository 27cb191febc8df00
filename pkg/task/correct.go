package task

// targetFeature returns the feature the participant must pick on axis for
// the given variant. Identical trials have no target feature.
func targetFeature(axis Axis, variant int) Feature {
	switch axis {
	case AxisColorful:
		if variant == 1 {
			return Colorful
		}
		return NotColorful
	case AxisCount:
		if variant == 1 {
			return Multiple
		}
		return Single
	case AxisNew:
		if variant == 1 {
			return New
		}
		return Old
	}
	return ""
}

func hasFeature(features []Feature, f Feature) bool {
	for _, x := range features {
		if x == f {
			return true
		}
	}
	return false
}

// CorrectResponse returns the side the participant should choose, or nil
// when it cannot be determined (a stimulus missing from the feature table,
// or labels that do not contain the expected option).
//
// Identical trials compare stimulus paths: same images call for "Yes" (or
// "No" under anti-task). Other axes pick the stimulus carrying the target
// feature, checking the second stimulus first.
func CorrectResponse(f Factors, labels [2]Label, stim1, stim2 string, table *FeatureTable) *Side {
	axis := f.Axis()

	var want Label
	if axis == AxisIdentical {
		same := stim1 == stim2
		if same != f.AntiTask {
			want = LabelYes
		} else {
			want = LabelNo
		}
	} else {
		if table == nil {
			return nil
		}
		target := targetFeature(axis, f.Variant())
		if target == "" {
			return nil
		}
		_, ok1 := table.Lookup(stim1)
		feats2, ok2 := table.Lookup(stim2)
		if !ok1 || !ok2 {
			return nil
		}
		want = LabelFirst
		if hasFeature(feats2, target) {
			want = LabelSecond
		}
	}

	side, ok := SideOf(labels, want)
	if !ok {
		return nil
	}
	return side.Ptr()
}
