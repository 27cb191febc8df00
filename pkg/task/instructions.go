package task

import "fmt"

type nounForm int

const (
	singular nounForm = iota
	plural
	altSingular
	altPlural
)

var nouns = map[Category][4]string{
	Animals: {"animal", "animals", "creature", "creatures"},
	Cars:    {"car", "cars", "vehicle", "vehicles"},
	Faces:   {"face", "faces", "person", "people"},
	Fruits:  {"item", "items", "object", "objects"},
}

type template struct {
	format string
	noun   nounForm
}

// templateKey packs (anti, prompt, phrasing) into 0..7.
func templateKey(f Factors) int {
	k := 0
	if f.AntiTask {
		k += 4
	}
	if f.Prompt {
		k += 2
	}
	if f.Phrasing {
		k++
	}
	return k
}

// Indexed by templateKey. Phrasing false is the alternate wording.
var (
	newTemplates = [8]template{
		{"Select the less modern %s", altSingular},
		{"Choose the older %s", singular},
		{"Select the more modern %s", altSingular},
		{"Choose the newer %s", singular},
		{"Do not select the less modern %s", altSingular},
		{"Avoid the older %s", singular},
		{"Do not select the more modern %s", altSingular},
		{"Avoid the newer %s", singular},
	}
	newFaceTemplates = [8]template{
		{"Select the more aged %s", altSingular},
		{"Choose the older %s", singular},
		{"Select the more youthful %s", altSingular},
		{"Choose the younger %s", singular},
		{"Do not select the more aged %s", altSingular},
		{"Avoid the older %s", singular},
		{"Do not select the youthful %s", altSingular},
		{"Avoid the younger %s", singular},
	}
	identicalTemplates = [8]template{
		{"Do these %s have the same identity?", altPlural},
		{"Are these %s identical?", plural},
		{"Are these photos of the same %s?", altSingular},
		{"Are these %s the same?", plural},
		{"Are these photos of different %s?", altPlural},
		{"Are these different %s?", plural},
		{"Do these %s have different identities?", altPlural},
		{"Are these %s different?", plural},
	}
	countTemplates = [8]template{
		{"Select the image with fewer %s", altPlural},
		{"Choose the image with fewer %s", plural},
		{"Select the image with more %s", altPlural},
		{"Choose the image with more %s", plural},
		{"Do not select the image with fewer %s", altPlural},
		{"Avoid the image with fewer %s", plural},
		{"Do not select the image with more %s", altPlural},
		{"Avoid the image with more %s", plural},
	}
	colorfulTemplates = [8]template{
		{"Select the %s with fewer colors", altSingular},
		{"Choose the less colorful %s", singular},
		{"Select the %s with more colors", altSingular},
		{"Choose the more colorful %s", singular},
		{"Do not select the %s with fewer colors", altSingular},
		{"Avoid the less colorful %s", singular},
		{"Do not select the %s with more colors", altSingular},
		{"Avoid the more colorful %s", singular},
	}
)

// InstructionText returns the verbal instruction for a trial. It is total:
// an unknown category or axis yields the empty string.
func InstructionText(f Factors) string {
	words, ok := nouns[f.Category]
	if !ok {
		return ""
	}

	var table *[8]template
	switch f.Axis() {
	case AxisNew:
		table = &newTemplates
		if f.Category == Faces {
			table = &newFaceTemplates
		}
	case AxisIdentical:
		table = &identicalTemplates
	case AxisCount:
		table = &countTemplates
	case AxisColorful:
		table = &colorfulTemplates
	default:
		return ""
	}

	tpl := table[templateKey(f)]
	return fmt.Sprintf(tpl.format, words[tpl.noun])
}

// MotorText tells the participant how to answer.
func MotorText(m Modality) string {
	if m == Slider {
		return "Move the slider to answer"
	}
	return "Press the button to answer"
}

// Label is a response option shown on screen.
type Label string

const (
	LabelFirst  Label = "First"
	LabelSecond Label = "Second"
	LabelYes    Label = "Yes"
	LabelNo     Label = "No"
)

// ResponseLabels returns the two on-screen options for an axis. Prompt type
// 1 keeps the natural order (First/Second, Yes/No); prompt type 2 swaps it.
func ResponseLabels(axis Axis, promptType int) [2]Label {
	a, b := LabelFirst, LabelSecond
	if axis == AxisIdentical {
		a, b = LabelYes, LabelNo
	}
	if promptType == 2 {
		a, b = b, a
	}
	return [2]Label{a, b}
}

// SideOf returns the position of label in labels.
func SideOf(labels [2]Label, label Label) (Side, bool) {
	switch label {
	case labels[0]:
		return SideFirst, true
	case labels[1]:
		return SideSecond, true
	default:
		return 0, false
	}
}
