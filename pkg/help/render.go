package help

import (
	"fmt"
	"strings"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
)

const (
	// flagColumnWidth fits "--resume <checkpoint>" plus a gap.
	flagColumnWidth = 24

	indentCategory = "  "
	indentFlag     = "    "
	indentExample  = "      "
)

// RenderUsage renders every flag grouped by category. It is meant as
// flag.Usage.
func (r *Renderer) RenderUsage(program string) {
	r.writeln("")
	r.writeln(Header(indentCategory + program + " - verbal instruction working-memory task"))
	r.writeln("")
	r.writeln(indentCategory + Bold("Usage:") + " " + StyleArg(program+" [flags]"))
	r.writeln("")
	for _, c := range CategoryOrder {
		r.renderCategory(c)
	}
}

// RenderFlag renders one flag in detail. It returns false when no such
// flag exists.
func (r *Renderer) RenderFlag(name string) bool {
	f, ok := LookupFlag(name)
	if !ok {
		r.writeln(fmt.Sprintf(indentCategory+"Unknown flag '%s'. Use --help to list all flags.", name))
		return false
	}
	r.writeln("")
	r.writeln(indentCategory + flagLabel(f))
	r.writeln(indentCategory + Dim(f.Description))
	if f.Example != "" {
		r.writeln("")
		r.writeln(indentCategory + Bold("Example:") + " " + StyleArg(f.Example))
	}
	r.writeln("")
	return true
}

// RenderKeys renders the key bindings of a session in a box.
func (r *Renderer) RenderKeys(keys config.KeysConfig) {
	rows := [][2]string{
		{"First option", keys.First},
		{"Second option", keys.Second},
		{"Slider left", keys.SliderLeft},
		{"Slider right", keys.SliderRight},
		{"Slider confirm", keys.SliderSubmit},
		{"Dismiss instruction", keys.Dismiss},
		{"Continue", keys.Continue},
		{"Pause", keys.Pause},
		{"Abort", strings.Join(keys.Abort, ", ")},
	}

	box := NewBox(44)
	r.writeln(indentCategory + Dim(box.Top()))
	r.writeln(indentCategory + Dim(BoxVertical) + Center(Header("Key bindings"), box.Width) + Dim(BoxVertical))
	r.writeln(indentCategory + Dim(box.Mid()))
	for _, row := range rows {
		line := " " + PadRight(row[0], 22) + StyleKey(row[1])
		r.writeln(indentCategory + Dim(BoxVertical) + PadRight(TruncateVisible(line, box.Width), box.Width) + Dim(BoxVertical))
	}
	r.writeln(indentCategory + Dim(box.Bottom()))
}

func (r *Renderer) renderCategory(c Category) {
	flags := FlagsByCategory(c)
	if len(flags) == 0 {
		return
	}
	r.writeln(indentCategory + StyleCategory(c.DisplayName()))
	r.writeln(indentCategory + Dim(BoxTeeLeft+strings.Repeat(BoxHorizontal, flagColumnWidth+40)))
	for _, f := range flags {
		label := flagLabel(f)
		r.writeln(indentFlag + Dim(BoxVertical+" ") + PadRight(label, flagColumnWidth) + Dim(f.Description))
		if f.Example != "" {
			r.writeln(indentExample + Dim(BoxVertical+"   e.g. ") + StyleArg(f.Example))
		}
	}
	r.writeln("")
}

func flagLabel(f Flag) string {
	label := StyleFlag("--" + f.Name)
	if f.Arg != "" {
		label += " " + StyleArg(f.Arg)
	}
	return label
}

func (r *Renderer) writeln(s string) {
	fmt.Fprintln(r.w, s)
}
