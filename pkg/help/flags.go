package help

// Category groups flags in the usage listing.
type Category string

const (
	// CategorySession covers starting and resuming a run.
	CategorySession Category = "session"

	// CategoryTesting covers runs without a participant or hardware.
	CategoryTesting Category = "testing"

	// CategoryReference covers flags that print and exit.
	CategoryReference Category = "reference"
)

// CategoryOrder is the order of groups in RenderUsage.
var CategoryOrder = []Category{
	CategorySession,
	CategoryTesting,
	CategoryReference,
}

var categoryNames = map[Category]string{
	CategorySession:   "Session",
	CategoryTesting:   "Testing",
	CategoryReference: "Reference",
}

// DisplayName is the group heading.
func (c Category) DisplayName() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}

// Flag documents one command-line flag.
type Flag struct {
	Name        string
	Arg         string // placeholder for the value, empty for booleans
	Category    Category
	Description string
	Example     string
}

// Flags is the documented flag set of wmtask.
var Flags = []Flag{
	{
		Name:        "config",
		Arg:         "<file>",
		Category:    CategorySession,
		Description: "Configuration file (default: ./config.yaml)",
		Example:     "wmtask --config lab-b.yaml",
	},
	{
		Name:        "variant",
		Arg:         "<name>",
		Category:    CategorySession,
		Description: "Task variant when no file sets one: main, wm or training",
		Example:     "wmtask --variant training",
	},
	{
		Name:        "seed",
		Arg:         "<n>",
		Category:    CategorySession,
		Description: "Plan seed; 0 draws one from the clock",
		Example:     "wmtask --seed 20250314",
	},
	{
		Name:        "resume",
		Arg:         "<checkpoint>",
		Category:    CategorySession,
		Description: "Continue an interrupted session from its checkpoint",
		Example:     "wmtask --resume output/P07_Sub_03-14-2025_10-02-33.jsonl",
	},
	{
		Name:        "init",
		Category:    CategorySession,
		Description: "Write the default configuration file and exit",
	},
	{
		Name:        "simulate",
		Category:    CategoryTesting,
		Description: "Run with a simulated participant and virtual clock",
		Example:     "wmtask --simulate --seed 1",
	},
	{
		Name:        "console",
		Category:    CategoryTesting,
		Description: "Draw the task in this terminal instead of the stimulus display",
	},
	{
		Name:        "markers",
		Category:    CategoryReference,
		Description: "Print the marker code table and exit",
	},
	{
		Name:        "keys",
		Category:    CategoryReference,
		Description: "Print the key bindings of the loaded configuration and exit",
	},
	{
		Name:        "version",
		Category:    CategoryReference,
		Description: "Print the version and exit",
	},
}

// LookupFlag finds a flag by name, with or without leading dashes.
func LookupFlag(name string) (Flag, bool) {
	for len(name) > 0 && name[0] == '-' {
		name = name[1:]
	}
	for _, f := range Flags {
		if f.Name == name {
			return f, true
		}
	}
	return Flag{}, false
}

// FlagsByCategory returns the flags of one group in declaration order.
func FlagsByCategory(c Category) []Flag {
	var out []Flag
	for _, f := range Flags {
		if f.Category == c {
			out = append(out, f)
		}
	}
	return out
}
