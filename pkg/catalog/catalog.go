// Package catalog describes the closed set of editing commands, their
// parameter schemas and how a user interface should collect them.
package catalog

import (
	"sort"
	"strings"

	"github.com/thoas/go-funk"
)

// Name is a command identifier.
type Name string

// Command names.
const (
	Grayscale    Name = "Grayscale"
	Undo         Name = "Undo"
	Redo         Name = "Redo"
	Rotate       Name = "Rotate"
	Resize       Name = "Resize"
	Crop         Name = "Crop"
	WhiteBalance Name = "WhiteBalance"
	Blur         Name = "Blur"
	Contrast     Name = "Contrast"
	Saturation   Name = "Saturation"
	Tone         Name = "Tone"
	Filter       Name = "Filter"
)

// Kind is the value type of a parameter.
type Kind string

// Parameter kinds.
const (
	KindNumber Kind = "number"
	KindString Kind = "string"
	KindBool   Kind = "bool"
)

// Affordance is the kind of control that collects a parameter.
type Affordance string

// Affordances.
const (
	Slider   Affordance = "slider"
	Input    Affordance = "input"
	Checkbox Affordance = "checkbox"
	Choice   Affordance = "choice"
)

// Param describes one command parameter.
type Param struct {
	Name       string      `json:"name"`
	Label      string      `json:"label"`
	Kind       Kind        `json:"kind"`
	Affordance Affordance  `json:"affordance"`
	Min        float64     `json:"min,omitempty"`
	Max        float64     `json:"max,omitempty"`
	Choices    []string    `json:"choices,omitempty"`
	Default    interface{} `json:"default,omitempty"`
}

// Ranged returns true when the parameter has a numeric range.
func (p Param) Ranged() bool {
	return p.Kind == KindNumber && p.Max > p.Min
}

// Command is a catalog entry.
type Command struct {
	Name   Name    `json:"name"`
	Path   string  `json:"path"`
	Method string  `json:"method"`
	Label  string  `json:"label"`
	Group  string  `json:"group"`
	Dialog bool    `json:"dialog"`
	Params []Param `json:"params"`

	newBody func() Body
}

// HasParams returns true when the command takes parameters.
func (c *Command) HasParams() bool {
	return len(c.Params) > 0
}

// Param returns a parameter by name.
func (c *Command) Param(name string) (Param, bool) {
	for _, p := range c.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

var commands = map[Name]*Command{
	Grayscale: {
		Name: Grayscale, Path: "/grayscale", Label: "Grayscale", Group: "filters",
		newBody: func() Body { return &NoParams{} },
	},
	Undo: {
		Name: Undo, Path: "/undo", Label: "Undo", Group: "history",
		newBody: func() Body { return &NoParams{} },
	},
	Redo: {
		Name: Redo, Path: "/redo", Label: "Redo", Group: "history",
		newBody: func() Body { return &NoParams{} },
	},
	Rotate: {
		Name: Rotate, Path: "/rotate", Label: "Rotate", Group: "image",
		Params: []Param{
			{Name: "angle", Label: "Angle", Kind: KindNumber, Affordance: Slider, Min: 0, Max: 360, Default: 90},
		},
		newBody: func() Body { return &RotateParams{} },
	},
	Resize: {
		Name: Resize, Path: "/resize", Label: "Resize", Group: "image", Dialog: true,
		Params: []Param{
			{Name: "width", Label: "Width", Kind: KindNumber, Affordance: Input},
			{Name: "height", Label: "Height", Kind: KindNumber, Affordance: Input},
			{Name: "aspectRatio", Label: "Keep aspect ratio", Kind: KindBool, Affordance: Checkbox, Default: true},
		},
		newBody: func() Body { return &ResizeParams{} },
	},
	Crop: {
		Name: Crop, Path: "/crop", Label: "Crop", Group: "image", Dialog: true,
		Params: []Param{
			{Name: "x", Label: "Left", Kind: KindNumber, Affordance: Input},
			{Name: "y", Label: "Top", Kind: KindNumber, Affordance: Input},
			{Name: "width", Label: "Width", Kind: KindNumber, Affordance: Input},
			{Name: "height", Label: "Height", Kind: KindNumber, Affordance: Input},
		},
		newBody: func() Body { return &CropParams{} },
	},
	WhiteBalance: {
		Name: WhiteBalance, Path: "/whitebalance", Label: "White balance", Group: "filters", Dialog: true,
		Params: []Param{
			{Name: "mode", Label: "Mode", Kind: KindString, Affordance: Choice, Choices: []string{"gray", "white"}, Default: "gray"},
		},
		newBody: func() Body { return &WhiteBalanceParams{} },
	},
	Blur: {
		Name: Blur, Path: "/blur", Label: "Blur", Group: "adjust",
		Params: []Param{
			{Name: "half_width", Label: "Radius", Kind: KindNumber, Affordance: Slider, Min: 0, Max: 15, Default: 2},
		},
		newBody: func() Body { return &BlurParams{} },
	},
	Contrast: {
		Name: Contrast, Path: "/contrast", Label: "Contrast", Group: "adjust",
		Params: []Param{
			{Name: "amount", Label: "Amount", Kind: KindNumber, Affordance: Slider, Min: 0, Max: 50, Default: 10},
		},
		newBody: func() Body { return &ContrastParams{} },
	},
	Saturation: {
		Name: Saturation, Path: "/saturation", Label: "Saturation", Group: "adjust",
		Params: []Param{
			{Name: "amount", Label: "Amount", Kind: KindNumber, Affordance: Slider, Min: -100, Max: 100, Default: 0},
		},
		newBody: func() Body { return &SaturationParams{} },
	},
	Tone: {
		Name: Tone, Path: "/tone", Label: "Tone", Group: "adjust",
		Params: []Param{
			{Name: "amount", Label: "Amount", Kind: KindNumber, Affordance: Slider, Min: -50, Max: 50, Default: 0},
		},
		newBody: func() Body { return &ToneParams{} },
	},
	Filter: {
		Name: Filter, Path: "/filter", Label: "Filter", Group: "filters", Dialog: true,
		Params: []Param{
			{Name: "filter", Label: "Filter", Kind: KindString, Affordance: Choice, Choices: []string{"sepia", "grayscale", "ghost"}, Default: "sepia"},
		},
		newBody: func() Body { return &FilterParams{} },
	},
}

func init() {
	for _, c := range commands {
		if c.Method == "" {
			c.Method = "POST"
		}
	}
}

// Lookup returns the command with the exact given name.
func Lookup(name Name) (*Command, bool) {
	c, ok := commands[name]
	return c, ok
}

// Resolve finds a command from user input. The match is case
// insensitive and accepts the endpoint name ("whitebalance").
func Resolve(s string) (*Command, bool) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "/")
	for _, c := range commands {
		if strings.ToLower(string(c.Name)) == s || strings.TrimPrefix(c.Path, "/") == s {
			return c, true
		}
	}
	return nil, false
}

// Names returns every command name, sorted.
func Names() []Name {
	res := funk.Keys(commands).([]Name)
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// All returns every command, sorted by name.
func All() []*Command {
	res := []*Command{}
	for _, n := range Names() {
		res = append(res, commands[n])
	}
	return res
}

// Groups returns the commands grouped by their menu group.
func Groups() map[string][]*Command {
	res := map[string][]*Command{}
	for _, c := range All() {
		res[c.Group] = append(res[c.Group], c)
	}
	return res
}

// IsHistory returns true for Undo and Redo.
func IsHistory(name Name) bool {
	return funk.Contains([]Name{Undo, Redo}, name)
}
