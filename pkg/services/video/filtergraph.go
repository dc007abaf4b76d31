package video

import (
	"fmt"
	"strconv"
	"strings"
)

// OutputLabel is the label of the last chain in every graph we build; the
// encoder maps it with -map [out].
const OutputLabel = "out"

// Chain is one filtergraph chain: labelled inputs, comma joined filters and a
// labelled output.
type Chain struct {
	Inputs  []string
	Filters []string
	Output  string
}

func (c Chain) String() string {
	var b strings.Builder
	for _, in := range c.Inputs {
		b.WriteString("[" + in + "]")
	}
	b.WriteString(strings.Join(c.Filters, ","))
	if c.Output != "" {
		b.WriteString("[" + c.Output + "]")
	}
	return b.String()
}

// Graph is an ordered list of chains, serialized only when handed to ffmpeg.
type Graph struct {
	Chains []Chain
}

func (g *Graph) Add(inputs []string, output string, filters ...string) *Graph {
	g.Chains = append(g.Chains, Chain{Inputs: inputs, Filters: filters, Output: output})
	return g
}

// Output returns the label produced by the last chain.
func (g *Graph) Output() string {
	if len(g.Chains) == 0 {
		return ""
	}
	return g.Chains[len(g.Chains)-1].Output
}

func (g *Graph) String() string {
	parts := make([]string, len(g.Chains))
	for i, c := range g.Chains {
		parts[i] = c.String()
	}
	return strings.Join(parts, ";")
}

// Resolution is a target frame size.
type Resolution struct {
	Width  int
	Height int
}

var resolutions = map[string]Resolution{
	"720": {1280, 720},
	"HD":  {1920, 1080},
	"4K":  {3840, 2160},
}

// ParseResolution maps a resolution class to its size. Unknown classes get HD.
func ParseResolution(class string) (Resolution, string) {
	if r, ok := resolutions[class]; ok {
		return r, class
	}
	if r, ok := resolutions[strings.ToUpper(class)]; ok {
		return r, strings.ToUpper(class)
	}
	return resolutions["HD"], "HD"
}

// Input indexes of the optional overlay streams; 0 means absent.
type BatchInputs struct {
	Logo      int
	Watermark int
}

// BatchOptions describes the per-batch graph.
type BatchOptions struct {
	Resolution Resolution
	Inputs     BatchInputs
	// Dates holds one YYYY-MM-DD label per frame of the batch when the date
	// overlay is on.
	Dates   []string
	Caption string
}

const textStyle = "fontsize=60:fontcolor=white:box=1:boxcolor=black@0.5"

func escapeText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `'\''`)
	return s
}

// BatchGraph scales, overlays and captions one batch of frames.
func BatchGraph(opts BatchOptions) *Graph {
	g := &Graph{}
	g.Add([]string{"0:v"}, "scaled", fmt.Sprintf("scale=%d:%d", opts.Resolution.Width, opts.Resolution.Height))
	base := "scaled"

	if opts.Inputs.Logo > 0 {
		g.Add([]string{fmt.Sprintf("%d:v", opts.Inputs.Logo)}, "logo", "scale=200:-1")
		g.Add([]string{base, "logo"}, "with_logo", "overlay=W-w-10:10")
		base = "with_logo"
	}
	if opts.Inputs.Watermark > 0 {
		g.Add([]string{fmt.Sprintf("%d:v", opts.Inputs.Watermark)}, "watermark", "format=rgba", "colorchannelmixer=aa=0.2")
		g.Add([]string{base, "watermark"}, "with_watermark", "overlay=W/2-w/2:H/2-h/2")
		base = "with_watermark"
	}

	var text []string
	for i, d := range opts.Dates {
		text = append(text, fmt.Sprintf("drawtext=text='%s':x=10:y=10:%s:enable='between(n,%d,%d)'", escapeText(d), textStyle, i, i))
	}
	if caption := strings.TrimSpace(opts.Caption); caption != "" {
		y := 10
		if len(opts.Dates) > 0 {
			y = 80
		}
		text = append(text, fmt.Sprintf("drawtext=text='%s':x=(w-text_w)/2:y=%d:%s", escapeText(caption), y, textStyle))
	}
	if len(text) > 0 {
		g.Add([]string{base}, "with_text", text...)
	}

	g.Chains[len(g.Chains)-1].Output = OutputLabel
	return g
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Color holds the final pass adjustments.
type Color struct {
	Contrast   float64
	Brightness float64
	Saturation float64
}

// Clamped limits contrast and saturation to [0,3] and brightness to [-1,1].
func (c Color) Clamped() Color {
	return Color{
		Contrast:   clamp(c.Contrast, 0, 3),
		Brightness: clamp(c.Brightness, -1, 1),
		Saturation: clamp(c.Saturation, 0, 3),
	}
}

// FinalGraph applies the color adjustment to the concatenated video.
func FinalGraph(c Color) *Graph {
	c = c.Clamped()
	eq := fmt.Sprintf("eq=contrast=%s:brightness=%s:saturation=%s",
		formatFloat(c.Contrast), formatFloat(c.Brightness), formatFloat(c.Saturation))
	return (&Graph{}).Add([]string{"0:v"}, OutputLabel, eq)
}
