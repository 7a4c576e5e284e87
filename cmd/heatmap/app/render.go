package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/wifi-csi/internal/features"
)

const (
	dpi            = 72.0
	fontSize       = 12.0
	tickMarkHeight = 5
	pixelsPerLabel = 60.0

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 120
	defaultBottomBorder = 40
	defaultRightBorder  = 40
)

// BorderConfig defines the sizes of white space around the waterfall
type BorderConfig struct {
	Top    int // Space for subcarrier scale
	Left   int // Space for sample scale and labels
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for waterfall visualization
type RenderConfig struct {
	CellWidth   int // Pixels per subcarrier
	RowHeight   int // Pixels per sample
	FontSize    float64
	ColorTheme  ColorTheme
	Bounds      *AmplitudeBounds // Fixed bounds, overriding the tracked ones
	Annotations bool

	BorderConfig BorderConfig
}

// WaterfallRenderer draws amplitude waterfalls: subcarriers along X, samples along Y.
type WaterfallRenderer struct {
	colorMap *ColorMapper
	config   RenderConfig
}

// NewWaterfallRenderer creates a new renderer with the given configuration
func NewWaterfallRenderer(config RenderConfig) (*WaterfallRenderer, error) {
	if config.CellWidth == 0 {
		config.CellWidth = defaultCellWidth
	}
	if config.RowHeight == 0 {
		config.RowHeight = defaultRowHeight
	}
	if config.CellWidth < 0 || config.RowHeight < 0 {
		return nil, fmt.Errorf("invalid cell size %dx%d", config.CellWidth, config.RowHeight)
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}

	if !config.Annotations {
		config.BorderConfig = BorderConfig{}
	} else {
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}

	return &WaterfallRenderer{config: config}, nil
}

// Bounds returns the amplitude bounds the renderer uses for data.
func (r *WaterfallRenderer) Bounds(data *WaterfallData) AmplitudeBounds {
	if r.config.Bounds != nil {
		return *r.config.Bounds
	}
	return data.BoundsTracker.Current()
}

// Render creates an image of the waterfall data with annotations
func (r *WaterfallRenderer) Render(data *WaterfallData) (*image.RGBA, error) {
	if data.Empty() {
		return nil, fmt.Errorf("no samples to render")
	}

	b := r.config.BorderConfig
	areaWidth := data.Width * r.config.CellWidth
	areaHeight := data.Height * r.config.RowHeight

	img := image.NewRGBA(image.Rect(0, 0, areaWidth+b.Left+b.Right, areaHeight+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, b.Left+areaWidth, b.Top+areaHeight)

	bounds := r.Bounds(data)
	if r.colorMap == nil {
		r.colorMap = NewColorMapper(r.config.ColorTheme, bounds)
	} else {
		r.colorMap.UpdateBounds(bounds)
	}

	if r.config.Annotations {
		ann, err := newAnnotator(annotatorConfig{
			FontSize:  r.config.FontSize,
			Borders:   b,
			CellWidth: r.config.CellWidth,
			RowHeight: r.config.RowHeight,
		})
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, data, bounds); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	r.renderWaterfall(img, area, data)

	return img, nil
}

func (r *WaterfallRenderer) renderWaterfall(img *image.RGBA, area image.Rectangle, data *WaterfallData) {
	cw, rh := r.config.CellWidth, r.config.RowHeight
	for y, row := range data.Rows {
		for x := 0; x < data.Width; x++ {
			c := noDataColor
			if x < len(row) {
				c = r.colorMap.GetColor(row[x])
			}
			cell := image.Rect(area.Min.X+x*cw, area.Min.Y+y*rh, area.Min.X+(x+1)*cw, area.Min.Y+(y+1)*rh)
			draw.Draw(img, cell, &image.Uniform{C: c}, image.Point{}, draw.Src)
		}
	}
}

type annotatorConfig struct {
	FontSize  float64
	Borders   BorderConfig
	CellWidth int
	RowHeight int
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, data *WaterfallData, bounds AmplitudeBounds) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing subcarrier scale", func() error { return a.drawSubcarrierScale(img, data) }},
		{"drawing sample scale", func() error { return a.drawSampleScale(img, data) }},
		{"drawing info bar", func() error { return a.drawInfoBar(img, data, bounds) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawSubcarrierScale(img *image.RGBA, data *WaterfallData) error {
	step := calculateNiceStep(data.Width, a.config.CellWidth, []int{1, 2, 4, 8, 16, 32, 64})
	textY := a.config.Borders.Top - a.fontHeight()/2

	for sc := 0; sc < data.Width; sc += step {
		x := a.config.Borders.Left + sc*a.config.CellWidth + a.config.CellWidth/2

		for y := a.config.Borders.Top - tickMarkHeight; y < a.config.Borders.Top; y++ {
			img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%d", sc)
		width := font.MeasureString(a.fontFace, label)
		if _, err := a.context.DrawString(label, freetype.Pt(x-width.Round()/2, textY)); err != nil {
			return fmt.Errorf("drawing subcarrier label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawSampleScale(img *image.RGBA, data *WaterfallData) error {
	step := calculateNiceStep(data.Height, a.config.RowHeight, []int{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000})
	metrics := a.fontFace.Metrics()
	textOffset := a.fontHeight()/2 - metrics.Descent.Round()
	left := a.config.Borders.Left

	for i := 0; i < data.Height; i += step {
		imgY := a.config.Borders.Top + i*a.config.RowHeight

		for x := left - tickMarkHeight; x < left; x++ {
			img.Set(x, imgY, color.Black)
		}

		label := humanize.Comma(int64(i))
		width := font.MeasureString(a.fontFace, label)
		if _, err := a.context.DrawString(label, freetype.Pt(left-tickMarkHeight-3-width.Round(), imgY+textOffset)); err != nil {
			return fmt.Errorf("drawing sample label: %w", err)
		}
	}

	// Label spans are marked with a bar along the left border.
	for _, span := range data.Labels {
		top := a.config.Borders.Top + span.Start*a.config.RowHeight
		bottom := a.config.Borders.Top + span.End*a.config.RowHeight
		for y := top; y < bottom; y++ {
			img.Set(4, y, color.Black)
			img.Set(5, y, color.Black)
		}

		if bottom-top < a.fontHeight() {
			continue
		}
		name := span.Label
		if name == "" {
			name = features.UnknownLabel
		}
		if _, err := a.context.DrawString(name, freetype.Pt(9, top+a.fontHeight())); err != nil {
			return fmt.Errorf("drawing label name: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, data *WaterfallData, bounds AmplitudeBounds) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Samples: %s", humanize.Comma(int64(data.Height))))
	sb.WriteString(fmt.Sprintf("; ts: %s - %s", humanize.Comma(data.TimestampStart), humanize.Comma(data.TimestampEnd)))
	sb.WriteString(fmt.Sprintf("; amp: %s - %s",
		humanize.FormatFloat("#,###.##", bounds.Min), humanize.FormatFloat("#,###.##", bounds.Max)))

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-a.fontHeight())/2 - metrics.Descent.Round()

	if _, err := a.context.DrawString(sb.String(), freetype.Pt(a.config.Borders.Left, textY)); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// calculateNiceStep picks the smallest step from steps that leaves at least
// pixelsPerLabel between labels.
func calculateNiceStep(count, pixelsPerItem int, steps []int) int {
	for _, step := range steps {
		if float64(step*pixelsPerItem) >= pixelsPerLabel {
			return step
		}
	}
	return max(1, count/2)
}
