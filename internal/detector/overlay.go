package detector

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	boxThickness = 2
	labelOffset  = 10
)

// Palette is indexed by class id modulo its length
var Palette = []color.RGBA{
	{R: 87, G: 120, B: 164, A: 255},
	{R: 228, G: 148, B: 68, A: 255},
	{R: 209, G: 97, B: 93, A: 255},
	{R: 133, G: 182, B: 178, A: 255},
	{R: 106, G: 159, B: 88, A: 255},
	{R: 231, G: 202, B: 96, A: 255},
	{R: 168, G: 124, B: 159, A: 255},
	{R: 241, G: 162, B: 169, A: 255},
	{R: 150, G: 118, B: 98, A: 255},
	{R: 184, G: 176, B: 172, A: 255},
}

// ColorFor returns the box colour for a class id
func ColorFor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return Palette[classID%len(Palette)]
}

// Label formats a detection as "<class> <confidence>"
func Label(d Detection) string {
	return fmt.Sprintf("%s %.2f", d.Class, d.Confidence)
}

// Annotate draws boxes and labels for detections onto img in place
func Annotate(img *image.RGBA, detections []Detection) {
	bounds := img.Bounds()
	for _, d := range detections {
		box := d.Box.Canon().Intersect(bounds)
		if box.Empty() {
			continue
		}
		col := ColorFor(d.ClassID)
		drawRect(img, box, col, boxThickness)

		// Label sits above the box, or inside it when the box touches the top edge
		labelY := box.Min.Y - labelOffset
		if labelY < basicfont.Face7x13.Ascent {
			labelY = box.Min.Y + basicfont.Face7x13.Ascent + boxThickness
		}
		drawer := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(col),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(box.Min.X, labelY),
		}
		drawer.DrawString(Label(d))
	}
}

func drawRect(img *image.RGBA, r image.Rectangle, col color.RGBA, thickness int) {
	src := image.NewUniform(col)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// EncodeJPEG writes img as a JPEG
func EncodeJPEG(w io.Writer, img image.Image) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return nil
}
