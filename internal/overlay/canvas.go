package overlay

import (
	"image"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/srujkamble02/ishara/internal/detector"
	"github.com/srujkamble02/ishara/internal/gate"
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// CanvasRenderer draws overlays onto in-memory RGBA images.
type CanvasRenderer struct {
	style Style
}

// NewCanvasRenderer creates a renderer with the given style.
func NewCanvasRenderer(style Style) *CanvasRenderer {
	return &CanvasRenderer{style: style}
}

// Render clears dst, draws frame scaled to fill it, then the skeleton and caption.
// frame and pose may be nil.
func (r *CanvasRenderer) Render(dst *image.RGBA, frame image.Image, pose *detector.HandPose, result gate.Result) error {
	if dst == nil || dst.Bounds().Empty() {
		return ErrNoSurface
	}

	dc := gg.NewContextForRGBA(dst)
	w, h := dc.Width(), dc.Height()

	dc.SetRGB(0, 0, 0)
	dc.Clear()

	if frame != nil && !frame.Bounds().Empty() {
		b := frame.Bounds()
		dc.Push()
		dc.Scale(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
		dc.DrawImage(frame, -b.Min.X, -b.Min.Y)
		dc.Pop()
	}

	if pose != nil {
		r.drawSkeleton(dc, pose, w, h)
	}
	r.drawCaption(dc, CaptionFor(result), w, h)
	return nil
}

func (r *CanvasRenderer) drawSkeleton(dc *gg.Context, pose *detector.HandPose, w, h int) {
	dc.SetColor(r.style.BoneColor)
	dc.SetLineWidth(r.style.BoneWidth)
	for _, c := range bones(pose) {
		x1, y1 := project(pose.Landmarks[c[0]], w, h)
		x2, y2 := project(pose.Landmarks[c[1]], w, h)
		dc.DrawLine(x1, y1, x2, y2)
		dc.Stroke()
	}

	dc.SetColor(r.style.PointColor)
	for _, l := range pose.Landmarks {
		x, y := project(l, w, h)
		dc.DrawCircle(x, y, r.style.PointRadius)
		dc.Fill()
	}
}

func (r *CanvasRenderer) drawCaption(dc *gg.Context, c Caption, w, h int) {
	bh := float64(h) * r.style.BannerHeight
	top := float64(h) - bh

	dc.SetColor(r.style.BannerColor)
	dc.DrawRectangle(0, top, float64(w), bh)
	dc.Fill()

	small := bh / 6
	large := bh / 2.5
	pad := small

	dc.SetColor(r.style.TextColor)
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: small}))
	dc.DrawStringAnchored(c.Status, pad, top+pad, 0, 1)

	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: large}))
	dc.DrawStringAnchored(c.Label, pad, top+2*pad+large, 0, 0)

	if c.Confidence != "" {
		dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: small}))
		dc.DrawStringAnchored(c.Confidence, pad, float64(h)-pad, 0, 0)
	}
}
