package overlay

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/srujkamble02/ishara/internal/detector"
	"github.com/srujkamble02/ishara/internal/gate"
)

// MatRenderer draws overlays in place onto camera frames.
type MatRenderer struct {
	style Style
}

// NewMatRenderer creates a renderer with the given style.
func NewMatRenderer(style Style) *MatRenderer {
	return &MatRenderer{style: style}
}

// Render draws the skeleton and caption onto mat. pose may be nil.
func (r *MatRenderer) Render(mat *gocv.Mat, pose *detector.HandPose, result gate.Result) error {
	if mat == nil || mat.Empty() {
		return ErrNoSurface
	}
	w, h := mat.Cols(), mat.Rows()

	if pose != nil {
		thickness := max(int(r.style.BoneWidth), 1)
		for _, c := range bones(pose) {
			gocv.Line(mat, point(pose.Landmarks[c[0]], w, h), point(pose.Landmarks[c[1]], w, h),
				r.style.BoneColor, thickness)
		}
		for _, l := range pose.Landmarks {
			gocv.Circle(mat, point(l, w, h), int(r.style.PointRadius), r.style.PointColor, -1)
		}
	}

	caption := CaptionFor(result)
	top := h - int(float64(h)*r.style.BannerHeight)
	gocv.Rectangle(mat, image.Rect(0, top, w, h), r.style.BannerColor, -1)

	scale := float64(h-top) / 120
	gocv.PutText(mat, caption.Status, image.Pt(10, top+int(25*scale)),
		gocv.FontHersheySimplex, 0.6*scale, r.style.TextColor, 1)
	gocv.PutText(mat, caption.Label, image.Pt(10, top+int(80*scale)),
		gocv.FontHersheySimplex, 1.8*scale, r.style.TextColor, 3)
	if caption.Confidence != "" {
		gocv.PutText(mat, caption.Confidence, image.Pt(10, h-int(10*scale)),
			gocv.FontHersheySimplex, 0.6*scale, r.style.TextColor, 1)
	}
	return nil
}

func point(l detector.Landmark, w, h int) image.Point {
	x, y := project(l, w, h)
	return image.Pt(int(x), int(y))
}
