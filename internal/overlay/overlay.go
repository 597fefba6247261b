// Package overlay draws the hand skeleton and the current letter on a frame.
package overlay

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/srujkamble02/ishara/internal/detector"
	"github.com/srujkamble02/ishara/internal/gate"
)

// ErrNoSurface is returned when there is nothing to draw on.
var ErrNoSurface = errors.New("no drawing surface")

// Connections lists the bones of a hand as pairs of landmark indices.
var Connections = [20][2]int{
	{detector.Wrist, detector.ThumbCMC}, {detector.ThumbCMC, detector.ThumbMCP},
	{detector.ThumbMCP, detector.ThumbIP}, {detector.ThumbIP, detector.ThumbTip},

	{detector.Wrist, detector.IndexMCP}, {detector.IndexMCP, detector.IndexPIP},
	{detector.IndexPIP, detector.IndexDIP}, {detector.IndexDIP, detector.IndexTip},

	{detector.Wrist, detector.MiddleMCP}, {detector.MiddleMCP, detector.MiddlePIP},
	{detector.MiddlePIP, detector.MiddleDIP}, {detector.MiddleDIP, detector.MiddleTip},

	{detector.Wrist, detector.RingMCP}, {detector.RingMCP, detector.RingPIP},
	{detector.RingPIP, detector.RingDIP}, {detector.RingDIP, detector.RingTip},

	{detector.Wrist, detector.PinkyMCP}, {detector.PinkyMCP, detector.PinkyPIP},
	{detector.PinkyPIP, detector.PinkyDIP}, {detector.PinkyDIP, detector.PinkyTip},
}

// Style controls colors and sizes of the overlay.
type Style struct {
	BoneColor   color.RGBA
	PointColor  color.RGBA
	TextColor   color.RGBA
	BannerColor color.RGBA

	BoneWidth   float64
	PointRadius float64

	// BannerHeight is the fraction of the surface height used by the caption banner.
	BannerHeight float64
}

// DefaultStyle returns green bones, red joints and a dark caption banner.
func DefaultStyle() Style {
	return Style{
		BoneColor:    color.RGBA{R: 0, G: 255, B: 0, A: 255},
		PointColor:   color.RGBA{R: 255, G: 0, B: 0, A: 255},
		TextColor:    color.RGBA{R: 255, G: 255, B: 255, A: 255},
		BannerColor:  color.RGBA{R: 0, G: 0, B: 0, A: 160},
		BoneWidth:    2,
		PointRadius:  5,
		BannerHeight: 0.25,
	}
}

// Caption is the text shown in the banner.
type Caption struct {
	Status     string
	Label      string
	Confidence string
}

// CaptionFor builds the banner text for a result.
func CaptionFor(result gate.Result) Caption {
	c := Caption{
		Status: "No Hand Detected",
		Label:  "...",
	}
	if result.HandPresent {
		c.Status = "Hand Detected"
	}
	if result.HasLabel() {
		c.Label = result.Label
		c.Confidence = fmt.Sprintf("Confidence: %.1f%%", result.Confidence*100)
	}
	return c
}

// project maps a landmark in normalized image coordinates onto a surface.
func project(l detector.Landmark, width, height int) (float64, float64) {
	return l.X * float64(width), l.Y * float64(height)
}

// bones yields the connections whose endpoints both exist in the pose.
func bones(pose *detector.HandPose) [][2]int {
	if pose == nil {
		return nil
	}
	n := len(pose.Landmarks)
	out := make([][2]int, 0, len(Connections))
	for _, c := range Connections {
		if c[0] < n && c[1] < n {
			out = append(out, c)
		}
	}
	return out
}
