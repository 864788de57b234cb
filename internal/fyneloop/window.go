package fyneloop

import (
	"fyne.io/fyne/v2"

	"yashubustudio/weatherdesk/internal/capability"
)

// window adapts a fyne.Window. fyne exposes neither window position nor
// a maximized state, so x, y and maximized are never read from the OS
// window: Geometry reports whatever SetGeometry last stored. Only width,
// height and fullscreen follow the real window, which means a moved
// window restores its size but not its position.
type window struct {
	label     string
	fw        fyne.Window
	x, y      int
	maximized bool
}

func (w *window) Label() string { return w.label }

func (w *window) Geometry() capability.Geometry {
	size := w.fw.Canvas().Size()
	return capability.Geometry{
		X:          w.x,
		Y:          w.y,
		Width:      int(size.Width),
		Height:     int(size.Height),
		Maximized:  w.maximized,
		Fullscreen: w.fw.FullScreen(),
	}
}

func (w *window) SetGeometry(g capability.Geometry) {
	w.x, w.y, w.maximized = g.X, g.Y, g.Maximized
	if g.Width > 0 && g.Height > 0 {
		w.fw.Resize(fyne.NewSize(float32(g.Width), float32(g.Height)))
	}
	w.fw.SetFullScreen(g.Fullscreen)
}
