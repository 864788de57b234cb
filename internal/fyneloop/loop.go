// Package fyneloop runs the application on the fyne driver.
package fyneloop

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"runtime"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"yashubustudio/weatherdesk/internal/appconfig"
	"yashubustudio/weatherdesk/internal/builder"
	"yashubustudio/weatherdesk/internal/platform"
)

// ContentFunc builds the content of a configured window.
type ContentFunc func(rt *builder.Runtime, def appconfig.Window) fyne.CanvasObject

type Options struct {
	Logger *slog.Logger
	// NewApp creates the fyne application. Defaults to app.NewWithID.
	NewApp func(id string) fyne.App
	// Content defaults to a placeholder naming the product.
	Content ContentFunc
	// CheckDisplay reports whether a display is reachable. Defaults to an
	// environment check on X11/Wayland systems.
	CheckDisplay func() error
}

// Loop implements builder.Loop.
type Loop struct {
	logger       *slog.Logger
	newApp       func(id string) fyne.App
	content      ContentFunc
	checkDisplay func() error

	rt      *builder.Runtime
	app     fyne.App
	windows []*window
}

func New(opts Options) *Loop {
	l := &Loop{
		logger:       opts.Logger,
		newApp:       opts.NewApp,
		content:      opts.Content,
		checkDisplay: opts.CheckDisplay,
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.newApp == nil {
		l.newApp = fyneapp.NewWithID
	}
	if l.content == nil {
		l.content = placeholderContent
	}
	if l.checkDisplay == nil {
		l.checkDisplay = environmentDisplay
	}
	return l
}

// Start creates the fyne app and one window per definition. Driver panics
// are returned as errors.
func (l *Loop) Start(rt *builder.Runtime) (err error) {
	if l.app != nil {
		return errors.New("loop already started")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fyne driver: %v", r)
		}
	}()
	if rt.Variant() == platform.Desktop {
		if err := l.checkDisplay(); err != nil {
			return err
		}
	}
	a := l.newApp(rt.Identifier())
	if a == nil {
		return errors.New("fyne driver unavailable")
	}
	l.rt = rt
	l.app = a
	a.Lifecycle().SetOnStopped(rt.Exiting)

	for i, def := range rt.Windows() {
		fw := a.NewWindow(def.Title)
		if i == 0 {
			fw.SetMaster()
		}
		fw.SetContent(withMinSize(l.content(rt, def), def))
		fw.Resize(fyne.NewSize(float32(def.Width), float32(def.Height)))
		fw.SetFixedSize(!def.IsResizable())
		if def.Center {
			fw.CenterOnScreen()
		}
		fw.SetFullScreen(def.Fullscreen)

		w := &window{label: def.Label, fw: fw}
		fw.SetCloseIntercept(func() { l.requestClose(w) })
		l.windows = append(l.windows, w)
		rt.WindowCreated(w)
	}
	l.logger.Info("run loop started", "windows", len(l.windows))
	return nil
}

// Run shows every window and blocks until the fyne app quits.
func (l *Loop) Run() {
	for _, w := range l.windows {
		w.fw.Show()
	}
	l.app.Run()
	l.rt.Exiting()
	l.logger.Info("run loop stopped")
}

func (l *Loop) requestClose(w *window) {
	l.rt.WindowClosing(w)
	w.fw.Close()
}

func withMinSize(content fyne.CanvasObject, def appconfig.Window) fyne.CanvasObject {
	if def.MinWidth == 0 && def.MinHeight == 0 {
		return content
	}
	spacer := canvas.NewRectangle(color.Transparent)
	spacer.SetMinSize(fyne.NewSize(float32(def.MinWidth), float32(def.MinHeight)))
	return container.NewStack(spacer, content)
}

func placeholderContent(rt *builder.Runtime, _ appconfig.Window) fyne.CanvasObject {
	return container.NewCenter(widget.NewLabel(rt.ProductName() + " " + rt.Version()))
}

func environmentDisplay() error {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
			return errors.New("no display connection: DISPLAY and WAYLAND_DISPLAY are unset")
		}
	}
	return nil
}
