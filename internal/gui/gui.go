// Package gui is the desktop shell: a single booking form that drives the
// automation through the launcher and streams its output into a log pane.
package gui

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"gioui.org/app"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"github.com/rs/zerolog"

	"courtbook/internal/launcher"
)

type (
	C = layout.Context
	D = layout.Dimensions
)

var (
	bgColor       = color.NRGBA{R: 22, G: 24, B: 35, A: 255}
	cardBg        = color.NRGBA{R: 36, G: 39, B: 54, A: 255}
	borderColor   = color.NRGBA{R: 59, G: 66, B: 82, A: 255}
	textColor     = color.NRGBA{R: 229, G: 233, B: 240, A: 255}
	accentColor   = color.NRGBA{R: 136, G: 192, B: 208, A: 255}
	successColor  = color.NRGBA{R: 163, G: 190, B: 140, A: 255}
	runningColor  = color.NRGBA{R: 235, G: 203, B: 139, A: 255}
	dangerColor   = color.NRGBA{R: 191, G: 97, B: 106, A: 255}
	disabledColor = color.NRGBA{R: 129, G: 137, B: 153, A: 255}
	purpleAccent  = color.NRGBA{R: 180, G: 142, B: 173, A: 255}
)

const configFile = "booking_config.json"

// FormConfig is the persisted booking form. The password is deliberately
// not saved.
type FormConfig struct {
	Username   string `json:"username"`
	Date       string `json:"date"`
	Court      string `json:"court"`
	TimeSlot   string `json:"time_slot"`
	UseProfile bool   `json:"use_profile"`
}

type GUI struct {
	th   *material.Theme
	w    *app.Window
	runs *launcher.Manager

	usernameEditor widget.Editor
	passwordEditor widget.Editor
	dateEditor     widget.Editor
	courtEditor    widget.Editor
	slotEditor     widget.Editor
	profileBox     widget.Bool
	startBtn       widget.Clickable

	logView *LogView

	mu       sync.Mutex
	runID    string
	lastSnap launcher.Snapshot
}

// NewGUI builds the shell around an automation binary path. Launcher output
// lands in the log pane.
func NewGUI(automationBinary, deviceToken string) *GUI {
	th := material.NewTheme()
	th.Palette.Bg = bgColor
	th.Palette.Fg = textColor

	g := &GUI{
		th:             th,
		logView:        &LogView{},
		usernameEditor: widget.Editor{SingleLine: true},
		passwordEditor: widget.Editor{SingleLine: true, Mask: '*'},
		dateEditor:     widget.Editor{SingleLine: true},
		courtEditor:    widget.Editor{SingleLine: true},
		slotEditor:     widget.Editor{SingleLine: true},
	}
	g.runs = launcher.NewManager(automationBinary, deviceToken,
		zerolog.New(g.logView).With().Timestamp().Logger())
	g.loadConfig()
	return g
}

func (g *GUI) Run() {
	g.w = new(app.Window)
	g.w.Option(
		app.Title("Court Booking"),
		app.Size(unit.Dp(900), unit.Dp(650)),
	)
	g.logView.gui = g

	go func() {
		if err := g.loop(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}()
	app.Main()
}

func (g *GUI) loop() error {
	var ops op.Ops
	for {
		switch e := g.w.Event().(type) {
		case app.DestroyEvent:
			g.saveConfig()
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			g.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}

func (g *GUI) Layout(gtx C) D {
	paint.Fill(gtx.Ops, bgColor)
	return layout.UniformInset(unit.Dp(24)).Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(g.layoutHeader),
			layout.Rigid(g.layoutForm),
			layout.Rigid(g.layoutStatus),
			layout.Flexed(1, g.layoutLogs),
		)
	})
}

func (g *GUI) layoutHeader(gtx C) D {
	_, running := g.currentRun()

	if g.startBtn.Clicked(gtx) {
		if running {
			g.stopRun()
		} else {
			g.startRun()
		}
	}

	return layout.Inset{Bottom: unit.Dp(16)}.Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
			layout.Flexed(1, func(gtx C) D {
				label := material.H5(g.th, "🏸 Court Booking")
				label.Color = accentColor
				return label.Layout(gtx)
			}),
			layout.Rigid(func(gtx C) D {
				btnText := "▶ Book Court"
				btnColor := successColor
				if running {
					btnText = "■ Stop"
					btnColor = runningColor
				}
				btn := material.Button(g.th, &g.startBtn, btnText)
				btn.Background = btnColor
				btn.Color = bgColor
				btn.CornerRadius = unit.Dp(8)
				return btn.Layout(gtx)
			}),
		)
	})
}

func (g *GUI) layoutForm(gtx C) D {
	return widget.Border{
		Color:        borderColor,
		Width:        unit.Dp(1),
		CornerRadius: unit.Dp(12),
	}.Layout(gtx, func(gtx C) D {
		defer clip.UniformRRect(image.Rectangle{Max: gtx.Constraints.Max}, gtx.Dp(unit.Dp(12))).Push(gtx.Ops).Pop()
		paint.Fill(gtx.Ops, cardBg)

		return layout.UniformInset(unit.Dp(20)).Layout(gtx, func(gtx C) D {
			return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
				layout.Rigid(func(gtx C) D {
					return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
						layout.Flexed(1, func(gtx C) D {
							return g.layoutFormRow(gtx, "👤 Username", &g.usernameEditor)
						}),
						layout.Rigid(layout.Spacer{Width: unit.Dp(20)}.Layout),
						layout.Flexed(1, func(gtx C) D {
							return g.layoutFormRow(gtx, "🔑 Password", &g.passwordEditor)
						}),
					)
				}),
				layout.Rigid(func(gtx C) D {
					return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
						layout.Flexed(1, func(gtx C) D {
							return g.layoutFormRow(gtx, "📅 Date (DD/MM/YYYY)", &g.dateEditor)
						}),
						layout.Rigid(layout.Spacer{Width: unit.Dp(20)}.Layout),
						layout.Flexed(1, func(gtx C) D {
							return g.layoutFormRow(gtx, "🏟️ Court", &g.courtEditor)
						}),
						layout.Rigid(layout.Spacer{Width: unit.Dp(20)}.Layout),
						layout.Flexed(1, func(gtx C) D {
							return g.layoutFormRow(gtx, "🕐 Time Slot", &g.slotEditor)
						}),
					)
				}),
				layout.Rigid(func(gtx C) D {
					cb := material.CheckBox(g.th, &g.profileBox, "Use existing Chrome profile")
					cb.Color = accentColor
					cb.IconColor = textColor
					return cb.Layout(gtx)
				}),
			)
		})
	})
}

func (g *GUI) layoutFormRow(gtx C, label string, editor *widget.Editor) D {
	return layout.Inset{Bottom: unit.Dp(16)}.Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx C) D {
				l := material.Caption(g.th, label)
				l.Color = purpleAccent
				l.TextSize = unit.Sp(13)
				return layout.Inset{Bottom: unit.Dp(6)}.Layout(gtx, l.Layout)
			}),
			layout.Rigid(func(gtx C) D {
				ed := material.Editor(g.th, editor, "")
				ed.Color = textColor
				ed.HintColor = disabledColor
				return ed.Layout(gtx)
			}),
		)
	})
}

func (g *GUI) layoutStatus(gtx C) D {
	snap, running := g.currentRun()
	if snap.ID == "" {
		return D{}
	}

	text := "○ Idle"
	col := disabledColor
	switch {
	case running:
		text = "● Booking in progress..."
		col = runningColor
	case snap.Status == launcher.StatusCompleted && snap.Result != nil:
		text = "✔ Booked! Pay at: " + snap.Result.PaymentURL
		col = successColor
	case snap.Status == launcher.StatusFailed:
		text = "✕ Booking failed"
		if snap.Result != nil && snap.Result.Error != "" {
			text += ": " + snap.Result.Error
		}
		col = dangerColor
	}

	return layout.Inset{Top: unit.Dp(16)}.Layout(gtx, func(gtx C) D {
		label := material.Body1(g.th, text)
		label.Color = col
		return label.Layout(gtx)
	})
}

func (g *GUI) layoutLogs(gtx C) D {
	return layout.Inset{Top: unit.Dp(16)}.Layout(gtx, func(gtx C) D {
		return widget.Border{
			Color:        borderColor,
			Width:        unit.Dp(1),
			CornerRadius: unit.Dp(12),
		}.Layout(gtx, func(gtx C) D {
			defer clip.UniformRRect(image.Rectangle{Max: gtx.Constraints.Max}, gtx.Dp(unit.Dp(12))).Push(gtx.Ops).Pop()
			paint.Fill(gtx.Ops, cardBg)

			return layout.UniformInset(unit.Dp(16)).Layout(gtx, func(gtx C) D {
				return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
					layout.Rigid(func(gtx C) D {
						label := material.Body1(g.th, "📋 LOGS")
						label.Color = accentColor
						label.TextSize = unit.Sp(14)
						return layout.Inset{Bottom: unit.Dp(12)}.Layout(gtx, label.Layout)
					}),
					layout.Flexed(1, func(gtx C) D {
						return g.logView.Layout(gtx)
					}),
				)
			})
		})
	})
}

func (g *GUI) currentRun() (launcher.Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.runID == "" {
		return launcher.Snapshot{}, false
	}
	if snap, ok := g.runs.Get(g.runID); ok {
		g.lastSnap = snap
	}
	return g.lastSnap, g.lastSnap.Status == launcher.StatusRunning
}

func (g *GUI) startRun() {
	id, err := g.runs.Start(launcher.Request{
		Username:         g.usernameEditor.Text(),
		Password:         g.passwordEditor.Text(),
		Date:             g.dateEditor.Text(),
		Court:            g.courtEditor.Text(),
		TimeSlot:         g.slotEditor.Text(),
		UseChromeProfile: g.profileBox.Value,
	})
	if err != nil {
		fmt.Fprintf(g.logView, "failed to start automation: %v\n", err)
		g.w.Invalidate()
		return
	}
	g.saveConfig()

	g.mu.Lock()
	g.runID = id
	g.lastSnap = launcher.Snapshot{ID: id, Status: launcher.StatusRunning, StartTime: time.Now()}
	g.mu.Unlock()

	// Keep redrawing while the run is alive so status updates show up.
	go func() {
		for {
			time.Sleep(500 * time.Millisecond)
			snap, ok := g.runs.Get(id)
			g.w.Invalidate()
			if !ok || snap.Status != launcher.StatusRunning {
				return
			}
		}
	}()
	g.w.Invalidate()
}

func (g *GUI) stopRun() {
	g.mu.Lock()
	id := g.runID
	g.mu.Unlock()
	if id == "" {
		return
	}
	if err := g.runs.Stop(id); err != nil {
		fmt.Fprintf(g.logView, "failed to stop automation: %v\n", err)
	}
	g.w.Invalidate()
}

func (g *GUI) saveConfig() {
	cfg := FormConfig{
		Username:   g.usernameEditor.Text(),
		Date:       g.dateEditor.Text(),
		Court:      g.courtEditor.Text(),
		TimeSlot:   g.slotEditor.Text(),
		UseProfile: g.profileBox.Value,
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	_ = os.WriteFile(configFile, data, 0o644)
}

func (g *GUI) loadConfig() {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return
	}
	var cfg FormConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return
	}
	g.usernameEditor.SetText(cfg.Username)
	g.dateEditor.SetText(cfg.Date)
	g.courtEditor.SetText(cfg.Court)
	g.slotEditor.SetText(cfg.TimeSlot)
	g.profileBox.Value = cfg.UseProfile
}

// LogView is a scrolling log pane that doubles as an io.Writer so the
// launcher's logger can stream straight into it.
type LogView struct {
	gui   *GUI
	list  widget.List
	logs  []string
	dirty bool
	mu    sync.Mutex
}

func (l *LogView) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, time.Now().Format("15:04:05")+" "+string(p))
	l.dirty = true
	if l.gui != nil && l.gui.w != nil {
		l.gui.w.Invalidate()
	}
	return len(p), nil
}

func (l *LogView) Layout(gtx C) D {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dirty {
		l.list.Position.First = len(l.logs) - 1
		l.list.Position.Offset = 1000000
		l.dirty = false
	}

	l.list.Axis = layout.Vertical

	return widget.Border{
		Color:        borderColor,
		Width:        unit.Dp(1),
		CornerRadius: unit.Dp(8),
	}.Layout(gtx, func(gtx C) D {
		defer clip.UniformRRect(image.Rectangle{Max: gtx.Constraints.Max}, gtx.Dp(unit.Dp(8))).Push(gtx.Ops).Pop()
		paint.Fill(gtx.Ops, color.NRGBA{R: 18, G: 20, B: 28, A: 255})

		if len(l.logs) == 0 {
			return layout.Center.Layout(gtx, func(gtx C) D {
				label := material.Body2(l.gui.th, "No logs yet...")
				label.Color = disabledColor
				return label.Layout(gtx)
			})
		}

		return material.List(l.gui.th, &l.list).Layout(gtx, len(l.logs), func(gtx C, i int) D {
			return layout.UniformInset(unit.Dp(8)).Layout(gtx, func(gtx C) D {
				label := material.Body2(l.gui.th, l.logs[i])
				label.Color = textColor
				label.TextSize = unit.Sp(12)
				return label.Layout(gtx)
			})
		})
	})
}
