// Package tui is the terminal transport panel: playhead, loop region, track
// audibility and the engine's warning tail, driven off the engine's update
// channel.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Maokus/MVMNT-sub000/debug"
	"github.com/Maokus/MVMNT-sub000/engine"
	"github.com/Maokus/MVMNT-sub000/schedule"
	"github.com/Maokus/MVMNT-sub000/theme"
	"github.com/Maokus/MVMNT-sub000/transport"
)

const timelineCells = 64

type Model struct {
	Manager *engine.Manager
	Theme   *theme.Theme

	cursor   int // selected track row
	quitting bool
}

type UpdateMsg struct{}

func NewModel(manager *engine.Manager, th *theme.Theme) Model {
	return Model{Manager: manager, Theme: th}
}

// ListenForUpdates relays engine pings into the bubbletea loop.
func ListenForUpdates(manager *engine.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForUpdates(m.Manager)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.Manager.Stop()
			return m, tea.Quit

		case " ":
			if m.Manager.Now().Status == transport.StatusPlaying {
				m.Manager.Pause()
			} else {
				m.Manager.Play()
			}

		case "left", "h":
			m.seekBars(-1)

		case "right", "l":
			m.seekBars(1)

		case "0":
			m.Manager.SeekTick(0)

		case "L":
			m.toggleLoop()

		case "b":
			if m.Manager.Controller().Quantize() == transport.QuantizeBar {
				m.Manager.SetQuantize(transport.QuantizeOff)
			} else {
				m.Manager.SetQuantize(transport.QuantizeBar)
			}

		case "+", "=":
			m.nudgeRate(0.1)

		case "-", "_":
			m.nudgeRate(-0.1)

		case "j", "down":
			if m.cursor < len(m.Manager.Scheduler().Tracks())-1 {
				m.cursor++
			}

		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}

		case "m":
			if t := m.selectedTrack(); t != nil {
				m.Manager.Scheduler().SetMute(t.ID, !t.Mute)
			}

		case "s":
			if t := m.selectedTrack(); t != nil {
				m.Manager.Scheduler().SetSolo(t.ID, !t.Solo)
			}

		case "e":
			if t := m.selectedTrack(); t != nil {
				m.Manager.Scheduler().SetEnabled(t.ID, !t.Enabled)
			}
		}

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)
	}

	return m, nil
}

func (m Model) selectedTrack() *schedule.Track {
	tracks := m.Manager.Scheduler().Tracks()
	if m.cursor < 0 || m.cursor >= len(tracks) {
		return nil
	}
	return tracks[m.cursor]
}

func (m *Model) nudgeRate(delta float64) {
	rate := m.Manager.Controller().Rate() + delta
	if rate <= 0 {
		return
	}
	if err := m.Manager.SetRate(rate); err != nil {
		debug.Log("tui", "set rate %.2f: %v", rate, err)
	}
}

func (m *Model) seekBars(n int64) {
	ctl := m.Manager.Controller()
	tpb := ctl.Grid().TicksPerBar()
	now := m.Manager.Now().Tick
	target := ctl.Grid().FloorToBar(now) + n*tpb
	m.Manager.SeekTick(target)
}

func (m *Model) toggleLoop() {
	ctl := m.Manager.Controller()
	start, end, enabled := ctl.Loop()
	if enabled {
		m.Manager.SetLoop(start, end, false)
		return
	}
	if end <= start {
		// No loop configured yet: loop the current bar.
		tpb := ctl.Grid().TicksPerBar()
		start = ctl.Grid().FloorToBar(m.Manager.Now().Tick)
		end = start + tpb
	}
	m.Manager.SetLoop(start, end, true)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	ctl := m.Manager.Controller()
	now := m.Manager.Now()
	bar, beat, rem := ctl.Grid().BarBeat(now.Tick)

	header := m.Theme.TitleStyle().Render(fmt.Sprintf(
		"mvmnt  %s  %03d.%d.%03d  %8.3fs  rate %.1fx  quantize %s  [%s]",
		strings.ToUpper(now.Status.String()),
		bar, beat, rem, now.Seconds, ctl.Rate(), ctl.Quantize(), now.Authority,
	))

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(m.renderTimeline(now))
	b.WriteString("\n\n")
	b.WriteString(m.renderTracks())
	b.WriteString("\n")
	b.WriteString(m.renderWarnings())
	b.WriteString("\n")
	b.WriteString(m.Theme.MutedStyle().Render(
		"space play/pause  ←/→ seek bar  0 rewind  L loop  b quantize  +/- rate  j/k m/s/e tracks  q quit"))
	b.WriteString("\n")
	return b.String()
}

// renderTimeline draws the content span as a fixed strip with playhead and
// loop bounds.
func (m Model) renderTimeline(now transport.Snapshot) string {
	ctl := m.Manager.Controller()
	span := ctl.ContentMax()
	if span <= 0 {
		span = ctl.Grid().TicksPerBar() * 8
	}

	loopStart, loopEnd, loopOn := ctl.Loop()
	cell := func(i int) int64 { return span * int64(i) / timelineCells }

	playheadIdx := int(now.Tick * timelineCells / span)
	if playheadIdx >= timelineCells {
		playheadIdx = timelineCells - 1
	}

	var cells []string
	for i := 0; i < timelineCells; i++ {
		at := cell(i)
		ch := m.Theme.Symbols.Empty
		style := m.Theme.MutedStyle()
		if loopOn && at >= loopStart && at < loopEnd {
			ch = m.Theme.Symbols.LoopMark
			style = m.Theme.StatusStyle()
		}
		if i == playheadIdx {
			if now.Status == transport.StatusPlaying {
				ch = m.Theme.Symbols.Playhead
			} else {
				ch = m.Theme.Symbols.PausedAt
			}
			style = lipgloss.NewStyle().Foreground(m.Theme.Accent()).Bold(true)
		}
		cells = append(cells, style.Render(string(ch)))
	}
	return "  " + strings.Join(cells, "")
}

func (m Model) renderTracks() string {
	tracks := m.Manager.Scheduler().Tracks()
	if len(tracks) == 0 {
		return m.Theme.MutedStyle().Render("  (no tracks loaded)")
	}

	var b strings.Builder
	for i, t := range tracks {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		flags := ""
		if !t.Enabled {
			flags += " off"
		}
		if t.Mute {
			flags += " mute"
		}
		if t.Solo {
			flags += " solo"
		}
		line := fmt.Sprintf("%s%-4s %-20s %4d events  offset %d%s",
			marker, t.ID, t.Name, len(t.Events), t.OffsetTicks, flags)

		style := m.Theme.StatusStyle()
		if t.Mute || !t.Enabled {
			style = m.Theme.MutedStyle()
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderWarnings() string {
	warns := m.Manager.Warnings()
	if len(warns) == 0 {
		return ""
	}
	show := warns
	if len(show) > 3 {
		show = show[len(show)-3:]
	}
	var b strings.Builder
	for _, w := range show {
		b.WriteString(m.Theme.WarningStyle().Render("  ! " + w.String()))
		b.WriteString("\n")
	}
	return b.String()
}
