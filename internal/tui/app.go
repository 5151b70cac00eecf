package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/tui/views"
)

const uiTickInterval = 250 * time.Millisecond

type App struct {
	model     *Model
	source    Source
	controls  Controls
	header    *views.StatsHeader
	traffic   *views.TrafficChart
	feed      *views.LogFeed
	clients   *views.ClientTable
	status    *views.Status
	inspector *views.LogInspector

	ready    bool
	quitting bool
	width    int
	height   int

	runtimeChan chan domain.RuntimeSnapshot
	notice      string
	mode        string
}

// NewApp builds the dashboard. controls may be nil for a read-only view.
func NewApp(source Source, controls Controls) *App {
	return &App{
		model:       NewModel(),
		source:      source,
		controls:    controls,
		header:      views.NewStatsHeader(100),
		traffic:     views.NewTrafficChart(80),
		feed:        views.NewLogFeed(15),
		clients:     views.NewClientTable(100),
		status:      views.NewStatus(100),
		inspector:   views.NewLogInspector(),
		runtimeChan: make(chan domain.RuntimeSnapshot, 10),
		mode:        "LIVE",
	}
}

// SetMode labels the traffic source in the header (LIVE, REPLAY, LOAD).
func (a *App) SetMode(mode string) { a.mode = mode }

type tickMsg time.Time
type runtimeMsg domain.RuntimeSnapshot

func (a *App) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, a.tick(), a.listenForRuntime())
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(uiTickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a *App) listenForRuntime() tea.Cmd {
	return func() tea.Msg { return runtimeMsg(<-a.runtimeChan) }
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.inspector.Visible {
			switch msg.String() {
			case "esc", "q":
				a.inspector.Close()
			case "up", "k":
				a.inspector.ScrollUp()
			case "down", "j":
				a.inspector.ScrollDown()
			}
			return a, nil
		}

		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "tab":
			a.model.NextView()
		case "up", "k":
			a.feed.ScrollUp()
		case "down", "j":
			a.feed.ScrollDown()
		case "enter":
			a.inspect()
		case "t":
			a.issueToken()
		case "r":
			a.toggle(func(c *domain.GatewayConfig) { c.RateLimitEnabled = !c.RateLimitEnabled }, "rate limiting")
		case "a":
			a.toggle(func(c *domain.GatewayConfig) { c.JWTRequired = !c.JWTRequired }, "token auth")
		}
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
	case tickMsg:
		a.refresh(time.Time(msg))
		return a, a.tick()
	case runtimeMsg:
		a.status.Update(domain.RuntimeSnapshot(msg))
		return a, a.listenForRuntime()
	}
	return a, nil
}

func (a *App) resize(width, height int) {
	a.width, a.height = width, height
	a.ready = true
	a.model.SetDimensions(width, height)
	a.header.Width = width - 4
	a.feed.Width = width - 4
	a.clients.Width = width - 4
	a.status.Width = width
	a.traffic.SetWidth(width - 4)

	contentHeight := max(height-16, 5)
	a.feed.VisibleCount = contentHeight
	a.clients.VisibleCount = contentHeight

	a.inspector.SetDimensions(width-4, height-2)
}

func (a *App) refresh(now time.Time) {
	if a.source == nil || !a.model.NeedsRefresh(now) {
		return
	}
	a.model.Refresh(a.source, now)

	cfg, token := a.model.GetConfig()
	stats := a.model.GetStats()
	a.header.Update(stats, cfg, token)
	a.status.UpdateStats(stats)
	a.traffic.Update(a.model.GetTraffic())
	a.feed.Update(a.model.GetLogs())
	a.clients.Update(a.model.GetProfiles())
}

func (a *App) inspect() {
	entry := a.feed.Selected()
	if entry == nil {
		return
	}
	var profile *domain.ClientProfile
	if p, ok := a.model.Profile(entry.Username); ok {
		profile = &p
	}
	a.inspector.Open(entry, profile)
}

func (a *App) issueToken() {
	if a.controls == nil {
		a.notice = "read-only dashboard"
		return
	}
	token := a.controls.IssueToken("")
	a.notice = "issued " + token
	log.Debug().Msg("Token issued from dashboard")
	a.model.pending.Add(1)
}

func (a *App) toggle(change func(*domain.GatewayConfig), what string) {
	if a.controls == nil || a.source == nil {
		a.notice = "read-only dashboard"
		return
	}
	cfg := a.source.Config()
	change(&cfg)
	if err := a.controls.SetConfig(cfg); err != nil {
		a.notice = err.Error()
		return
	}
	a.notice = what + " updated"
	log.Info().Interface("config", cfg).Msg("Gateway config changed from dashboard")
	a.model.pending.Add(1)
}

func (a *App) View() string {
	if a.quitting {
		return "\n  Session terminated.\n\n"
	}
	if !a.ready {
		return "\n  Initializing...\n\n"
	}
	if a.inspector.Visible {
		return a.inspector.Render()
	}

	var b strings.Builder
	b.WriteString(a.renderTitle())
	b.WriteString("\n")
	b.WriteString(TextDim.Render(strings.Repeat("─", a.width)))
	b.WriteString("\n")
	b.WriteString(a.header.Render())
	b.WriteString("\n\n")
	b.WriteString(a.traffic.Render())
	b.WriteString("\n\n")

	viewName := "LIVE LOGS"
	content := a.feed.Render()
	if a.model.ActiveView == ViewClients {
		viewName = "CLIENT INTEL"
		content = a.clients.Render()
	}
	b.WriteString(TextMuted.Render("  " + viewName))
	b.WriteString("\n")
	b.WriteString(content)

	b.WriteString("\n\n")
	b.WriteString(a.status.Render())
	b.WriteString("\n")
	b.WriteString(a.renderHelp())

	return b.String()
}

func (a *App) renderTitle() string {
	stats := a.model.GetStats()
	label, style := ForThreatLevel(stats.BlockRate(), stats.GlobalBans)

	line := fmt.Sprintf("  %s  %s  %s %s",
		TitleStyle.Render("SENTINEL"),
		style.Render(label),
		TextDim.Render("SRC:"), a.mode)
	if a.notice != "" {
		line += "  " + TextMuted.Render(a.notice)
	}
	return line
}

func (a *App) renderHelp() string {
	names := []string{"LOGS", "CLIENTS"}
	return TextDim.Render(fmt.Sprintf("  %s [%s]  %s scroll  %s inspect  %s token  %s rate  %s auth  %s quit",
		KeyStyle.Render("TAB"), names[a.model.ActiveView],
		KeyStyle.Render("↑↓"), KeyStyle.Render("ENTER"),
		KeyStyle.Render("t"), KeyStyle.Render("r"), KeyStyle.Render("a"),
		KeyStyle.Render("q")))
}

// SendRuntime hands a runtime snapshot to the status bar without blocking.
func (a *App) SendRuntime(snapshot domain.RuntimeSnapshot) {
	select {
	case a.runtimeChan <- snapshot:
	default:
	}
}

func (a *App) OnLogEntry(entry *domain.LogEntry) { a.model.OnLogEntry(entry) }

func (a *App) GetModel() *Model { return a.model }

func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
