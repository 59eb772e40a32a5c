package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/loclhse/toolbanhangUIUX/internal/board"
	"github.com/loclhse/toolbanhangUIUX/internal/pos"
	"github.com/loclhse/toolbanhangUIUX/internal/realtime"
	"github.com/loclhse/toolbanhangUIUX/internal/theme"
	"github.com/loclhse/toolbanhangUIUX/internal/views/eventlog"
	"github.com/loclhse/toolbanhangUIUX/internal/views/status"
)

const (
	statusTick   = time.Second
	fetchTimeout = 15 * time.Second
)

// Realtime is the part of realtime.Client the board drives.
type Realtime interface {
	Connect()
	Disconnect()
	State() realtime.State
	Attempt() int
	NextDelay() time.Duration
	MarkItem(m pos.ItemMark) bool
}

// OrderSource is the REST side of the board.
type OrderSource interface {
	ListOrders(ctx context.Context) ([]pos.Order, error)
	CreateOrder(ctx context.Context, req pos.CreateOrderRequest) (*pos.Order, error)
}

// BoardChangedMsg tells the model the board has new state to render.
type BoardChangedMsg struct{}

// ConnEventMsg carries a connection lifecycle event from the bus.
type ConnEventMsg struct {
	Name    string
	Payload any
}

// OnlineMsg reports a host connectivity change.
type OnlineMsg struct{ Online bool }

type ordersMsg struct {
	orders    []pos.Order
	startedAt time.Time
	err       error
}

type createdMsg struct {
	from  pos.ID
	order *pos.Order
	err   error
}

type tickMsg time.Time

// row is one selectable order item.
type row struct {
	order pos.ID
	item  pos.ID
	first bool // first item of its order
}

// Model is the root Bubble Tea model.
type Model struct {
	rt     Realtime
	source OrderSource
	board  *board.Board
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	orders   []pos.Order
	rows     []row
	selected int
	showLog  bool
	fetching bool

	// resyncDue is set once a session is lost; frames published while
	// disconnected are not redelivered, so the next connect must fetch.
	resyncDue bool

	// resyncQueued asks for another fetch once the in-flight one lands.
	resyncQueued bool

	statusBar status.Model
	events    eventlog.Model
}

// New creates the root model.
func New(rt Realtime, source OrderSource, b *board.Board) Model {
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		rt:        rt,
		source:    source,
		board:     b,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		statusBar: status.New(),
		events:    eventlog.New(),
	}
	// Init issues the first fetch.
	m.fetching = source != nil
	m.rebuild()
	m.refreshStatus()
	return m
}

// Init loads the initial order list and starts the status clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(statusTick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetch() tea.Cmd {
	if m.source == nil {
		return nil
	}
	ctx, source, b := m.ctx, m.source, m.board
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		started := b.BeginFetch()
		orders, err := source.ListOrders(ctx)
		return ordersMsg{orders: orders, startedAt: started, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case BoardChangedMsg:
		m.rebuild()
		return m, nil

	case ConnEventMsg:
		m.logConn(msg)
		m.refreshStatus()
		switch msg.Name {
		case realtime.EventDisconnect:
			m.resyncDue = true
		case realtime.EventConnect:
			info, _ := msg.Payload.(realtime.ConnectInfo)
			if m.resyncDue || info.Attempts > 0 {
				m.resyncDue = false
				return m.resync()
			}
			if m.board.ShouldRefetch() {
				return m.startFetch()
			}
		}
		return m, nil

	case OnlineMsg:
		m.statusBar.Offline = !msg.Online
		if msg.Online {
			m.events.Add("conn", "network back online")
		} else {
			m.events.Add("err", "network offline")
		}
		return m, nil

	case ordersMsg:
		m.fetching = false
		if msg.err != nil {
			if !errors.Is(msg.err, context.Canceled) {
				m.events.Add("err", "fetch failed: "+msg.err.Error())
			}
		} else {
			m.board.ApplyFetch(msg.orders, msg.startedAt)
			m.statusBar.LastFetch = time.Now()
			m.events.Add("sync", fmt.Sprintf("fetched %d orders", len(msg.orders)))
			m.rebuild()
		}
		if m.resyncQueued {
			m.resyncQueued = false
			return m.startFetch()
		}
		return m, nil

	case createdMsg:
		if msg.err != nil {
			m.events.Add("err", fmt.Sprintf("refire of #%s failed: %v", msg.from, msg.err))
			return m, nil
		}
		m.events.Add("sync", fmt.Sprintf("refired #%s as #%s", msg.from, msg.order.ID))
		m.rebuild()
		return m, nil

	case tickMsg:
		m.refreshStatus()
		return m, tick()

	case tea.FocusMsg:
		m.board.Activate()
		m.rebuild()
		if m.board.ShouldRefetch() {
			return m.startFetch()
		}
		return m, nil

	case tea.BlurMsg:
		m.board.Deactivate()
		return m, nil
	}

	return m, nil
}

func (m Model) startFetch() (tea.Model, tea.Cmd) {
	if m.fetching {
		return m, nil
	}
	m.fetching = true
	return m, m.fetch()
}

// resync fetches regardless of the refetch gate. A fetch already in flight
// may predate the reconnect, so another one follows it.
func (m Model) resync() (tea.Model, tea.Cmd) {
	if m.fetching {
		m.resyncQueued = true
		return m, nil
	}
	return m.startFetch()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showLog {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Log):
			m.showLog = false
		case key.Matches(msg, m.keys.Up):
			m.events.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.events.ScrollDown(1)
		case key.Matches(msg, m.keys.Quit):
			m.cancel()
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Down):
		if len(m.rows) > 0 {
			m.selected = (m.selected + 1) % len(m.rows)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.rows) > 0 {
			m.selected = (m.selected - 1 + len(m.rows)) % len(m.rows)
		}
		return m, nil

	case key.Matches(msg, m.keys.NextOrder):
		m.jumpOrder(1)
		return m, nil

	case key.Matches(msg, m.keys.PrevOrder):
		m.jumpOrder(-1)
		return m, nil

	case key.Matches(msg, m.keys.Mark):
		m.toggleSelected()
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m.startFetch()

	case key.Matches(msg, m.keys.Refire):
		return m, m.refire()

	case key.Matches(msg, m.keys.Reconnect):
		if m.statusBar.Connected() || m.statusBar.State == realtime.StateConnecting || m.statusBar.Attempt > 0 {
			m.rt.Disconnect()
			m.events.Add("conn", "disconnect requested")
		} else {
			m.rt.Connect()
			m.events.Add("conn", "connect requested")
		}
		m.refreshStatus()
		return m, nil

	case key.Matches(msg, m.keys.Log):
		m.showLog = true
		return m, nil
	}

	return m, nil
}

func (m *Model) toggleSelected() {
	if len(m.rows) == 0 {
		return
	}
	r := m.rows[m.selected]
	marked := m.board.ToggleMark(r.order, r.item)
	mark := pos.ItemMark{OrderID: r.order, ItemID: r.item, Marked: marked}
	if !m.rt.MarkItem(mark) {
		m.events.Add("mark", fmt.Sprintf("order %s item %s saved locally, not sent (offline)", r.order, r.item))
	}
	m.rebuild()
}

// refire asks the kitchen to make the selected order again as a new order
// on the same table.
func (m Model) refire() tea.Cmd {
	if len(m.rows) == 0 || m.source == nil {
		return nil
	}
	id := m.rows[m.selected].order
	var src pos.Order
	for _, o := range m.orders {
		if o.ID == id {
			src = o
			break
		}
	}
	req := pos.CreateOrderRequest{TableID: src.TableID, Note: "refire #" + string(id)}
	for _, it := range src.Items {
		if it.FoodItemID == "" {
			continue
		}
		req.Items = append(req.Items, pos.OrderLine{FoodItemID: it.FoodItemID, Quantity: it.Quantity, Note: it.Note})
	}
	if len(req.Items) == 0 {
		return func() tea.Msg { return createdMsg{from: id, err: errors.New("no menu items to refire")} }
	}
	ctx, source := m.ctx, m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		o, err := source.CreateOrder(ctx, req)
		return createdMsg{from: id, order: o, err: err}
	}
}

// jumpOrder moves the cursor to the first item of the next order, or back
// to the start of the current (then previous) order.
func (m *Model) jumpOrder(dir int) {
	n := len(m.rows)
	if n == 0 {
		return
	}
	if dir > 0 {
		for i := m.selected + 1; i < n; i++ {
			if m.rows[i].first {
				m.selected = i
				return
			}
		}
		m.selected = 0
		return
	}
	start := m.orderStart(m.selected)
	if start != m.selected {
		m.selected = start
		return
	}
	m.selected = m.orderStart((start - 1 + n) % n)
}

func (m *Model) orderStart(i int) int {
	for i > 0 && !m.rows[i].first {
		i--
	}
	return i
}

// rebuild reloads orders from the board and keeps the cursor on the same
// item when it still exists.
func (m *Model) rebuild() {
	var current row
	if m.selected < len(m.rows) {
		current = m.rows[m.selected]
	}
	m.orders = m.board.Orders()
	m.rows = make([]row, 0, len(m.rows))
	items, marked := 0, 0
	for _, o := range m.orders {
		for i, it := range o.Items {
			m.rows = append(m.rows, row{order: o.ID, item: it.ID, first: i == 0})
			items++
			if m.board.IsMarked(o.ID, it.ID) {
				marked++
			}
		}
	}
	m.statusBar.SetCounts(len(m.orders), items, marked)

	m.selected = min(m.selected, max(len(m.rows)-1, 0))
	for i, r := range m.rows {
		if r.order == current.order && r.item == current.item {
			m.selected = i
			break
		}
	}
}

func (m *Model) refreshStatus() {
	m.statusBar.State = m.rt.State()
	m.statusBar.Attempt = m.rt.Attempt()
	m.statusBar.NextDelay = m.rt.NextDelay()
}

func (m *Model) logConn(msg ConnEventMsg) {
	switch p := msg.Payload.(type) {
	case realtime.ConnectInfo:
		m.events.Add("conn", fmt.Sprintf("connected after %d failed attempts", p.Attempts))
	case realtime.DisconnectInfo:
		switch {
		case p.Intentional:
			m.events.Add("conn", "disconnected")
		case p.Reason != nil:
			m.events.Add("err", "connection lost: "+p.Reason.Error())
		default:
			m.events.Add("err", "connection lost")
		}
	case string:
		m.events.Add("err", msg.Name+": "+p)
	default:
		m.events.Add("conn", msg.Name)
	}
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{m.statusBar.View()}
	if banner := m.banner(); banner != "" {
		sections = append(sections, banner)
	}
	help := theme.StyleDimmed.Render("  j/k:item  tab:order  space:mark  f:refire  r:refresh  c:connect  l:log  q:quit")

	avail := m.height - lipgloss.Height(lipgloss.JoinVertical(lipgloss.Left, sections...)) - 1
	if m.showLog {
		sections = append(sections, m.events.View(m.width, avail))
	} else {
		sections = append(sections, m.renderBoard(avail))
	}
	sections = append(sections, help)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) banner() string {
	if m.statusBar.Connected() || m.statusBar.State == realtime.StateConnecting || m.statusBar.Attempt == 0 {
		return ""
	}
	return lipgloss.NewStyle().Foreground(theme.ColorDanger).Bold(true).Render(
		fmt.Sprintf("  DISCONNECTED · Reconnecting in %s (attempt %d) · marks are kept locally", m.statusBar.NextDelay, m.statusBar.Attempt))
}

func (m Model) renderBoard(height int) string {
	if len(m.orders) == 0 {
		return theme.StyleDimmed.Render("  No open orders")
	}

	var lines []string
	cursorLine := 0
	idx := 0
	for _, o := range m.orders {
		lines = append(lines, m.renderOrderHeader(o))
		for _, it := range o.Items {
			prefix := "  "
			if idx == m.selected {
				prefix = "> "
				cursorLine = len(lines)
			}
			lines = append(lines, m.renderItem(prefix, o, it))
			idx++
		}
		if len(o.Items) == 0 {
			lines = append(lines, theme.StyleDimmed.Render("    (no items)"))
		}
	}

	// Keep the cursor inside the window.
	height = max(height, 3)
	if len(lines) > height {
		start := min(max(cursorLine-height/2, 0), len(lines)-height)
		lines = lines[start : start+height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderOrderHeader(o pos.Order) string {
	table := o.TableName
	if table == "" && o.TableID != "" {
		table = "Table " + string(o.TableID)
	}
	statusStr := lipgloss.NewStyle().Foreground(theme.StatusColor(o.Status)).
		Render(theme.StatusGlyph(o.Status) + " " + string(o.Status))
	header := theme.StyleHeader.Render(fmt.Sprintf("#%s", o.ID))
	if table != "" {
		header += "  " + table
	}
	header += "  " + statusStr
	if !o.CreatedAt.IsZero() {
		header += "  " + theme.StyleDimmed.Render(o.CreatedAt.Local().Format("15:04"))
	}
	if o.Note != "" {
		header += "  " + theme.StyleDimmed.Render(o.Note)
	}
	return header
}

func (m Model) renderItem(prefix string, o pos.Order, it pos.OrderItem) string {
	marked := m.board.IsMarked(o.ID, it.ID)
	name := fmt.Sprintf("%d× %s", it.Quantity, it.Name)
	switch {
	case marked:
		name = theme.StyleDone.Render(name)
	case prefix == "> ":
		name = theme.StyleSelected.Render(name)
	}
	line := prefix + "  " + theme.MarkBox(marked) + " " + name
	if it.Note != "" {
		line += "  " + theme.StyleDimmed.Render(it.Note)
	}
	return line
}
