package terminal

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/lixenwraith/simon-task/engine"
	"github.com/lixenwraith/simon-task/stimulus"
	"github.com/lixenwraith/simon-task/vmath"
)

var ErrClosed = goerr.New("screen closed")

// Config sets frame pacing, key hold emulation and stimulus geometry
type Config struct {
	FrameRate  int
	HoldWindow time.Duration

	StimulusY      float64
	StimulusWidth  float64
	StimulusHeight float64
}

func DefaultConfig() Config {
	return Config{
		FrameRate:      60,
		HoldWindow:     120 * time.Millisecond,
		StimulusY:      0,
		StimulusWidth:  0.5,
		StimulusHeight: 0.5,
	}
}

// Screen implements engine.Display and engine.Input over a tcell screen
type Screen struct {
	screen tcell.Screen
	cfg    Config
	period time.Duration
	ticker *time.Ticker
	clock  engine.Clock
	onQuit func()
	log    *zap.Logger

	mu        sync.Mutex
	width     int
	height    int
	lastPress [2]time.Time
	pressed   [2]bool

	done      chan struct{}
	closeOnce sync.Once
	pumpDone  chan struct{}
}

// Option customizes a Screen
type Option func(*Screen)

// WithClock replaces the clock used for hold-window bookkeeping
func WithClock(c engine.Clock) Option { return func(s *Screen) { s.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(s *Screen) { s.log = l } }

// WithQuit registers the callback for Esc, q and Ctrl-C
func WithQuit(fn func()) Option { return func(s *Screen) { s.onQuit = fn } }

// Open initializes the controlling terminal and attaches a Screen to it
func Open(cfg Config, opts ...Option) (*Screen, error) {
	ts, err := tcell.NewScreen()
	if err != nil {
		return nil, goerr.Wrap(err, "create screen")
	}
	if err := ts.Init(); err != nil {
		return nil, goerr.Wrap(err, "init screen")
	}
	return Attach(ts, cfg, opts...), nil
}

// Attach wraps an initialized tcell screen and starts the event pump
func Attach(ts tcell.Screen, cfg Config, opts ...Option) *Screen {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultConfig().FrameRate
	}
	period := time.Second / time.Duration(cfg.FrameRate)

	s := &Screen{
		screen:   ts,
		cfg:      cfg,
		period:   period,
		ticker:   time.NewTicker(period),
		clock:    engine.NewTimeProvider(),
		onQuit:   func() {},
		log:      zap.NewNop(),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("terminal")

	ts.HideCursor()
	ts.Clear()
	s.width, s.height = ts.Size()

	go s.pump()
	return s
}

// Close stops the frame ticker and restores the terminal
func (s *Screen) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.ticker.Stop()
		s.screen.Fini()
		<-s.pumpDone
	})
}

// Restore resets the terminal after a panic without waiting for the pump
func (s *Screen) Restore() {
	s.screen.Fini()
}

func (s *Screen) FramePeriod() time.Duration { return s.period }

// Flip shows the composed frame, waits for the next tick and clears the back buffer
func (s *Screen) Flip() error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.screen.Show()

	select {
	case <-s.ticker.C:
	case <-s.done:
		return ErrClosed
	}
	s.screen.Clear()
	return nil
}

// --- input ---

func (s *Screen) pump() {
	defer close(s.pumpDone)
	for {
		ev := s.screen.PollEvent()
		if ev == nil {
			return
		}
		s.handle(ev)
	}
}

func (s *Screen) handle(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
			(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
			s.log.Debug("Quit requested.")
			s.onQuit()
			return
		}
		if d, ok := keyDirection(ev); ok {
			s.mu.Lock()
			s.lastPress[d] = s.clock.Now()
			s.pressed[d] = true
			s.mu.Unlock()
		}

	case *tcell.EventResize:
		s.mu.Lock()
		s.width, s.height = ev.Size()
		s.mu.Unlock()
		s.screen.Sync()
	}
}

// keyDirection maps arrows, vi keys and w/s to a direction
func keyDirection(ev *tcell.EventKey) (engine.Direction, bool) {
	switch ev.Key() {
	case tcell.KeyUp:
		return engine.DirUp, true
	case tcell.KeyDown:
		return engine.DirDown, true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'k', 'w', 'K', 'W':
			return engine.DirUp, true
		case 'j', 's', 'J', 'S':
			return engine.DirDown, true
		}
	}
	return 0, false
}

// Held reports whether d was pressed or repeated within the hold window
func (s *Screen) Held(d engine.Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pressed[d] {
		return false
	}
	return s.clock.Now().Sub(s.lastPress[d]) <= s.cfg.HoldWindow
}

// ResetInput forgets every press seen so far; a key still held reports again on its next repeat
func (s *Screen) ResetInput() {
	s.mu.Lock()
	s.pressed = [2]bool{}
	s.lastPress = [2]time.Time{}
	s.mu.Unlock()
}

// --- drawing ---

type handle struct {
	rect  vmath.Rect
	label string
	style tcell.Style
}

func (h *handle) Rect() vmath.Rect { return h.rect }

// Load checks the stimulus asset and places it at the configured stimulus box
// Terminals cannot show images: the box is filled with a color named after the stimulus when tcell knows it
func (s *Screen) Load(st stimulus.Stimulus) (engine.Handle, error) {
	if err := st.CheckAsset(); err != nil {
		return nil, err
	}

	bg := tcell.GetColor(strings.ToLower(st.Name))
	if bg == tcell.ColorDefault {
		bg = tcell.ColorGray
	}
	return &handle{
		rect:  vmath.Rect{CX: 0, CY: s.cfg.StimulusY, W: s.cfg.StimulusWidth, H: s.cfg.StimulusHeight},
		label: st.Name,
		style: tcell.StyleDefault.Background(bg).Foreground(tcell.ColorBlack),
	}, nil
}

func (s *Screen) Draw(h engine.Handle) {
	hd, ok := h.(*handle)
	if !ok {
		s.fill(h.Rect(), ' ', tcell.StyleDefault.Reverse(true))
		return
	}
	s.fill(hd.rect, ' ', hd.style)

	x0, _, x1, _ := s.cells(hd.rect)
	row := s.row(hd.rect.CY)
	label := []rune(hd.label)
	start := x0 + max((x1-x0+1-len(label))/2, 0)
	for i, r := range label {
		if start+i > x1 {
			break
		}
		s.screen.SetContent(start+i, row, r, nil, hd.style)
	}
}

func (s *Screen) DrawAvatar(r vmath.Rect) {
	s.fill(r, '█', tcell.StyleDefault.Foreground(tcell.ColorWhite))
}

func (s *Screen) DrawFixation(f engine.Fixation) {
	style := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	cx, cy := f.Center()

	if f.Shape == engine.FixationPoint {
		s.screen.SetContent(s.col(cx), s.row(cy), '•', nil, style)
		return
	}

	row, col := s.row(cy), s.col(cx)
	for x := s.col(f.X1); x <= s.col(f.X2); x++ {
		s.screen.SetContent(x, row, '─', nil, style)
	}
	for y := s.row(f.Y2); y <= s.row(f.Y1); y++ {
		s.screen.SetContent(col, y, '│', nil, style)
	}
	s.screen.SetContent(col, row, '┼', nil, style)
}

func (s *Screen) size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// col maps normalized x to a column, clamped to the screen
func (s *Screen) col(x float64) int {
	w, _ := s.size()
	c := int(math.Floor((x - vmath.ScreenMin) / (vmath.ScreenMax - vmath.ScreenMin) * float64(w)))
	return min(max(c, 0), w-1)
}

// row maps normalized y to a row; y grows upward, rows grow downward
func (s *Screen) row(y float64) int {
	_, h := s.size()
	r := int(math.Floor((vmath.ScreenMax - y) / (vmath.ScreenMax - vmath.ScreenMin) * float64(h)))
	return min(max(r, 0), h-1)
}

// cells returns the inclusive cell bounds covered by r; off-screen rects return an empty range
func (s *Screen) cells(r vmath.Rect) (x0, y0, x1, y1 int) {
	if r.Right() < vmath.ScreenMin || r.Left() > vmath.ScreenMax ||
		r.Top() < vmath.ScreenMin || r.Bottom() > vmath.ScreenMax {
		return 0, 0, -1, -1
	}
	return s.col(r.Left()), s.row(r.Top()), s.col(r.Right()), s.row(r.Bottom())
}

func (s *Screen) fill(r vmath.Rect, ch rune, style tcell.Style) {
	x0, y0, x1, y1 := s.cells(r)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			s.screen.SetContent(x, y, ch, nil, style)
		}
	}
}
