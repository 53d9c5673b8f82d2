// Package tui is the terminal front end: a setup form, a text board and a
// move prompt driving one session controller.
package tui

import (
	"errors"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/park285/chessplay/internal/adapter/chesspresenter"
	"github.com/park285/chessplay/internal/chess"
	"github.com/park285/chessplay/internal/config"
	"github.com/park285/chessplay/internal/rules"
	"github.com/park285/chessplay/internal/session"
	"github.com/park285/chessplay/pkg/chessdto"
)

type Options struct {
	Requester session.Requester
	// Settings are the remembered choices; zero values fall back to defaults.
	Settings config.PlayerSettings
	// SettingsPath is where choices are saved on every start. Empty disables
	// saving.
	SettingsPath   string
	RequestTimeout time.Duration
	Formatter      *chesspresenter.Formatter
	Logger         *zap.Logger
}

type App struct {
	app          *tview.Application
	ctrl         *session.Controller
	format       *chesspresenter.Formatter
	logger       *zap.Logger
	settingsPath string

	// staged holds the form's choices until the next start. Touched only on
	// the UI goroutine, like every widget below.
	staged   session.Settings
	syncing  bool
	canSetup bool
	// rendered is the newest revision on screen; queued updates may arrive
	// out of order.
	rendered uint64

	root       *tview.Flex
	setup      *tview.Form
	difficulty *tview.DropDown
	strength   *tview.InputField
	input      *tview.InputField
	board      *tview.TextView
	captured   *tview.TextView
	moves      *tview.TextView
	status     *tview.TextView
}

func New(opts Options) (*App, error) {
	if opts.Requester == nil {
		return nil, errors.New("tui: requester is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	format := opts.Formatter
	if format == nil {
		format = chesspresenter.NewFormatter(nil)
	}

	a := &App{
		app:          tview.NewApplication(),
		format:       format,
		logger:       logger,
		settingsPath: opts.SettingsPath,
		staged:       fromStored(opts.Settings),
	}

	presenter := chesspresenter.NewPresenter(format, func(state chessdto.SessionState) error {
		// Updates are emitted from widget callbacks too, which already run on
		// the event loop; queueing from there directly would never return.
		go a.app.QueueUpdateDraw(func() { a.render(state) })
		return nil
	}, logger)

	ctrl, err := session.New(session.Config{
		Rules:          rules.Standard{},
		Requester:      opts.Requester,
		Settings:       a.staged,
		RequestTimeout: opts.RequestTimeout,
		Logger:         logger.Named("session"),
		OnUpdate:       presenter.OnUpdate,
	})
	if err != nil {
		return nil, err
	}
	a.ctrl = ctrl

	a.build()
	a.render(chesspresenter.ToDTOState(ctrl.Snapshot(), format))
	return a, nil
}

func (a *App) build() {
	a.syncing = true
	defer func() { a.syncing = false }()

	form := tview.NewForm()
	form.AddDropDown("Your Side", sideOptions, sideIndex(a.staged.HumanSide), func(_ string, index int) {
		if a.syncing {
			return
		}
		a.staged.HumanSide = sideAt(index)
		if a.canSetup {
			a.apply(a.ctrl.ChangeSide(a.staged.HumanSide))
		}
	})
	form.AddDropDown("Difficulty", difficultyOptions(), difficultyIndex(a.staged.Difficulty), func(_ string, index int) {
		if a.syncing {
			return
		}
		a.selectDifficulty(index)
	})
	form.AddInputField("Strength", strconv.Itoa(a.staged.Strength), 6, digitsOnly, func(text string) {
		if a.syncing {
			return
		}
		a.typeStrength(text)
	})
	form.AddButton("Start", a.restart)
	form.AddButton("Retry", a.retry)
	form.AddButton("Quit", a.app.Stop)

	form.SetBorder(true)
	form.SetTitle(" New Game ")
	form.SetTitleAlign(tview.AlignCenter)
	form.SetButtonBackgroundColor(tcell.ColorDarkCyan)
	form.SetButtonTextColor(tcell.ColorWhite)

	a.setup = form
	a.difficulty = form.GetFormItemByLabel("Difficulty").(*tview.DropDown)
	a.strength = form.GetFormItemByLabel("Strength").(*tview.InputField)

	a.board = tview.NewTextView().SetDynamicColors(false)
	a.board.SetBorder(true).SetTitle(" Board ")

	a.captured = tview.NewTextView().SetTextAlign(tview.AlignCenter)
	a.captured.SetTextColor(tcell.ColorGray)

	a.input = tview.NewInputField().
		SetLabel("Move: ").
		SetFieldWidth(8).
		SetPlaceholder("e2e4")
	a.input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			a.submit(a.input.GetText())
		case tcell.KeyEscape:
			a.app.SetFocus(a.setup)
		}
	})
	form.SetCancelFunc(func() { a.app.SetFocus(a.input) })

	a.moves = tview.NewTextView().SetScrollable(true)
	a.moves.SetBorder(true).SetTitle(" Moves ")

	a.status = tview.NewTextView().SetDynamicColors(true)
	a.status.SetBorder(true).SetTitle(" Status ")

	help := tview.NewTextView().
		SetText("Enter: play move  |  Esc: switch between move prompt and setup  |  Ctrl+C: quit").
		SetTextAlign(tview.AlignCenter)
	help.SetTextColor(tcell.ColorGray)

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.board, 12, 0, false).
		AddItem(a.captured, 1, 0, false).
		AddItem(a.input, 1, 0, true)
	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(form, 11, 0, false).
		AddItem(a.moves, 0, 1, false)
	body := tview.NewFlex().
		AddItem(left, 34, 0, true).
		AddItem(right, 0, 1, false)

	a.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.status, 3, 0, false).
		AddItem(help, 1, 0, false)
}

// Run blocks until the user quits, then stops the controller.
func (a *App) Run() error {
	defer a.ctrl.Close()
	return a.app.SetRoot(a.root, true).SetFocus(a.input).Run()
}

// selectDifficulty handles the difficulty dropdown. Picking the custom entry
// keeps the current strength.
func (a *App) selectDifficulty(index int) {
	d, ok := difficultyAt(index)
	if !ok {
		a.staged.Difficulty = ""
		return
	}
	a.staged.Difficulty = d
	a.staged.Strength = d.Rating()
	a.syncing = true
	a.strength.SetText(strconv.Itoa(a.staged.Strength))
	a.syncing = false
	if a.canSetup {
		a.apply(a.ctrl.ChangeDifficulty(d))
	}
}

func (a *App) typeStrength(text string) {
	n, err := parseStrength(text)
	if err != nil {
		return
	}
	a.staged.Strength = n
	a.staged.Difficulty, _ = chess.DifficultyFor(n)
	a.syncing = true
	a.difficulty.SetCurrentOption(difficultyIndex(a.staged.Difficulty))
	a.syncing = false
	if a.canSetup {
		a.apply(a.ctrl.ChangeStrength(n))
	}
}

func (a *App) apply(err error) {
	if err != nil {
		a.flash(a.format.Rejected(err, ""))
	}
}

// restart starts the first game, or replaces the current one with the
// choices made since, and remembers them.
func (a *App) restart() {
	var err error
	if a.canSetup {
		err = a.ctrl.Start()
	} else {
		err = a.ctrl.RestartWith(a.staged)
	}
	if err != nil {
		a.flash(a.format.Rejected(err, ""))
		return
	}
	a.input.SetText("")
	a.app.SetFocus(a.input)
	if a.settingsPath == "" {
		return
	}
	if err := config.SaveSettings(a.settingsPath, toStored(a.staged)); err != nil {
		a.logger.Warn("save settings failed", zap.String("path", a.settingsPath), zap.Error(err))
	}
}

func (a *App) retry() {
	if err := a.ctrl.RetryOpponentMove(); err != nil {
		a.flash(a.format.Rejected(err, ""))
	}
}

func (a *App) submit(text string) {
	mv, err := parseMoveInput(text)
	if err == nil {
		err = a.ctrl.SubmitHumanMove(mv.From, mv.To, mv.Promotion)
	}
	if err != nil {
		a.logger.Debug("move rejected", zap.String("input", text), zap.Error(err))
		a.flash(a.format.Rejected(err, text))
		return
	}
	a.input.SetText("")
}

// flash shows a rejection until the next state update replaces it.
func (a *App) flash(msg string) {
	a.status.SetText("[red]" + tview.Escape(msg))
}

func (a *App) render(state chessdto.SessionState) {
	if state.Revision < a.rendered {
		return
	}
	a.rendered = state.Revision
	v := viewOf(state)
	a.board.SetText(v.board)
	a.captured.SetText(v.captured)
	a.moves.SetText(v.moves)
	a.moves.ScrollToEnd()
	a.status.SetText(tview.Escape(v.status))
	a.setup.GetButton(0).SetLabel(v.startLabel)
	a.canSetup = state.CanSetup
}

type view struct {
	board      string
	captured   string
	moves      string
	status     string
	startLabel string
}

// viewOf turns a state frame into widget text.
func viewOf(state chessdto.SessionState) view {
	fen := state.FEN
	if fen == "" {
		fen = rules.Standard{}.Start().FEN()
	}
	bottom, err := rules.ParseSide(state.Settings.HumanSide)
	if err != nil {
		bottom = rules.White
	}
	v := view{
		board:      chesspresenter.Board(fen, bottom),
		moves:      chesspresenter.MoveList(state.MovesSAN),
		status:     state.Status,
		startLabel: "Restart",
	}
	if state.CanSetup {
		v.startLabel = "Start"
	}
	if len(state.MovesSAN) > 0 {
		v.captured = chesspresenter.Captured(fen)
	}
	return v
}
