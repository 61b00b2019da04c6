// Package tui is the terminal front end for the attendance client. It
// renders attendance.State snapshots and turns key presses into
// controller calls.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"rollcall/internal/apperr"
	"rollcall/internal/attendance"
	"rollcall/internal/capture"
)

// Driver is the part of attendance.Controller the TUI uses.
type Driver interface {
	State() attendance.State
	Subscribe(fn func(attendance.State)) func()
	Login(ctx context.Context, email, secret string) error
	Logout(ctx context.Context)
	SelectSession(sessionID int64) attendance.State
	Join(ctx context.Context) error
	RegisterFace(ctx context.Context) error
	Retry(ctx context.Context) error
	Back() attendance.State
	StartAttendance(ctx context.Context, courseID int64) error
	EndAttendance(ctx context.Context) error
	Refresh()
}

// ImageSource receives the image path typed on the capture screen.
type ImageSource interface {
	SetPath(path string)
}

type stateChangedMsg struct{}

type opDoneMsg struct {
	op  string
	err error
}

const (
	fieldEmail = iota
	fieldPassword
)

// Model implements tea.Model.
type Model struct {
	ctx    context.Context
	driver Driver
	images ImageSource
	keys   KeyMap
	styles styles

	state attendance.State

	email    textinput.Model
	password textinput.Model
	path     textinput.Model
	field    int
	spinner  spinner.Model

	cursor     int
	facePrompt bool
	busy       bool
	lastErr    string

	width  int
	height int

	changes     chan struct{}
	unsubscribe func()
}

// NewModel subscribes to driver and returns the initial model. Call Close
// once the program has exited.
func NewModel(ctx context.Context, driver Driver, images ImageSource) Model {
	email := textinput.New()
	email.Placeholder = "email"
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	path := textinput.New()
	path.Placeholder = "path to a photo (jpg or png)"

	spin := spinner.New(spinner.WithSpinner(spinner.Dot))

	changes := make(chan struct{}, 1)
	unsubscribe := driver.Subscribe(func(attendance.State) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	return Model{
		ctx:         ctx,
		driver:      driver,
		images:      images,
		keys:        DefaultKeyMap,
		styles:      newStyles(DefaultTheme),
		state:       driver.State(),
		email:       email,
		password:    password,
		path:        path,
		spinner:     spin,
		changes:     changes,
		unsubscribe: unsubscribe,
	}
}

// Close stops listening for state changes.
func (model Model) Close() {
	if model.unsubscribe != nil {
		model.unsubscribe()
	}
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, model.spinner.Tick, listenForChange(model.changes))
}

// listenForChange blocks until the controller reports a new state.
func listenForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return stateChangedMsg{}
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case stateChangedMsg:
		model.syncState()
		return model, listenForChange(model.changes)

	case opDoneMsg:
		model.busy = false
		model.lastErr = ""
		if message.err != nil && !errors.Is(message.err, capture.ErrCancelled) {
			model.lastErr = apperr.UserMessage(message.err)
		}
		model.syncState()
		return model, nil

	case spinner.TickMsg:
		var command tea.Cmd
		model.spinner, command = model.spinner.Update(message)
		return model, command

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		return model, nil

	case tea.KeyMsg:
		if key.Matches(message, model.keys.ForceQuit) {
			return model, tea.Quit
		}
		return model.handleKey(message)
	}

	return model.updateInputs(message)
}

func (model *Model) syncState() {
	previous := model.state.Phase
	model.state = model.driver.State()
	if model.state.Phase != previous {
		model.cursor = 0
		if model.state.Phase == attendance.Unauthenticated {
			model.password.SetValue("")
			model.focusField(fieldEmail)
		}
		if model.state.Phase == attendance.EnteringCapture {
			model.path.Focus()
		}
	}
	if n := model.listLen(); model.cursor >= n {
		model.cursor = max(0, n-1)
	}
}

func (model Model) listLen() int {
	switch model.state.Phase {
	case attendance.ListingSessions:
		return len(model.state.Sessions)
	case attendance.ListingCourses:
		return len(model.state.Courses)
	}
	return 0
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.facePrompt {
		return model.handleFacePromptKeys(message)
	}
	switch model.state.Phase {
	case attendance.Unauthenticated:
		return model.handleLoginKeys(message)
	case attendance.ListingSessions:
		return model.handleSessionListKeys(message)
	case attendance.EnteringCapture:
		return model.handleCaptureKeys(message)
	case attendance.Capturing, attendance.Uploading:
		if key.Matches(message, model.keys.Back) {
			model.state = model.driver.Back()
		}
		return model, nil
	case attendance.Result:
		return model.handleResultKeys(message)
	case attendance.ListingCourses:
		return model.handleCourseListKeys(message)
	case attendance.SessionActive:
		return model.handleActiveSessionKeys(message)
	}
	return model, nil
}

func (model *Model) focusField(field int) tea.Cmd {
	model.field = field
	if field == fieldEmail {
		model.password.Blur()
		return model.email.Focus()
	}
	model.email.Blur()
	return model.password.Focus()
}

func (model Model) handleLoginKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case message.Type == tea.KeyEnter:
		if model.field == fieldEmail {
			return model, model.focusField(fieldPassword)
		}
		if model.busy {
			return model, nil
		}
		model.busy = true
		model.lastErr = ""
		return model, model.run("login", func(ctx context.Context) error {
			return model.driver.Login(ctx, strings.TrimSpace(model.email.Value()), model.password.Value())
		})
	case message.Type == tea.KeyTab || message.Type == tea.KeyShiftTab ||
		message.Type == tea.KeyUp || message.Type == tea.KeyDown:
		return model, model.focusField(1 - model.field)
	}
	return model.updateInputs(message)
}

func (model Model) handleSessionListKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit
	case key.Matches(message, model.keys.Up):
		model.moveCursor(-1)
	case key.Matches(message, model.keys.Down):
		model.moveCursor(1)
	case key.Matches(message, model.keys.Select):
		if len(model.state.Sessions) == 0 {
			return model, nil
		}
		model.lastErr = ""
		model.state = model.driver.SelectSession(model.state.Sessions[model.cursor].SessionID)
		if model.state.Phase == attendance.EnteringCapture {
			return model, model.path.Focus()
		}
	case key.Matches(message, model.keys.RegisterFace):
		model.facePrompt = true
		model.lastErr = ""
		return model, model.path.Focus()
	case key.Matches(message, model.keys.Refresh):
		model.driver.Refresh()
	case key.Matches(message, model.keys.Logout):
		return model, model.logout()
	}
	return model, nil
}

func (model Model) handleFacePromptKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Back):
		model.facePrompt = false
		model.path.Blur()
		return model, nil
	case message.Type == tea.KeyEnter:
		if model.busy {
			return model, nil
		}
		model.facePrompt = false
		model.busy = true
		model.images.SetPath(strings.TrimSpace(model.path.Value()))
		return model, model.run("register face", model.driver.RegisterFace)
	}
	return model.updateInputs(message)
}

func (model Model) handleCaptureKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Back):
		model.path.Blur()
		model.state = model.driver.Back()
		return model, nil
	case message.Type == tea.KeyEnter:
		if model.busy {
			return model, nil
		}
		model.busy = true
		model.lastErr = ""
		model.images.SetPath(strings.TrimSpace(model.path.Value()))
		return model, model.run("join", model.driver.Join)
	}
	return model.updateInputs(message)
}

func (model Model) handleResultKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	failed := model.state.Result != nil && !model.state.Result.Success
	switch {
	case key.Matches(message, model.keys.Retry) && failed:
		if model.busy {
			return model, nil
		}
		model.busy = true
		model.lastErr = ""
		return model, model.run("retry", model.driver.Retry)
	case key.Matches(message, model.keys.Back), key.Matches(message, model.keys.Select):
		model.state = model.driver.Back()
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit
	}
	return model, nil
}

func (model Model) handleCourseListKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit
	case key.Matches(message, model.keys.Up):
		model.moveCursor(-1)
	case key.Matches(message, model.keys.Down):
		model.moveCursor(1)
	case key.Matches(message, model.keys.Select):
		if len(model.state.Courses) == 0 || model.busy {
			return model, nil
		}
		courseID := model.state.Courses[model.cursor].ID
		model.busy = true
		model.lastErr = ""
		return model, model.run("start attendance", func(ctx context.Context) error {
			return model.driver.StartAttendance(ctx, courseID)
		})
	case key.Matches(message, model.keys.Refresh):
		model.driver.Refresh()
	case key.Matches(message, model.keys.Logout):
		return model, model.logout()
	}
	return model, nil
}

func (model Model) handleActiveSessionKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit
	case key.Matches(message, model.keys.EndSession):
		if model.busy {
			return model, nil
		}
		model.busy = true
		model.lastErr = ""
		return model, model.run("end attendance", model.driver.EndAttendance)
	case key.Matches(message, model.keys.Refresh):
		model.driver.Refresh()
	case key.Matches(message, model.keys.Logout):
		return model, model.logout()
	}
	return model, nil
}

func (model *Model) moveCursor(delta int) {
	n := model.listLen()
	if n == 0 {
		return
	}
	model.cursor = min(max(model.cursor+delta, 0), n-1)
}

func (model Model) logout() tea.Cmd {
	return model.run("logout", func(ctx context.Context) error {
		model.driver.Logout(ctx)
		return nil
	})
}

// run executes a blocking controller call off the UI goroutine.
func (model Model) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := model.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (model Model) updateInputs(message tea.Msg) (tea.Model, tea.Cmd) {
	var command tea.Cmd
	switch {
	case model.facePrompt || model.state.Phase == attendance.EnteringCapture:
		model.path, command = model.path.Update(message)
	case model.state.Phase == attendance.Unauthenticated:
		if model.field == fieldEmail {
			model.email, command = model.email.Update(message)
		} else {
			model.password, command = model.password.Update(message)
		}
	}
	return model, command
}
