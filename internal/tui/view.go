package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"rollcall/internal/attendance"
)

// View implements tea.Model.
func (model Model) View() string {
	var body string
	switch {
	case model.facePrompt:
		body = model.viewFacePrompt()
	case model.state.Phase == attendance.Unauthenticated:
		body = model.viewLogin()
	case model.state.Phase == attendance.ListingSessions:
		body = model.viewSessions()
	case model.state.Phase == attendance.EnteringCapture:
		body = model.viewCaptureEntry()
	case model.state.Phase == attendance.Capturing, model.state.Phase == attendance.Uploading:
		body = model.viewInFlight()
	case model.state.Phase == attendance.Result:
		body = model.viewResult()
	case model.state.Phase == attendance.ListingCourses:
		body = model.viewCourses()
	case model.state.Phase == attendance.SessionActive:
		body = model.viewActiveSession()
	}

	sections := []string{model.viewHeader(), body}
	if line := model.viewMessages(); line != "" {
		sections = append(sections, line)
	}
	sections = append(sections, model.viewHelp())
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (model Model) viewHeader() string {
	title := model.styles.header.Render("rollcall")
	if actor := model.state.Actor; actor != nil {
		title += model.styles.faint.Render(fmt.Sprintf("  %s (%s)", actor.DisplayName, actor.Role))
	}
	if model.state.Refreshing {
		title += " " + model.spinner.View()
	}
	return title + "\n"
}

func (model Model) viewMessages() string {
	var lines []string
	if model.state.Notice != "" {
		lines = append(lines, model.styles.notice.Render(model.state.Notice))
	}
	if model.state.Error != "" {
		lines = append(lines, model.styles.failure.Render(model.state.Error))
	}
	if model.lastErr != "" && model.lastErr != model.state.Error {
		lines = append(lines, model.styles.failure.Render(model.lastErr))
	}
	return strings.Join(lines, "\n")
}

func (model Model) viewLogin() string {
	lines := []string{
		model.styles.normal.Render("Sign in"),
		"",
		model.email.View(),
		model.password.View(),
	}
	if model.busy {
		lines = append(lines, "", model.spinner.View()+" signing in...")
	}
	return model.styles.box.Render(strings.Join(lines, "\n"))
}

func (model Model) viewSessions() string {
	if len(model.state.Sessions) == 0 {
		return model.styles.faint.Render("No active sessions right now.")
	}
	var rows []string
	for i, m := range model.state.Sessions {
		mark := "  "
		if m.HasJoined {
			mark = "✓ "
		}
		row := fmt.Sprintf("%s%-28s %-10s %-20s %s",
			mark, m.CourseName, m.CourseCode, m.TeacherName, m.StartedAt.Format("15:04"))
		rows = append(rows, model.renderRow(i, row))
	}
	return strings.Join(rows, "\n")
}

func (model Model) viewFacePrompt() string {
	lines := []string{
		model.styles.normal.Render("Register your face"),
		"",
		model.path.View(),
	}
	return model.styles.box.Render(strings.Join(lines, "\n"))
}

func (model Model) viewCaptureEntry() string {
	title := "Join session"
	if t := model.state.Target; t != nil && t.Session != nil {
		title = fmt.Sprintf("Join %s (%s)", t.Session.CourseName, t.Session.CourseCode)
	}
	lines := []string{model.styles.normal.Render(title), "", model.path.View()}
	return model.styles.box.Render(strings.Join(lines, "\n"))
}

func (model Model) viewInFlight() string {
	text := model.state.CaptureText
	if text == "" {
		text = "Working..."
	}
	return model.spinner.View() + " " + model.styles.normal.Render(text)
}

func (model Model) viewResult() string {
	result := model.state.Result
	if result == nil {
		return ""
	}
	if !result.Success {
		return model.styles.failure.Render("✗ " + result.Message)
	}
	line := model.styles.success.Render("✓ " + result.Message)
	if result.Confidence > 0 {
		line += model.styles.faint.Render(fmt.Sprintf("  (match %.1f%%)", result.Confidence))
	}
	return line
}

func (model Model) viewCourses() string {
	if len(model.state.Courses) == 0 {
		return model.styles.faint.Render("No courses.")
	}
	var rows []string
	for i, c := range model.state.Courses {
		row := fmt.Sprintf("%-28s %-10s %3d students", c.Name, c.Code, c.EnrolledCount)
		rows = append(rows, model.renderRow(i, row))
	}
	return strings.Join(rows, "\n")
}

func (model Model) viewActiveSession() string {
	s := model.state.Active
	if s == nil {
		return ""
	}
	lines := []string{
		model.styles.normal.Render(fmt.Sprintf("%s: attendance open since %s", s.CourseName, s.StartedAt.Format("15:04"))),
		model.styles.faint.Render(fmt.Sprintf("%d joined", s.ParticipantCount)),
		"",
	}
	for _, p := range s.Participants {
		verified := " "
		if p.FaceVerified {
			verified = "✓"
		}
		lines = append(lines, fmt.Sprintf("%s %-30s %s", verified, p.Name, p.JoinedAt))
	}
	return model.styles.box.Render(strings.Join(lines, "\n"))
}

func (model Model) renderRow(index int, row string) string {
	if index == model.cursor {
		return model.styles.selected.Render("> " + row)
	}
	return model.styles.normal.Render("  " + row)
}

func (model Model) viewHelp() string {
	var bindings []key.Binding
	k := model.keys
	switch {
	case model.facePrompt, model.state.Phase == attendance.EnteringCapture:
		bindings = []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("Enter", "capture")),
			k.Back,
		}
	case model.state.Phase == attendance.Unauthenticated:
		bindings = []key.Binding{k.NextField, k.Select, k.ForceQuit}
	case model.state.Phase == attendance.ListingSessions:
		bindings = []key.Binding{k.Up, k.Down, k.Select, k.RegisterFace, k.Refresh, k.Logout, k.Quit}
	case model.state.Phase == attendance.Capturing, model.state.Phase == attendance.Uploading:
		bindings = []key.Binding{k.Back}
	case model.state.Phase == attendance.Result:
		if model.state.Result != nil && !model.state.Result.Success {
			bindings = append(bindings, k.Retry)
		}
		bindings = append(bindings, k.Back, k.Quit)
	case model.state.Phase == attendance.ListingCourses:
		bindings = []key.Binding{k.Up, k.Down,
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("Enter", "start attendance")),
			k.Refresh, k.Logout, k.Quit}
	case model.state.Phase == attendance.SessionActive:
		bindings = []key.Binding{k.EndSession, k.Refresh, k.Logout, k.Quit}
	}
	var parts []string
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return "\n" + model.styles.help.Render(strings.Join(parts, " · "))
}
