package tui

import "github.com/charmbracelet/lipgloss"

// Theme is the color palette. Colors are ANSI 256 codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	Success lipgloss.Color
	Failure lipgloss.Color
	Notice  lipgloss.Color
}

// DefaultTheme suits a dark terminal.
var DefaultTheme = Theme{
	NormalText:         lipgloss.Color("252"),
	FaintText:          lipgloss.Color("243"),
	SelectedBackground: lipgloss.Color("237"),
	SelectedForeground: lipgloss.Color("255"),
	HeaderForeground:   lipgloss.Color("75"),
	BorderColor:        lipgloss.Color("240"),
	HelpText:           lipgloss.Color("241"),
	Success:            lipgloss.Color("78"),
	Failure:            lipgloss.Color("203"),
	Notice:             lipgloss.Color("221"),
}

type styles struct {
	header   lipgloss.Style
	normal   lipgloss.Style
	faint    lipgloss.Style
	selected lipgloss.Style
	help     lipgloss.Style
	success  lipgloss.Style
	failure  lipgloss.Style
	notice   lipgloss.Style
	box      lipgloss.Style
}

func newStyles(theme Theme) styles {
	return styles{
		header:   lipgloss.NewStyle().Bold(true).Foreground(theme.HeaderForeground),
		normal:   lipgloss.NewStyle().Foreground(theme.NormalText),
		faint:    lipgloss.NewStyle().Foreground(theme.FaintText),
		selected: lipgloss.NewStyle().Background(theme.SelectedBackground).Foreground(theme.SelectedForeground).Bold(true),
		help:     lipgloss.NewStyle().Foreground(theme.HelpText),
		success:  lipgloss.NewStyle().Bold(true).Foreground(theme.Success),
		failure:  lipgloss.NewStyle().Bold(true).Foreground(theme.Failure),
		notice:   lipgloss.NewStyle().Foreground(theme.Notice),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.BorderColor).
			Padding(0, 1),
	}
}
