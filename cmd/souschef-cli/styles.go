package main

import "github.com/charmbracelet/lipgloss"

var (
	colorGreen  = lipgloss.Color("#5FD75F")
	colorYellow = lipgloss.Color("#FFD75F")
	colorRed    = lipgloss.Color("#FF5F5F")
	colorCyan   = lipgloss.Color("#5FD7FF")
	colorGray   = lipgloss.Color("#8A8A8A")
)

var (
	connectedStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	offlineStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	agentSpeakerStyle = lipgloss.NewStyle().
				Foreground(colorCyan).
				Bold(true)

	userSpeakerStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true)

	partialStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Italic(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	doneTimerStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)
)
