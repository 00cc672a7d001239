package main

import (
	"fmt"
	"strings"

	"souschef/internal/domain"
)

// section is one independently refreshed part of the terminal output.
type section struct {
	name string
	text string
}

func renderSections(view domain.SessionView) []section {
	return []section{
		{name: "status", text: renderStatus(view)},
		{name: "line", text: renderLine(view.CurrentLine)},
		{name: "recipe", text: renderRecipe(view.Cooking)},
		{name: "timers", text: renderTimers(view.Timers)},
		{name: "shopping", text: renderShopping(view.ShoppingList)},
	}
}

func renderStatus(view domain.SessionView) string {
	var parts []string
	switch view.Connection {
	case domain.ConnectionStateConnected:
		parts = append(parts, connectedStyle.Render("● connected"))
	case domain.ConnectionStateConnecting:
		parts = append(parts, pendingStyle.Render("◌ connecting"))
	default:
		parts = append(parts, offlineStyle.Render("○ disconnected"))
	}
	if view.Agent != "" {
		parts = append(parts, labelStyle.Render("chef")+" "+string(view.Agent))
	}
	if view.Muted {
		parts = append(parts, errorStyle.Render("muted"))
	}
	switch view.Upload.State {
	case domain.UploadStateUploading, domain.UploadStateProcessing, domain.UploadStateClearing:
		parts = append(parts, pendingStyle.Render("cookbook "+string(view.Upload.State)))
	case domain.UploadStateSucceeded:
		parts = append(parts, connectedStyle.Render("recipe added: "+view.Upload.LastFilename))
	}
	if view.Upload.Error != "" {
		parts = append(parts, errorStyle.Render("upload failed: "+view.Upload.Error))
	}
	if view.Upload.FileCount > 0 {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("%d recipe file(s)", view.Upload.FileCount)))
	}
	return strings.Join(parts, "  ")
}

func renderLine(entry *domain.TranscriptEntry) string {
	if entry == nil || strings.TrimSpace(entry.Text) == "" {
		return ""
	}
	speaker := userSpeakerStyle.Render("you")
	if entry.Speaker == domain.SpeakerAgent {
		speaker = agentSpeakerStyle.Render("chef")
	}
	text := entry.Text
	if !entry.IsFinal {
		text = partialStyle.Render(text + "…")
	}
	return speaker + ": " + text
}

func renderRecipe(cooking domain.CookingView) string {
	switch cooking.Phase {
	case domain.CookingPhaseGenerating:
		return pendingStyle.Render("preparing a recipe plan…")
	case domain.CookingPhaseNoPlan:
		return ""
	}
	plan := cooking.Plan
	if plan == nil {
		return ""
	}
	title := plan.Title
	if title == "" {
		title = "Recipe"
	}
	if cooking.Phase == domain.CookingPhaseReady {
		summary := fmt.Sprintf("%d steps", len(plan.Steps))
		if minutes := plan.TotalMinutes(); minutes > 0 {
			summary += fmt.Sprintf(", about %d min", minutes)
		}
		return labelStyle.Render(title) + " " + dimStyle.Render("("+summary+")")
	}
	step, ok := plan.CurrentStep()
	if !ok {
		return labelStyle.Render(title)
	}
	line := fmt.Sprintf("%s %s %s", labelStyle.Render(title),
		dimStyle.Render(fmt.Sprintf("step %d/%d", plan.CurrentStepIndex+1, len(plan.Steps))),
		step.Instruction)
	if step.Duration != "" {
		line += " " + dimStyle.Render("("+step.Duration+")")
	}
	return line
}

func renderTimers(timers []domain.Timer) string {
	if len(timers) == 0 {
		return ""
	}
	parts := make([]string, 0, len(timers))
	for _, timer := range timers {
		label := timer.Label
		if label == "" {
			label = "timer"
		}
		if timer.Done() {
			parts = append(parts, doneTimerStyle.Render(label+" done!"))
			continue
		}
		parts = append(parts, fmt.Sprintf("⏲ %s %s", label, clock(timer.RemainingSeconds)))
	}
	return strings.Join(parts, "  ")
}

func renderShopping(items []domain.ShoppingItem) string {
	if len(items) == 0 {
		return ""
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		name := item.Name
		if item.Quantity > 1 {
			name = fmt.Sprintf("%s ×%d", name, item.Quantity)
		}
		names = append(names, name)
	}
	return labelStyle.Render("shopping") + " " + strings.Join(names, ", ")
}

func clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
