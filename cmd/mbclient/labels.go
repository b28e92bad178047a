package main

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/56kcloud/mb-client/internal/tracking"
)

var titleCaser = cases.Title(language.English)

// stateLabel renders a worker state such as "in progress" as "In Progress".
func stateLabel(state string) string {
	state = strings.TrimSpace(strings.ReplaceAll(state, "_", " "))
	if state == "" {
		return "Unknown"
	}
	return titleCaser.String(state)
}

func outcomeLabel(outcome tracking.Outcome) string {
	return stateLabel(outcome.String())
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
