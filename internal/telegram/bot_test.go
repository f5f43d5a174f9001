package telegram

import (
	"strings"
	"testing"

	"mealmate/internal/api"
	"mealmate/internal/grocery"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCmd  string
		wantArgs string
	}{
		{name: "BareCommand", input: "/list", wantCmd: "list", wantArgs: ""},
		{name: "CommandWithArgs", input: "/check whole milk", wantCmd: "check", wantArgs: "whole milk"},
		{name: "BotMention", input: "/list@mealmate_bot", wantCmd: "list", wantArgs: ""},
		{name: "UppercaseCommand", input: "/Check milk", wantCmd: "check", wantArgs: "milk"},
		{name: "PlainText", input: "hello there", wantCmd: "", wantArgs: "hello there"},
		{name: "TrailingSpaces", input: "/add  eggs  ", wantCmd: "add", wantArgs: "eggs"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd, args := splitCommand(tc.input)
			if cmd != tc.wantCmd {
				t.Errorf("Expected command %q, got %q", tc.wantCmd, cmd)
			}
			if args != tc.wantArgs {
				t.Errorf("Expected args %q, got %q", tc.wantArgs, args)
			}
		})
	}
}

func TestParseCustomItem(t *testing.T) {
	t.Run("NameOnly", func(t *testing.T) {
		item, ok := parseCustomItem("olive oil")
		if !ok {
			t.Fatal("Expected item to parse")
		}
		if item.Name != "olive oil" || item.Category != "" {
			t.Errorf("Expected {olive oil, \"\"}, got %+v", item)
		}
	})

	t.Run("NameAndCategory", func(t *testing.T) {
		item, ok := parseCustomItem("olive oil, pantry")
		if !ok {
			t.Fatal("Expected item to parse")
		}
		if item.Name != "olive oil" || item.Category != "pantry" {
			t.Errorf("Expected {olive oil, pantry}, got %+v", item)
		}
	})

	t.Run("EmptyInput", func(t *testing.T) {
		if _, ok := parseCustomItem("   "); ok {
			t.Error("Expected empty input to be rejected")
		}
	})

	t.Run("CategoryOnly", func(t *testing.T) {
		if _, ok := parseCustomItem(", pantry"); ok {
			t.Error("Expected missing name to be rejected")
		}
	})
}

func TestFormatListMarkdown(t *testing.T) {
	state := grocery.ListState{
		SelectedEntries: []string{"mon_dinner", "tue_lunch"},
		EntryServings:   map[string]int{"mon_dinner": 4},
		CheckedItems:    []string{"flour", "milk"},
		CustomItems: []grocery.CustomItem{
			{Name: "milk", Category: "dairy"},
			{Name: "candles"},
		},
	}

	out := formatListMarkdown(state)

	if !strings.Contains(out, "✅ milk _(dairy)_") {
		t.Errorf("Expected checked custom item with category, got:\n%s", out)
	}
	if !strings.Contains(out, "⬜ candles") {
		t.Errorf("Expected unchecked custom item, got:\n%s", out)
	}
	if !strings.Contains(out, "✅ flour") {
		t.Errorf("Expected checked recipe ingredient, got:\n%s", out)
	}
	if !strings.Contains(out, "• mon_dinner ×4") {
		t.Errorf("Expected entry with servings, got:\n%s", out)
	}
	if !strings.Contains(out, "• tue_lunch\n") {
		t.Errorf("Expected entry without servings, got:\n%s", out)
	}
}

func TestFormatListMarkdownEmpty(t *testing.T) {
	out := formatListMarkdown(grocery.ListState{})
	if !strings.Contains(out, "Nothing on the list yet") {
		t.Errorf("Expected empty list placeholder, got:\n%s", out)
	}
}

func TestFormatPlanMarkdown(t *testing.T) {
	plan := &api.MealPlan{
		WeekStart: "2026-03-02",
		Meals: []api.PlannedMeal{
			{EntryKey: "mon_dinner", Day: "Monday", Slot: "dinner", RecipeTitle: "Lentil Soup", Servings: 4},
		},
	}

	out := formatPlanMarkdown(plan)

	if !strings.Contains(out, "week of 2026-03-02") {
		t.Errorf("Expected week header, got:\n%s", out)
	}
	if !strings.Contains(out, "*Monday dinner*: Lentil Soup (4 servings)") {
		t.Errorf("Expected meal line, got:\n%s", out)
	}
}

func TestFormatPlanMarkdownEmpty(t *testing.T) {
	out := formatPlanMarkdown(&api.MealPlan{WeekStart: "2026-03-02"})
	if !strings.Contains(out, "No meals planned yet") {
		t.Errorf("Expected empty plan placeholder, got:\n%s", out)
	}
}
