package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"mealmate/internal/app"
	"mealmate/internal/config"
	"mealmate/internal/grocery"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	state := application.Start(ctx)
	defer application.Shutdown(ctx)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "status":
		runStatus(application, state)
	case "list":
		printList(application.Grocery().Snapshot())
	case "check":
		requireArg("check", "<item>")
		application.Grocery().SetChecked(appendIfMissing(application.Grocery().Snapshot().CheckedItems, os.Args[2]))
		fmt.Printf("Checked %q.\n", os.Args[2])
	case "uncheck":
		requireArg("uncheck", "<item>")
		application.Grocery().SetChecked(removeItem(application.Grocery().Snapshot().CheckedItems, os.Args[2]))
		fmt.Printf("Unchecked %q.\n", os.Args[2])
	case "toggle":
		requireArg("toggle", "<item>")
		application.Grocery().ToggleChecked(os.Args[2])
		fmt.Printf("Toggled %q.\n", os.Args[2])
	case "clear":
		application.Grocery().ClearChecked()
		fmt.Println("Cleared all check marks.")
	case "add":
		runAdd(application)
	case "selections":
		runSelections(application)
	case "reset":
		application.Grocery().ResetAll()
		fmt.Println("Grocery list reset for the whole household.")
	case "refresh":
		state := application.RefreshState(ctx)
		fmt.Printf("Reloaded shared state (%s).\n", state)
	case "push":
		if err := application.ForcePush(ctx); err != nil {
			log.Fatalf("Push failed: %v", err)
		}
		fmt.Println("Pushed full local state to the server.")
	case "recipes":
		runRecipes(ctx, application)
	case "plan":
		runPlan(ctx, application)
	case "journal":
		runJournal(ctx, application)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runStatus(application *app.App, state grocery.LoadState) {
	snapshot := application.Grocery().Snapshot()
	fmt.Printf("Device:   %s\n", application.DeviceName())
	fmt.Printf("State:    %s\n", state)
	fmt.Printf("Selected: %d entries\n", len(snapshot.SelectedEntries))
	fmt.Printf("Checked:  %d items\n", len(snapshot.CheckedItems))
	fmt.Printf("Custom:   %d items\n", len(snapshot.CustomItems))
}

func runAdd(application *app.App) {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	category := addCmd.String("category", "", "Category for the new item")
	addCmd.Parse(os.Args[2:])

	name := strings.TrimSpace(strings.Join(addCmd.Args(), " "))
	if name == "" {
		fmt.Println("Usage: mealmate add [-category <name>] <item>")
		os.Exit(1)
	}

	application.Grocery().AddCustomItem(grocery.CustomItem{Name: name, Category: *category})
	fmt.Printf("Added %q.\n", name)
}

func runSelections(application *app.App) {
	selCmd := flag.NewFlagSet("selections", flag.ExitOnError)
	selCmd.Parse(os.Args[2:])

	if selCmd.NArg() == 0 {
		fmt.Println("Usage: mealmate selections <entry[=servings]> ...")
		os.Exit(1)
	}

	entries := make([]string, 0, selCmd.NArg())
	servings := make(map[string]int)
	for _, arg := range selCmd.Args() {
		entry, count, found := strings.Cut(arg, "=")
		entries = append(entries, entry)
		if found {
			n, err := strconv.Atoi(count)
			if err != nil {
				log.Fatalf("Invalid servings count %q for %s", count, entry)
			}
			servings[entry] = n
		}
	}

	application.Grocery().SaveSelections(entries, servings)
	fmt.Printf("Saved %d selected entries.\n", len(entries))
}

func runRecipes(ctx context.Context, application *app.App) {
	recipes, err := application.Recipes(ctx)
	if err != nil {
		log.Fatalf("Failed to load recipes: %v", err)
	}
	for _, r := range recipes {
		fmt.Printf("%s  %s", r.ID, r.Title)
		if len(r.Tags) > 0 {
			fmt.Printf("  [%s]", strings.Join(r.Tags, ", "))
		}
		fmt.Println()
	}
}

func runPlan(ctx context.Context, application *app.App) {
	week := app.WeekStart(time.Now())
	if len(os.Args) > 2 {
		week = os.Args[2]
	}

	plan, err := application.MealPlan(ctx, week)
	if err != nil {
		log.Fatalf("Failed to load meal plan: %v", err)
	}

	fmt.Printf("Week of %s\n", plan.WeekStart)
	for _, meal := range plan.Meals {
		fmt.Printf("  %-10s %-10s %s (%d servings)\n", meal.Day, meal.Slot, meal.RecipeTitle, meal.Servings)
	}
}

func runJournal(ctx context.Context, application *app.App) {
	journalCmd := flag.NewFlagSet("journal", flag.ExitOnError)
	limit := journalCmd.Int("limit", 20, "Number of recent sync events to show")
	journalCmd.Parse(os.Args[2:])

	events, err := application.Journal().RecentEvents(ctx, *limit)
	if err != nil {
		log.Fatalf("Failed to read sync journal: %v", err)
	}
	for _, ev := range events {
		fmt.Printf("%s  %-12s %-6s %4dms  %s\n", ev.Timestamp.Format(time.RFC3339), ev.Kind, ev.Outcome, ev.LatencyMS, ev.Detail)
	}
}

func printList(state grocery.ListState) {
	checked := make(map[string]bool, len(state.CheckedItems))
	for _, name := range state.CheckedItems {
		checked[name] = true
	}

	for _, item := range state.CustomItems {
		mark := "[ ]"
		if checked[item.Name] {
			mark = "[x]"
			delete(checked, item.Name)
		}
		if item.Category != "" {
			fmt.Printf("%s %s (%s)\n", mark, item.Name, item.Category)
		} else {
			fmt.Printf("%s %s\n", mark, item.Name)
		}
	}
	for _, name := range state.CheckedItems {
		if checked[name] {
			fmt.Printf("[x] %s\n", name)
		}
	}
}

func appendIfMissing(items []string, name string) []string {
	for _, item := range items {
		if item == name {
			return items
		}
	}
	return append(items, name)
}

func removeItem(items []string, name string) []string {
	out := items[:0]
	for _, item := range items {
		if item != name {
			out = append(out, item)
		}
	}
	return out
}

func requireArg(command, usage string) {
	if len(os.Args) < 3 {
		fmt.Printf("Usage: mealmate %s %s\n", command, usage)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: mealmate <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  status             Show device, load state and list counters")
	fmt.Println("  list               Print the grocery list")
	fmt.Println("  check <item>       Check an item off")
	fmt.Println("  uncheck <item>     Remove an item's check mark")
	fmt.Println("  toggle <item>      Flip an item's check mark")
	fmt.Println("  clear              Clear all check marks")
	fmt.Println("  add <item>         Add a custom item (-category <name>)")
	fmt.Println("  selections ...     Save selected plan entries (entry[=servings])")
	fmt.Println("  reset              Reset the shared list for every device")
	fmt.Println("  refresh            Reload state from the server")
	fmt.Println("  push               Replace the server document with local state")
	fmt.Println("  recipes            List the recipe library")
	fmt.Println("  plan [week]        Show the weekly meal plan")
	fmt.Println("  journal            Show recent sync events (-limit N)")
}
