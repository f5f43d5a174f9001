// Package telegram exposes the shared grocery list and meal plan to the
// household chat. It is a thin consumer of the sync layer: every mutation
// goes through the synchronizer's operation set.
package telegram

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"mealmate/internal/api"
	"mealmate/internal/app"
	"mealmate/internal/config"
	"mealmate/internal/grocery"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// nowFunc is swapped out in tests.
var nowFunc = time.Now

// Bot wraps the Telegram API and the application core.
type Bot struct {
	botAPI *tgbotapi.BotAPI
	app    *app.App
	cfg    *config.Config
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, application *app.App) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", botAPI.Self.UserName)

	webhookURL := cfg.TelegramWebhookURL
	wh, _ := tgbotapi.NewWebhook(webhookURL)
	resp, err := botAPI.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
	}
	log.Printf("Webhook set response: %s", resp.Description)

	return &Bot{
		botAPI: botAPI,
		app:    application,
		cfg:    cfg,
	}, nil
}

// RegisterHandlers registers the webhook handler with the default HTTP mux.
func (b *Bot) RegisterHandlers() {
	http.HandleFunc("/webhook", b.handleWebhook)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.botAPI.HandleUpdate(r)
	if err != nil {
		log.Printf("Error parsing update: %v", err)
		return
	}

	if update.Message == nil {
		return
	}

	if b.cfg.TelegramAllowUserID != 0 && update.Message.From.ID != b.cfg.TelegramAllowUserID {
		log.Printf("⚠️ Unauthorized access attempt from UserID: %d (@%s)", update.Message.From.ID, update.Message.From.UserName)
		return
	}

	go b.processMessage(update.Message)
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	command, args := splitCommand(msg.Text)

	var reply string
	switch command {
	case "list", "start":
		reply = formatListMarkdown(b.app.Grocery().Snapshot())
	case "check":
		reply = b.handleCheck(args)
	case "uncheck":
		reply = b.handleUncheck(args)
	case "add":
		reply = b.handleAdd(args)
	case "clear":
		b.app.Grocery().ClearChecked()
		reply = "✅ Cleared all check marks."
	case "plan":
		reply = b.handlePlan()
	case "reset":
		b.app.Grocery().ResetAll()
		reply = "🧹 Grocery list reset for the whole household."
	case "refresh":
		state := b.app.RefreshState(context.Background())
		reply = fmt.Sprintf("🔄 Reloaded shared state (%s).", state)
	default:
		reply = "Commands: /list, /check <item>, /uncheck <item>, /add <item>[, category], /clear, /plan, /reset, /refresh"
	}

	b.send(msg.Chat.ID, reply)
}

func (b *Bot) handleCheck(args string) string {
	if args == "" {
		return "Usage: /check <item>"
	}
	state := b.app.Grocery().Snapshot()
	if !containsName(state.CheckedItems, args) {
		b.app.Grocery().ToggleChecked(args)
	}
	return fmt.Sprintf("✅ Checked *%s*.", args)
}

func (b *Bot) handleUncheck(args string) string {
	if args == "" {
		return "Usage: /uncheck <item>"
	}
	state := b.app.Grocery().Snapshot()
	if containsName(state.CheckedItems, args) {
		b.app.Grocery().ToggleChecked(args)
	}
	return fmt.Sprintf("⬜ Unchecked *%s*.", args)
}

func (b *Bot) handleAdd(args string) string {
	item, ok := parseCustomItem(args)
	if !ok {
		return "Usage: /add <item>[, category]"
	}
	b.app.Grocery().AddCustomItem(item)
	if item.Category != "" {
		return fmt.Sprintf("🛒 Added *%s* (%s).", item.Name, item.Category)
	}
	return fmt.Sprintf("🛒 Added *%s*.", item.Name)
}

func (b *Bot) handlePlan() string {
	ctx := context.Background()
	plan, err := b.app.MealPlan(ctx, app.WeekStart(nowFunc()))
	if err != nil {
		log.Printf("Failed to fetch meal plan: %v", err)
		return "❌ Could not load the meal plan right now."
	}
	return formatPlanMarkdown(plan)
}

func (b *Bot) send(chatID int64, text string) {
	reply := tgbotapi.NewMessage(chatID, text)
	reply.ParseMode = "Markdown"
	if _, err := b.botAPI.Send(reply); err != nil {
		log.Printf("Failed to send reply: %v", err)
	}
}

// splitCommand extracts the command name and its arguments from a message.
// A leading "/cmd@botname" mention is normalized to "cmd".
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	parts := strings.SplitN(text, " ", 2)
	command := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}

	args := ""
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args
}

// parseCustomItem parses "/add" arguments: an item name with an optional
// comma-separated category.
func parseCustomItem(args string) (grocery.CustomItem, bool) {
	name, category, _ := strings.Cut(args, ",")
	name = strings.TrimSpace(name)
	if name == "" {
		return grocery.CustomItem{}, false
	}
	return grocery.CustomItem{Name: name, Category: strings.TrimSpace(category)}, true
}

func containsName(items []string, name string) bool {
	for _, item := range items {
		if item == name {
			return true
		}
	}
	return false
}

func formatListMarkdown(state grocery.ListState) string {
	var sb strings.Builder
	sb.WriteString("🛒 *Grocery List*\n")

	if len(state.CustomItems) == 0 && len(state.CheckedItems) == 0 {
		sb.WriteString("_Nothing on the list yet._\n")
	}

	listed := make(map[string]bool, len(state.CustomItems))
	for _, item := range state.CustomItems {
		listed[item.Name] = true
		mark := "⬜"
		if containsName(state.CheckedItems, item.Name) {
			mark = "✅"
		}
		if item.Category != "" {
			sb.WriteString(fmt.Sprintf("%s %s _(%s)_\n", mark, item.Name, item.Category))
		} else {
			sb.WriteString(fmt.Sprintf("%s %s\n", mark, item.Name))
		}
	}

	// Checked items that came from recipes rather than custom entries.
	for _, name := range state.CheckedItems {
		if !listed[name] {
			sb.WriteString(fmt.Sprintf("✅ %s\n", name))
		}
	}

	if len(state.SelectedEntries) > 0 {
		sb.WriteString("\n📌 *Selected meals*\n")
		for _, entry := range state.SelectedEntries {
			if servings, ok := state.EntryServings[entry]; ok {
				sb.WriteString(fmt.Sprintf("• %s ×%d\n", entry, servings))
			} else {
				sb.WriteString(fmt.Sprintf("• %s\n", entry))
			}
		}
	}

	return sb.String()
}

func formatPlanMarkdown(plan *api.MealPlan) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📅 *Meal Plan* (week of %s)\n", plan.WeekStart))

	if len(plan.Meals) == 0 {
		sb.WriteString("_No meals planned yet._\n")
	}
	for _, meal := range plan.Meals {
		sb.WriteString(fmt.Sprintf("*%s %s*: %s (%d servings)\n", meal.Day, meal.Slot, meal.RecipeTitle, meal.Servings))
	}

	return sb.String()
}
