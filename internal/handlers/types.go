package handlers

import (
	"context"
	"log/slog"
	"sync"

	"gatedrop-bot/internal/auth"
	"gatedrop-bot/internal/broadcast"
	"gatedrop-bot/internal/config"
	"gatedrop-bot/internal/database"
	"gatedrop-bot/internal/deletion"
	"gatedrop-bot/internal/delivery"
	"gatedrop-bot/internal/links"
	"gatedrop-bot/internal/locales"
	"gatedrop-bot/internal/quota"
	"gatedrop-bot/internal/state"
	"gatedrop-bot/internal/subscriptions"
	"gatedrop-bot/internal/transport"
	telegoapi "gatedrop-bot/pkg/telegoapi"

	"github.com/benbjohnson/clock"
	"github.com/mymmrac/telego"
)

// Action types for the activity log.
const (
	ActionCommandStart   = "command_start"
	ActionCommandHelp    = "command_help"
	ActionCommandPlan    = "command_plan"
	ActionCommandPay     = "command_pay"
	ActionBatchCreated   = "batch_created"
	ActionWebsiteChanged = "website_changed"
	ActionTimerChanged   = "auto_delete_changed"
	ActionSubscription   = "subscription_activated"
	ActionUpgrade        = "subscription_upgraded"
	ActionCancel         = "subscription_cancelled"
	ActionForceDelete    = "force_delete"
	ActionExport         = "export"
)

// HandlerFunc handles one command message.
type HandlerFunc func(context.Context, telegoapi.BotAPI, telego.Message) error

// Command maps a command string to its handler. Operator-only commands are
// ignored for everyone else.
type Command struct {
	Command string
	// Description is a message ID; empty hides the command from the menu.
	Description  string
	OperatorOnly bool
	Handler      HandlerFunc
}

// Deps holds everything a MessageHandler needs.
type Deps struct {
	Config        *config.Config
	BotUsername   string
	State         *state.State
	Auth          *auth.Checker
	Links         *links.Registry
	Quota         *quota.Engine
	Subscriptions *subscriptions.Ledger
	Deletions     *deletion.Scheduler
	Delivery      *delivery.Orchestrator
	Broadcaster   *broadcast.Broadcaster
	Transport     *transport.Telegram
	Locales       *locales.Bundle
	Activity      database.ActivityLogger
	Clock         clock.Clock
	Log           *slog.Logger
}

// MessageHandler implements every command, callback and channel listener.
type MessageHandler struct {
	Deps

	commands []Command

	// pending holds the operator's in-progress conversation, keyed by chat id.
	pendingMu sync.Mutex
	pending   map[int64]pendingInput
}

// NewMessageHandler creates a handler and its command table.
func NewMessageHandler(deps Deps) *MessageHandler {
	h := &MessageHandler{
		Deps:    deps,
		pending: make(map[int64]pendingInput),
	}
	h.commands = []Command{
		{Command: "start", Description: locales.CmdStartDesc, Handler: h.HandleStart},
		{Command: "plan", Description: locales.CmdPlanDesc, Handler: h.HandlePlan},
		{Command: "pay", Description: locales.CmdPayDesc, Handler: h.HandlePay},
		{Command: "help", Description: locales.CmdHelpDesc, Handler: h.HandleHelp},
		{Command: "batch", OperatorOnly: true, Handler: h.HandleBatch},
		{Command: "betch", OperatorOnly: true, Handler: h.HandleBatch},
		{Command: "links", OperatorOnly: true, Handler: h.HandleLinks},
		{Command: "website", OperatorOnly: true, Handler: h.HandleWebsite},
		{Command: "setting", OperatorOnly: true, Handler: h.HandleSetting},
		{Command: "users", OperatorOnly: true, Handler: h.HandleUsers},
		{Command: "user", OperatorOnly: true, Handler: h.HandleUser},
		{Command: "export", OperatorOnly: true, Handler: h.HandleExport},
	}
	return h
}

// Commands returns the command table.
func (h *MessageHandler) Commands() []Command {
	return h.commands
}

// GetCommandHandler returns the handler for command, or nil when the command
// is unknown or userID may not run it.
func (h *MessageHandler) GetCommandHandler(command string, userID int64) HandlerFunc {
	for _, cmd := range h.commands {
		if cmd.Command != command {
			continue
		}
		if cmd.OperatorOnly && !h.Auth.IsOperator(userID) {
			return nil
		}
		return cmd.Handler
	}
	return nil
}
