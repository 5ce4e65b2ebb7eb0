package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pavelanni/classbot/internal/delivery"
	appI18n "github.com/pavelanni/classbot/internal/i18n"
	"github.com/pavelanni/classbot/internal/model"
)

// maxBodyBytes bounds webhook request bodies.
const maxBodyBytes = 1 << 20

// Responder produces the reply to one inbound message.
type Responder interface {
	HandleInboundMessage(ctx context.Context, senderID, rawText string) string
}

// RosterStore is the member store used by the admin routes.
type RosterStore interface {
	RegisterMember(m model.Member) (int64, error)
	ListMembers() ([]model.Member, error)
	ExportRoster() (model.RosterExport, error)
}

// Config holds HTTP-level settings.
type Config struct {
	// AdminToken enables the /admin routes when set.
	AdminToken string
	// TelegramSecret, when set, must match the X-Telegram-Bot-Api-Secret-Token header.
	TelegramSecret string
	// ReplyTimeout bounds background handling of a Telegram update.
	ReplyTimeout time.Duration
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	bot      Responder
	roster   RosterStore
	telegram delivery.Deliverer
	config   Config

	wg sync.WaitGroup
}

// New creates a new Handler. A nil telegram deliverer disables the Telegram webhook.
func New(b Responder, roster RosterStore, telegram delivery.Deliverer, cfg Config) *Handler {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 2 * time.Minute
	}
	return &Handler{bot: b, roster: roster, telegram: telegram, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/webhook/message", h.handleMessage)
	if h.telegram != nil {
		r.With(h.requireTelegramSecret).Post("/webhook/telegram", h.handleTelegram)
	}
	if h.config.AdminToken != "" && h.roster != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(h.requireAdminToken)
			admin.Get("/members", h.handleListMembers)
			admin.Post("/members", h.handleImportMembers)
			admin.Get("/export", h.handleExport)
		})
	}
}

// Wait blocks until background Telegram replies have finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type inboundMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
}

type replyMessage struct {
	Reply string `json:"reply"`
}

// handleMessage accepts {"from","text"} JSON or From/Body form fields and
// answers with the reply in the response body.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var in inboundMessage
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	} else {
		in.From = r.FormValue("From")
		in.Text = r.FormValue("Body")
	}

	if strings.TrimSpace(in.From) == "" || strings.TrimSpace(in.Text) == "" {
		http.Error(w, "from and text are required", http.StatusBadRequest)
		return
	}

	reply := h.bot.HandleInboundMessage(r.Context(), in.From, in.Text)
	writeJSON(w, http.StatusOK, replyMessage{Reply: reply})
}

// handleTelegram acknowledges the update at once and sends the reply
// through the Telegram deliverer in the background.
func (h *Handler) handleTelegram(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	msg := update.Message
	if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		slog.Debug("ignoring telegram update", "update_id", update.UpdateID)
		return
	}

	owner := delivery.TelegramOwner(msg.Chat.ID)
	ctx := context.WithoutCancel(r.Context())
	if msg.From != nil {
		ctx = appI18n.WithLanguage(ctx, msg.From.LanguageCode)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, h.config.ReplyTimeout)
		defer cancel()

		reply := h.bot.HandleInboundMessage(ctx, owner, msg.Text)
		if err := h.telegram.Deliver(ctx, owner, reply); err != nil {
			slog.Error("telegram reply not delivered", "owner", owner, "update_id", update.UpdateID, "error", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
