package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-tutor-bot/internal/auth"
	"telegram-tutor-bot/internal/messages"
	"telegram-tutor-bot/internal/models"
	"telegram-tutor-bot/internal/utils"
)

func (h *Handler) send(chatID int64, text string) {
	h.reply(chatID, text, nil)
}

// reply sends text with an optional keyboard. Delivery errors are logged only.
func (h *Handler) reply(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := h.Bot.Send(msg); err != nil {
		h.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

func (h *Handler) internalError(chatID int64, err error, op string) {
	h.log.Error().Err(err).Int64("chat_id", chatID).Str("op", op).Msg("storage error")
	h.send(chatID, messages.InternalError)
}

// submissionFrom takes text, the largest photo or a document from msg.
// It returns nil when there is nothing to store.
func submissionFrom(msg *tgbotapi.Message, login string, kind models.SubmissionKind) *models.Submission {
	sub := &models.Submission{Login: login, Kind: kind}

	switch {
	case len(msg.Photo) > 0:
		sub.FileID = msg.Photo[len(msg.Photo)-1].FileID
		sub.Content = strings.TrimSpace(msg.Caption)
	case msg.Document != nil:
		sub.FileID = msg.Document.FileID
		sub.Content = strings.TrimSpace(msg.Caption)
	default:
		sub.Content = strings.TrimSpace(msg.Text)
	}

	if sub.Content == "" && sub.FileID == "" {
		return nil
	}
	return sub
}

// forwardToAdmin shows a new submission to the tutor with an answer button.
// Files are copied from the student's message so photos stay photos.
func (h *Handler) forwardToAdmin(sub *models.Submission, name string, src *tgbotapi.Message) {
	admin := h.opts.AdminID
	kb := messages.AnswerKB(sub.ID)

	var err error
	if sub.FileID != "" && src != nil {
		cp := tgbotapi.NewCopyMessage(admin, src.Chat.ID, src.MessageID)
		cp.Caption = messages.Forwarded(sub, name, messages.CaptionLimit)
		cp.ReplyMarkup = kb
		// copyMessage answers with a MessageId object, not a Message
		_, err = h.Bot.Request(cp)
	} else {
		msg := tgbotapi.NewMessage(admin, messages.Forwarded(sub, name, messages.TextLimit))
		msg.ReplyMarkup = kb
		_, err = h.Bot.Send(msg)
	}
	if err != nil {
		h.log.Warn().Err(err).Str("submission", sub.ID).Msg("forward to admin")
	}
}

// handleContact logs a student in by the phone number they shared. Only the
// sender's own contact is accepted.
func (h *Handler) handleContact(ctx context.Context, a actor, c *tgbotapi.Contact) {
	if a.role == models.RoleAdmin {
		return
	}
	if c.UserID != a.userID {
		h.reply(a.chatID, messages.ContactUnknown, messages.StartMenu())
		return
	}

	phone := utils.NormalizePhone(c.PhoneNumber)
	if phone == "" {
		h.reply(a.chatID, messages.ContactUnknown, messages.StartMenu())
		return
	}
	res, err := h.Auth.Resolve(ctx, auth.Identity{UserID: a.userID, ChatID: a.chatID, Login: phone})
	if err != nil {
		h.internalError(a.chatID, err, "resolve contact")
		return
	}
	if res.Role != models.RoleStudent {
		h.reply(a.chatID, messages.ContactUnknown, messages.StartMenu())
		return
	}
	if err := h.DB.BindChat(ctx, res.Student.Login, a.chatID); err != nil {
		h.internalError(a.chatID, err, "bind chat")
		return
	}
	h.reply(a.chatID, messages.Greeting(models.RoleStudent, res.Student.Name), messages.StudentMenu())
}
