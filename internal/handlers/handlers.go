package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-tutor-bot/internal/messages"
	"telegram-tutor-bot/internal/models"
)

const submissionsShown = 30

// HandleMessage routes one inbound message. Order matters and the first match
// wins: cancel, then a pending prompt, then a shared contact, then a command,
// then the free-text fallback.
func (h *Handler) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}

	a, err := h.resolve(ctx, msg)
	if err != nil {
		h.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("resolve actor")
		h.send(msg.Chat.ID, messages.InternalError)
		return
	}

	cmd := ParseCommand(msg)

	if cmd == CmdCancel {
		h.Sessions.Clear(a.chatID)
		h.reply(a.chatID, messages.Cancelled, messages.MenuFor(a.role))
		return
	}

	if st, ok := h.Sessions.Get(a.chatID); ok {
		h.handleStep(ctx, a, st, msg)
		return
	}

	if msg.Contact != nil {
		h.handleContact(ctx, a, msg.Contact)
		return
	}

	if cmd != CmdNone {
		h.handleCommand(ctx, a, cmd)
		return
	}

	h.handleFreeText(ctx, a, msg)
}

func (h *Handler) handleCommand(ctx context.Context, a actor, cmd Command) {
	if cmd.AdminOnly() && a.role != models.RoleAdmin {
		h.reply(a.chatID, messages.AccessDenied, messages.MenuFor(a.role))
		return
	}
	if cmd.StudentOnly() && a.role != models.RoleStudent {
		h.reply(a.chatID, messages.NotRegistered, messages.MenuFor(a.role))
		return
	}

	if field, ok := cmd.UpdateField(); ok {
		h.beginUpdate(a, field)
		return
	}

	switch cmd {
	case CmdStart:
		h.reply(a.chatID, messages.Greeting(a.role, a.name()), messages.MenuFor(a.role))
	case CmdAbout:
		h.send(a.chatID, h.opts.TutorInfo)
	case CmdLogin:
		h.handleLogin(a)
	case CmdRegister:
		h.handleRegister(a)

	case CmdHomework:
		h.send(a.chatID, messages.Homework(a.student))
	case CmdSchedule:
		h.send(a.chatID, messages.Schedule(a.student))
	case CmdProgress:
		h.send(a.chatID, messages.Progress(a.student))
	case CmdSubmitHomework:
		h.Sessions.Begin(a.chatID, models.StepSubmitHomework)
		h.reply(a.chatID, messages.AskSubmission, messages.CancelMenu())

	case CmdAddStudent:
		h.Sessions.Begin(a.chatID, models.StepAddLogin)
		h.reply(a.chatID, messages.AskStudentLogin, messages.CancelMenu())
	case CmdRemoveStudent:
		h.Sessions.Begin(a.chatID, models.StepRemoveLogin)
		h.reply(a.chatID, messages.AskRemoveLogin, messages.CancelMenu())
	case CmdStudents:
		h.listStudents(ctx, a)
	case CmdSubmissions:
		h.listSubmissions(ctx, a)

	case CmdUnknown:
		h.reply(a.chatID, messages.UnknownCommand, messages.MenuFor(a.role))
	}
}

func (a actor) name() string {
	if a.student == nil {
		return ""
	}
	return a.student.Name
}

func (h *Handler) handleLogin(a actor) {
	switch a.role {
	case models.RoleAdmin:
		h.reply(a.chatID, messages.AdminWelcome, messages.AdminMenu())
	default:
		// a student may log in again under another login, the chat is rebound
		h.Sessions.Begin(a.chatID, models.StepLoginLogin)
		h.reply(a.chatID, messages.AskLogin, messages.CancelMenu())
	}
}

func (h *Handler) handleRegister(a actor) {
	if a.role != models.RoleUnknown {
		h.reply(a.chatID, messages.AlreadyRegistered, messages.MenuFor(a.role))
		return
	}
	h.Sessions.Begin(a.chatID, models.StepRegisterName)
	h.reply(a.chatID, messages.AskName, messages.CancelMenu())
}

func (h *Handler) listStudents(ctx context.Context, a actor) {
	list, err := h.DB.ListStudents(ctx)
	if err != nil {
		h.internalError(a.chatID, err, "list students")
		return
	}
	h.send(a.chatID, messages.StudentList(list))
}

func (h *Handler) listSubmissions(ctx context.Context, a actor) {
	list, err := h.DB.ListSubmissions(ctx, submissionsShown)
	if err != nil {
		h.internalError(a.chatID, err, "list submissions")
		return
	}
	h.send(a.chatID, messages.SubmissionList(list, h.opts.Location))
}

// handleFreeText is the single catch-all. Students' text becomes a question
// for the tutor, strangers get the start menu, the admin is ignored.
func (h *Handler) handleFreeText(ctx context.Context, a actor, msg *tgbotapi.Message) {
	switch a.role {
	case models.RoleStudent:
		sub := submissionFrom(msg, a.student.Login, models.KindQuestion)
		if sub == nil {
			return
		}
		if err := h.DB.InsertSubmission(ctx, sub); err != nil {
			h.internalError(a.chatID, err, "store question")
			return
		}
		h.forwardToAdmin(sub, a.student.Name, msg)
		h.send(a.chatID, messages.QuestionSent)
	case models.RoleUnknown:
		h.reply(a.chatID, messages.NotRegistered, messages.StartMenu())
	}
}
