package handlers

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-tutor-bot/internal/auth"
	"telegram-tutor-bot/internal/messages"
	"telegram-tutor-bot/internal/models"
	"telegram-tutor-bot/internal/session"
	apperrors "telegram-tutor-bot/pkg/errors"
)

var adminSteps = map[models.Step]bool{
	models.StepAddLogin:    true,
	models.StepAddPassword: true,
	models.StepAddName:     true,
	models.StepRemoveLogin: true,
	models.StepUpdateLogin: true,
	models.StepUpdateValue: true,
	models.StepAnswerText:  true,
}

// handleStep feeds msg to the prompt the chat is waiting on.
func (h *Handler) handleStep(ctx context.Context, a actor, st session.Session, msg *tgbotapi.Message) {
	if adminSteps[st.Step] && a.role != models.RoleAdmin {
		h.Sessions.Clear(a.chatID)
		h.reply(a.chatID, messages.AccessDenied, messages.MenuFor(a.role))
		return
	}

	text := strings.TrimSpace(msg.Text)

	switch st.Step {
	case models.StepLoginLogin:
		if text == "" {
			h.send(a.chatID, messages.AskLogin)
			return
		}
		h.Sessions.Advance(a.chatID, models.StepLoginPassword, "login", text)
		h.send(a.chatID, messages.AskPassword)

	case models.StepLoginPassword:
		h.Sessions.Clear(a.chatID)
		// пароль не должен оставаться в истории чата
		_, _ = h.Bot.Request(tgbotapi.NewDeleteMessage(a.chatID, msg.MessageID))
		h.finishLogin(ctx, a, st.Data["login"], text)

	case models.StepRegisterName:
		if text == "" {
			h.send(a.chatID, messages.AskName)
			return
		}
		h.Sessions.Clear(a.chatID)
		h.finishRegister(ctx, a, text)

	case models.StepAddLogin:
		if text == "" {
			h.send(a.chatID, messages.AskStudentLogin)
			return
		}
		h.Sessions.Advance(a.chatID, models.StepAddPassword, "login", text)
		h.send(a.chatID, messages.AskStudentPassword)

	case models.StepAddPassword:
		if text == "" {
			h.send(a.chatID, messages.AskStudentPassword)
			return
		}
		h.Sessions.Advance(a.chatID, models.StepAddName, "password", text)
		h.send(a.chatID, messages.AskStudentName)

	case models.StepAddName:
		if text == "" {
			h.send(a.chatID, messages.AskStudentName)
			return
		}
		h.Sessions.Clear(a.chatID)
		h.finishAddStudent(ctx, a, st.Data["login"], st.Data["password"], text)

	case models.StepRemoveLogin:
		h.Sessions.Clear(a.chatID)
		h.finishRemoveStudent(ctx, a, text)

	case models.StepUpdateLogin:
		h.updateLogin(ctx, a, st, text)

	case models.StepUpdateValue:
		h.updateValue(ctx, a, st, text)

	case models.StepSubmitHomework:
		h.finishSubmit(ctx, a, msg)

	case models.StepAnswerText:
		if text == "" {
			h.send(a.chatID, messages.AskAnswer)
			return
		}
		h.Sessions.Clear(a.chatID)
		h.finishAnswer(ctx, a, st.Data["submission"], text)

	default:
		h.log.Warn().Str("step", string(st.Step)).Int64("chat_id", a.chatID).Msg("unknown step, clearing")
		h.Sessions.Clear(a.chatID)
	}
}

func (h *Handler) finishLogin(ctx context.Context, a actor, login, password string) {
	res, err := h.Auth.Resolve(ctx, auth.Identity{
		UserID:        a.userID,
		ChatID:        a.chatID,
		Login:         login,
		Password:      password,
		CheckPassword: true,
	})
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidCredentials):
		h.log.Info().Str("login", login).Int64("chat_id", a.chatID).Msg("login rejected")
		h.reply(a.chatID, messages.BadCredentials, messages.StartMenu())
		return
	case err != nil:
		h.internalError(a.chatID, err, "resolve login")
		return
	}

	switch res.Role {
	case models.RoleAdmin:
		h.reply(a.chatID, messages.AdminWelcome, messages.AdminMenu())
	case models.RoleStudent:
		if err := h.DB.BindChat(ctx, res.Student.Login, a.chatID); err != nil {
			h.internalError(a.chatID, err, "bind chat")
			return
		}
		h.log.Info().Str("login", res.Student.Login).Int64("chat_id", a.chatID).Msg("student logged in")
		h.reply(a.chatID, messages.Greeting(models.RoleStudent, res.Student.Name), messages.StudentMenu())
	default:
		h.reply(a.chatID, messages.BadCredentials, messages.StartMenu())
	}
}

// finishRegister creates a password-less record keyed by the Telegram user id,
// bound to the chat in the same insert.
func (h *Handler) finishRegister(ctx context.Context, a actor, name string) {
	s := &models.Student{Login: strconv.FormatInt(a.userID, 10), Name: name, ChatID: a.chatID}
	err := h.DB.AddStudent(ctx, s)
	if apperrors.Is(err, apperrors.ErrAlreadyExists) {
		h.reply(a.chatID, messages.AlreadyRegistered, messages.StartMenu())
		return
	}
	if err != nil {
		h.internalError(a.chatID, err, "register student")
		return
	}
	h.log.Info().Str("login", s.Login).Msg("student registered")
	h.reply(a.chatID, messages.Greeting(models.RoleStudent, name), messages.StudentMenu())
}

func (h *Handler) finishAddStudent(ctx context.Context, a actor, login, password, name string) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		h.internalError(a.chatID, err, "hash password")
		return
	}
	err = h.DB.AddStudent(ctx, &models.Student{Login: login, PasswordHash: hash, Name: name})
	if apperrors.Is(err, apperrors.ErrAlreadyExists) {
		h.reply(a.chatID, messages.StudentExists, messages.AdminMenu())
		return
	}
	if err != nil {
		h.internalError(a.chatID, err, "add student")
		return
	}
	h.log.Info().Str("login", login).Msg("student added")
	h.reply(a.chatID, messages.StudentAdded, messages.AdminMenu())
}

func (h *Handler) finishRemoveStudent(ctx context.Context, a actor, login string) {
	err := h.DB.RemoveStudent(ctx, login)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		h.reply(a.chatID, messages.StudentNotFound, messages.AdminMenu())
		return
	}
	if err != nil {
		h.internalError(a.chatID, err, "remove student")
		return
	}
	h.log.Info().Str("login", login).Msg("student removed")
	h.reply(a.chatID, messages.StudentRemoved, messages.AdminMenu())
}

func (h *Handler) finishSubmit(ctx context.Context, a actor, msg *tgbotapi.Message) {
	if a.role != models.RoleStudent {
		h.Sessions.Clear(a.chatID)
		h.reply(a.chatID, messages.NotRegistered, messages.StartMenu())
		return
	}
	sub := submissionFrom(msg, a.student.Login, models.KindHomework)
	if sub == nil {
		h.send(a.chatID, messages.EmptySubmission)
		return
	}
	h.Sessions.Clear(a.chatID)
	if err := h.DB.InsertSubmission(ctx, sub); err != nil {
		h.internalError(a.chatID, err, "store homework")
		return
	}
	h.forwardToAdmin(sub, a.student.Name, msg)
	h.reply(a.chatID, messages.SubmissionSent, messages.StudentMenu())
}

func (h *Handler) finishAnswer(ctx context.Context, a actor, id, text string) {
	sub, err := h.DB.GetSubmission(ctx, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		h.reply(a.chatID, messages.MissingMessage, messages.AdminMenu())
		return
	}
	if err != nil {
		h.internalError(a.chatID, err, "load submission")
		return
	}
	st, err := h.DB.GetStudent(ctx, sub.Login)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		h.reply(a.chatID, messages.StudentNotFound, messages.AdminMenu())
		return
	}
	if err != nil {
		h.internalError(a.chatID, err, "load student")
		return
	}
	if st.ChatID == 0 {
		h.reply(a.chatID, messages.StudentOffline, messages.AdminMenu())
		return
	}
	if _, err := h.Bot.Send(tgbotapi.NewMessage(st.ChatID, messages.AnswerFromTutor(text))); err != nil {
		h.log.Warn().Err(err).Str("login", st.Login).Msg("deliver answer")
		h.reply(a.chatID, messages.DeliveryFailed, messages.AdminMenu())
		return
	}
	if err := h.DB.MarkAnswered(ctx, sub.ID); err != nil {
		h.log.Error().Err(err).Str("submission", sub.ID).Msg("mark answered")
	}
	h.reply(a.chatID, messages.AnswerSent, messages.AdminMenu())
}
