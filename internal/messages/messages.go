package messages

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-tutor-bot/internal/models"
)

// Menu labels. The router maps them to commands, nothing else compares them.
const (
	BtnLogin    = "🔑 Войти"
	BtnRegister = "📝 Регистрация"
	BtnAbout    = "ℹ️ О репетиторе"

	BtnHomework = "📚 Моя домашка"
	BtnSchedule = "📆 Моё расписание"
	BtnProgress = "📊 Мой прогресс"
	BtnSubmit   = "📤 Отправить ДЗ"

	BtnAddStudent     = "➕ Добавить ученика"
	BtnRemoveStudent  = "❌ Удалить ученика"
	BtnStudents       = "📋 Список учеников"
	BtnUpdateSchedule = "📆 Обновить расписание"
	BtnUpdateHomework = "📚 Обновить домашку"
	BtnUpdateProgress = "📊 Обновить прогресс"
	BtnSubmissions    = "📥 Присланные ДЗ"

	BtnCancel = "Отмена"
	BtnAnswer = "✍️ Ответить"
)

const (
	AccessDenied    = "Доступ запрещён!"
	NotRegistered   = "Вы не зарегистрированы. Нажмите «🔑 Войти» или /register."
	StudentNotFound = "Ученик не найден."
	Cancelled       = "Действие отменено."
	InternalError   = "Что-то пошло не так, попробуйте позже."
	UnknownCommand  = "Неизвестная команда."

	AskLogin          = "Введите ваш логин:"
	AskPassword       = "Введите ваш пароль:"
	BadCredentials    = "Неверный логин или пароль."
	AdminWelcome      = "Вы вошли как администратор."
	AskName           = "Как вас зовут?"
	AlreadyRegistered = "Вы уже зарегистрированы."

	AskStudentLogin    = "Введите логин ученика:"
	AskStudentPassword = "Введите пароль ученика:"
	AskStudentName     = "Введите имя ученика:"
	StudentAdded       = "Ученик добавлен!"
	StudentExists      = "Ученик с таким логином уже есть."
	AskRemoveLogin     = "Введите логин ученика, которого хотите удалить:"
	StudentRemoved     = "Ученик удалён."
	NoStudents         = "Учеников пока нет."
	NoSubmissions      = "Присланных работ пока нет."

	AskSubmission   = "Отправьте текст, фото или файл домашнего задания."
	SubmissionSent  = "Ваше домашнее задание отправлено репетитору!"
	EmptySubmission = "Пришлите текст, фото или документ."
	QuestionSent    = "Вопрос отправлен репетитору."
	AskAnswer       = "Напишите ответ ученику:"
	AnswerSent      = "Ответ отправлен."
	AlreadyAnswered = "На это сообщение уже ответили."
	MissingMessage  = "Сообщение не найдено."
	StudentOffline  = "Ученик ещё не входил в бот, ответ доставить некуда."
	DeliveryFailed  = "Не удалось доставить сообщение ученику."

	BadSchedule = "Неверный формат. Введите дату и время как ДД.ММ.ГГГГ ЧЧ:ММ, например 10.06.2025 18:00, или «-», чтобы очистить."

	EmptyValue     = "нет данных"
	EmptyLesson    = "не назначено"
	ClearMarker    = "-"
	ContactUnknown = "Ученик с таким номером не найден. Обратитесь к репетитору."
)

// Reminder texts sent by the sweep.
const (
	PreLessonReminder = "Напоминание: через 2 часа у вас урок (%s)!"
	PaymentReminder   = "Напоминание: не забудьте оплатить урок."
	LessonCleared     = "Урок %s прошёл и убран из расписания."
)

func StartMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnLogin),
			tgbotapi.NewKeyboardButton(BtnRegister),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonContact("📱 Войти по номеру"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnAbout),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func StudentMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnHomework),
			tgbotapi.NewKeyboardButton(BtnSchedule),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnProgress),
			tgbotapi.NewKeyboardButton(BtnSubmit),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func AdminMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnAddStudent),
			tgbotapi.NewKeyboardButton(BtnRemoveStudent),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnStudents),
			tgbotapi.NewKeyboardButton(BtnSubmissions),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnUpdateSchedule),
			tgbotapi.NewKeyboardButton(BtnUpdateHomework),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnUpdateProgress),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func CancelMenu() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(BtnCancel)),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func MenuFor(role models.Role) tgbotapi.ReplyKeyboardMarkup {
	switch role {
	case models.RoleAdmin:
		return AdminMenu()
	case models.RoleStudent:
		return StudentMenu()
	default:
		return StartMenu()
	}
}

// AnswerKB is attached to forwarded questions and homework so the tutor can reply.
func AnswerKB(submissionID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnAnswer, AnswerCallback(submissionID)),
		),
	)
}

const answerPrefix = "answer:"

func AnswerCallback(id string) string { return answerPrefix + id }

func ParseAnswerCallback(data string) (string, bool) {
	if !strings.HasPrefix(data, answerPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(data, answerPrefix)
	return id, id != ""
}

func Greeting(role models.Role, name string) string {
	switch role {
	case models.RoleAdmin:
		return "Здравствуйте! Вы вошли как администратор."
	case models.RoleStudent:
		return fmt.Sprintf("Добро пожаловать, %s!", name)
	default:
		return "Привет! Выберите действие:"
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func Homework(s *models.Student) string {
	return "Ваше домашнее задание: " + orDefault(s.Homework, EmptyValue)
}

func Schedule(s *models.Student) string {
	return "Ваше расписание: " + orDefault(s.Schedule, EmptyLesson)
}

func Progress(s *models.Student) string {
	return "Ваш прогресс: " + orDefault(s.Progress, EmptyValue)
}

func FieldTitle(f models.Field) string {
	switch f {
	case models.FieldSchedule:
		return "расписание"
	case models.FieldHomework:
		return "домашнее задание"
	case models.FieldProgress:
		return "прогресс"
	}
	return string(f)
}

func AskFieldValue(f models.Field) string {
	if f == models.FieldSchedule {
		return "Введите дату и время урока (ДД.ММ.ГГГГ ЧЧ:ММ) или «-», чтобы очистить:"
	}
	return fmt.Sprintf("Введите новое значение (%s):", FieldTitle(f))
}

func FieldUpdated(f models.Field) string {
	switch f {
	case models.FieldSchedule:
		return "Расписание обновлено!"
	case models.FieldHomework:
		return "Домашнее задание обновлено!"
	default:
		return "Прогресс обновлён!"
	}
}

// FieldChanged is what the student sees after the tutor edits their record.
func FieldChanged(f models.Field, value string) string {
	def := EmptyValue
	if f == models.FieldSchedule {
		def = EmptyLesson
	}
	return fmt.Sprintf("Репетитор обновил %s: %s", FieldTitle(f), orDefault(value, def))
}

func StudentList(list []models.Student) string {
	if len(list) == 0 {
		return NoStudents
	}
	var b strings.Builder
	b.WriteString("Список учеников:\n")
	for _, s := range list {
		status := ""
		if s.ChatID == 0 {
			status = " (не входил)"
		}
		fmt.Fprintf(&b, "%s (логин: %s)%s\n", s.Name, s.Login, status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func SubmissionList(list []models.Submission, loc *time.Location) string {
	if len(list) == 0 {
		return NoSubmissions
	}
	var b strings.Builder
	b.WriteString("Присланные работы и вопросы:\n")
	for _, s := range list {
		mark := "🆕"
		if s.Answered {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s [%s] %s %s: %s\n",
			mark, ShortID(s.ID),
			time.Unix(s.CreatedAt, 0).In(loc).Format("02.01 15:04"),
			s.Login, describe(s))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Telegram limits, counted in UTF-16 code units.
const (
	TextLimit    = 4096
	CaptionLimit = 1024
)

// Forwarded formats a new submission for the tutor, cutting the body so the
// whole text fits in limit.
func Forwarded(s *models.Submission, name string, limit int) string {
	head := "Новое домашнее задание"
	if s.Kind == models.KindQuestion {
		head = "Новый вопрос"
	}
	head = fmt.Sprintf("%s от %s (%s):\n", head, name, s.Login)
	return head + Truncate(describe(*s), limit-utf16Len(head))
}

// Truncate shortens text to at most limit UTF-16 units, ending with "…" when cut.
func Truncate(text string, limit int) string {
	if utf16Len(text) <= limit {
		return text
	}
	if limit <= 0 {
		return ""
	}
	n := 0
	for i, r := range text {
		w := utf16.RuneLen(r)
		if w < 0 {
			w = 1
		}
		if n+w > limit-1 {
			return text[:i] + "…"
		}
		n += w
	}
	return text
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

func AnswerFromTutor(text string) string {
	return "Ответ репетитора:\n" + text
}

func describe(s models.Submission) string {
	if s.FileID != "" && s.Content != "" {
		return s.Content + " [файл]"
	}
	if s.FileID != "" {
		return "[файл]"
	}
	return s.Content
}

func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
