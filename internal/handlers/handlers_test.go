package handlers

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"

	"telegram-tutor-bot/internal/auth"
	"telegram-tutor-bot/internal/messages"
	"telegram-tutor-bot/internal/models"
	"telegram-tutor-bot/internal/session"
	"telegram-tutor-bot/internal/storage"
)

const adminID = 1000

var msk = time.FixedZone("MSK", 3*60*60)

type fakeBot struct {
	mu       sync.Mutex
	sent     map[int64][]string
	requests []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent[m.ChatID] = append(f.sent[m.ChatID], m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[chatID]...)
}

func (f *fakeBot) last(chatID int64) string {
	t := f.texts(chatID)
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

type env struct {
	h   *Handler
	db  *storage.DB
	bot *fakeBot
	ctx context.Context
}

func newEnv(t *testing.T, validate bool) *env {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	bot := &fakeBot{sent: map[int64][]string{}}
	sessions := session.NewStore(time.Hour, clockwork.NewFakeClock())
	h := New(bot, db, sessions, Options{
		AdminID:          adminID,
		Location:         msk,
		ValidateSchedule: validate,
		TutorInfo:        "Математика, 5-11 класс",
	})
	return &env{h: h, db: db, bot: bot, ctx: context.Background()}
}

var nextMessageID = 1

// text sends a private message from user to the bot. A leading "/" marks it
// as a command the way Telegram does.
func (e *env) text(user int64, text string) *tgbotapi.Message {
	nextMessageID++
	msg := &tgbotapi.Message{
		MessageID: nextMessageID,
		From:      &tgbotapi.User{ID: user},
		Chat:      &tgbotapi.Chat{ID: user, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		n := len(text)
		if i := strings.IndexByte(text, ' '); i > 0 {
			n = i
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}}
	}
	e.h.HandleMessage(e.ctx, msg)
	return msg
}

func (e *env) addStudent(t *testing.T, s models.Student) {
	t.Helper()
	if err := e.db.AddStudent(e.ctx, &s); err != nil {
		t.Fatal(err)
	}
}

func (e *env) student(t *testing.T, login string) *models.Student {
	t.Helper()
	s, err := e.db.GetStudent(e.ctx, login)
	if err != nil {
		t.Fatalf("get %s: %v", login, err)
	}
	return s
}

func TestUpdateRequiresAdmin(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna", ChatID: 55})
	before := e.student(t, "anna")

	for _, user := range []int64{55, 77} {
		e.text(user, "/update_schedule")
		if got := e.bot.last(user); got != messages.AccessDenied {
			t.Fatalf("user %d got %q", user, got)
		}
		if _, ok := e.h.Sessions.Get(user); ok {
			t.Fatalf("user %d entered a pending state", user)
		}
	}
	e.text(55, messages.BtnUpdateHomework)
	if got := e.bot.last(55); got != messages.AccessDenied {
		t.Fatalf("menu label: got %q", got)
	}

	if after := e.student(t, "anna"); *after != *before {
		t.Fatalf("record changed: %+v", after)
	}
}

func TestAdminUpdatesField(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna", ChatID: 55, Schedule: "01.06.2025 10:00", Progress: "ok"})

	e.text(adminID, "/update_homework")
	if got := e.bot.last(adminID); got != messages.AskStudentLogin {
		t.Fatalf("got %q", got)
	}
	e.text(adminID, "anna")
	e.text(adminID, "стр. 42, №1-5")
	if got := e.bot.last(adminID); got != messages.FieldUpdated(models.FieldHomework) {
		t.Fatalf("got %q", got)
	}

	s := e.student(t, "anna")
	if s.Homework != "стр. 42, №1-5" || s.Schedule != "01.06.2025 10:00" || s.Progress != "ok" {
		t.Fatalf("unexpected record %+v", s)
	}
	if got := e.bot.last(55); !strings.Contains(got, "стр. 42") {
		t.Fatalf("student not notified: %q", got)
	}
	if _, ok := e.h.Sessions.Get(adminID); ok {
		t.Fatal("state not cleared")
	}
}

func TestUpdateUnknownLogin(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna"})

	e.text(adminID, "/update_progress")
	e.text(adminID, "ghost")
	if got := e.bot.last(adminID); got != messages.StudentNotFound {
		t.Fatalf("got %q", got)
	}
	if _, ok := e.h.Sessions.Get(adminID); ok {
		t.Fatal("state kept after unknown login")
	}
	if _, err := e.db.GetStudent(e.ctx, "ghost"); err == nil {
		t.Fatal("record created for unknown login")
	}
	list, _ := e.db.ListStudents(e.ctx)
	if len(list) != 1 || list[0].Progress != "" {
		t.Fatalf("store changed: %+v", list)
	}
}

func TestScheduleValidation(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna"})

	e.text(adminID, "/update_schedule")
	e.text(adminID, "anna")
	e.text(adminID, "в пятницу вечером")
	if got := e.bot.last(adminID); got != messages.BadSchedule {
		t.Fatalf("got %q", got)
	}
	st, ok := e.h.Sessions.Get(adminID)
	if !ok || st.Step != models.StepUpdateValue {
		t.Fatalf("state lost after bad value: %+v", st)
	}

	e.text(adminID, "10.06.25 18:00")
	if s := e.student(t, "anna"); s.Schedule != "10.06.2025 18:00" {
		t.Fatalf("schedule %q, want canonical form", s.Schedule)
	}

	e.text(adminID, "/update_schedule")
	e.text(adminID, "anna")
	e.text(adminID, messages.ClearMarker)
	if s := e.student(t, "anna"); s.Schedule != "" {
		t.Fatalf("schedule not cleared: %q", s.Schedule)
	}
}

func TestScheduleValidationOff(t *testing.T) {
	e := newEnv(t, false)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna"})

	e.text(adminID, "/update_schedule")
	e.text(adminID, "anna")
	e.text(adminID, "в пятницу вечером")
	if s := e.student(t, "anna"); s.Schedule != "в пятницу вечером" {
		t.Fatalf("schedule %q", s.Schedule)
	}
}

func TestPendingStateWinsOverMenuLabels(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna"})

	e.text(adminID, "/update_homework")
	e.text(adminID, "anna")
	// the label is a value here, not a command
	e.text(adminID, messages.BtnStudents)

	if s := e.student(t, "anna"); s.Homework != messages.BtnStudents {
		t.Fatalf("homework %q", s.Homework)
	}
}

func TestCancel(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna"})

	e.text(adminID, "/update_homework")
	e.text(adminID, "anna")
	e.text(adminID, messages.BtnCancel)
	if got := e.bot.last(adminID); got != messages.Cancelled {
		t.Fatalf("got %q", got)
	}
	if _, ok := e.h.Sessions.Get(adminID); ok {
		t.Fatal("state survived cancel")
	}

	e.text(adminID, "/add_student")
	e.text(adminID, "/cancel")
	if _, ok := e.h.Sessions.Get(adminID); ok {
		t.Fatal("state survived /cancel")
	}
	if s := e.student(t, "anna"); s.Homework != "" {
		t.Fatalf("cancelled update was applied: %+v", s)
	}
}

func TestAddStudentAndLogin(t *testing.T) {
	e := newEnv(t, true)

	e.text(adminID, messages.BtnAddStudent)
	e.text(adminID, "anna")
	e.text(adminID, "secret")
	e.text(adminID, "Анна")
	if got := e.bot.last(adminID); got != messages.StudentAdded {
		t.Fatalf("got %q", got)
	}
	s := e.student(t, "anna")
	if s.PasswordHash == "secret" || !auth.CheckPassword(s.PasswordHash, "secret") {
		t.Fatal("password not hashed")
	}

	e.text(adminID, "/add_student")
	e.text(adminID, "anna")
	e.text(adminID, "other")
	e.text(adminID, "Другая")
	if got := e.bot.last(adminID); got != messages.StudentExists {
		t.Fatalf("duplicate: got %q", got)
	}

	// wrong password first
	e.text(55, "/login")
	e.text(55, "anna")
	e.text(55, "nope")
	if got := e.bot.last(55); got != messages.BadCredentials {
		t.Fatalf("got %q", got)
	}

	e.text(55, messages.BtnLogin)
	e.text(55, "anna")
	pw := e.text(55, "secret")
	if got := e.bot.last(55); got != messages.Greeting(models.RoleStudent, "Анна") {
		t.Fatalf("got %q", got)
	}
	if s := e.student(t, "anna"); s.ChatID != 55 {
		t.Fatalf("chat not bound: %+v", s)
	}

	deleted := false
	for _, r := range e.bot.requests {
		if d, ok := r.(tgbotapi.DeleteMessageConfig); ok && d.MessageID == pw.MessageID {
			deleted = true
		}
	}
	if !deleted {
		t.Fatal("password message not deleted")
	}

	e.text(55, "/homework")
	if got := e.bot.last(55); got != messages.Homework(&models.Student{}) {
		t.Fatalf("got %q", got)
	}
}

func TestRemoveStudent(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna", ChatID: 55})

	e.text(adminID, "/remove_student")
	e.text(adminID, "ghost")
	if got := e.bot.last(adminID); got != messages.StudentNotFound {
		t.Fatalf("got %q", got)
	}

	e.text(adminID, messages.BtnRemoveStudent)
	e.text(adminID, "anna")
	if got := e.bot.last(adminID); got != messages.StudentRemoved {
		t.Fatalf("got %q", got)
	}

	e.text(55, "/schedule")
	if got := e.bot.last(55); got != messages.NotRegistered {
		t.Fatalf("removed student still served: %q", got)
	}
}

func TestRegister(t *testing.T) {
	e := newEnv(t, true)

	e.text(77, "/register")
	e.text(77, "Пётр")
	if got := e.bot.last(77); got != messages.Greeting(models.RoleStudent, "Пётр") {
		t.Fatalf("got %q", got)
	}
	s := e.student(t, "77")
	if s.ChatID != 77 || s.PasswordHash != "" {
		t.Fatalf("unexpected record %+v", s)
	}

	e.text(77, messages.BtnRegister)
	if got := e.bot.last(77); got != messages.AlreadyRegistered {
		t.Fatalf("second register: %q", got)
	}
}

func TestStudentViews(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna", ChatID: 55, Homework: "стр. 10", Progress: "хорошо"})

	tests := []struct {
		in   string
		want string
	}{
		{"/homework", "Ваше домашнее задание: стр. 10"},
		{messages.BtnProgress, "Ваш прогресс: хорошо"},
		{messages.BtnSchedule, "Ваше расписание: " + messages.EmptyLesson},
		{"/about", "Математика, 5-11 класс"},
		{"/nonsense", messages.UnknownCommand},
		{"/students", messages.AccessDenied},
	}
	for _, tt := range tests {
		e.text(55, tt.in)
		if got := e.bot.last(55); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.in, got, tt.want)
		}
	}

	e.text(77, "/homework")
	if got := e.bot.last(77); got != messages.NotRegistered {
		t.Errorf("unknown user: got %q", got)
	}
}

func TestQuestionAndAnswer(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna", ChatID: 55})

	e.text(55, "Как решать №5?")
	if got := e.bot.last(55); got != messages.QuestionSent {
		t.Fatalf("got %q", got)
	}
	if got := e.bot.last(adminID); !strings.Contains(got, "Как решать №5?") || !strings.Contains(got, "Anna") {
		t.Fatalf("tutor got %q", got)
	}

	list, _ := e.db.ListSubmissions(e.ctx, 0)
	if len(list) != 1 || list[0].Kind != models.KindQuestion {
		t.Fatalf("submissions %+v", list)
	}
	id := list[0].ID

	// a student cannot press the answer button
	e.h.HandleCallback(e.ctx, &tgbotapi.CallbackQuery{ID: "cb1", From: &tgbotapi.User{ID: 55}, Data: messages.AnswerCallback(id)})
	if _, ok := e.h.Sessions.Get(55); ok {
		t.Fatal("student entered the answer flow")
	}

	e.h.HandleCallback(e.ctx, &tgbotapi.CallbackQuery{
		ID:      "cb2",
		From:    &tgbotapi.User{ID: adminID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: adminID, Type: "private"}},
		Data:    messages.AnswerCallback(id),
	})
	if got := e.bot.last(adminID); got != messages.AskAnswer {
		t.Fatalf("got %q", got)
	}
	e.text(adminID, "Через дискриминант.")
	if got := e.bot.last(55); got != messages.AnswerFromTutor("Через дискриминант.") {
		t.Fatalf("student got %q", got)
	}
	sub, _ := e.db.GetSubmission(e.ctx, id)
	if !sub.Answered {
		t.Fatal("submission not marked answered")
	}

	e.h.HandleCallback(e.ctx, &tgbotapi.CallbackQuery{ID: "cb3", From: &tgbotapi.User{ID: adminID}, Data: messages.AnswerCallback(id)})
	if got := e.bot.last(adminID); got != messages.AlreadyAnswered {
		t.Fatalf("got %q", got)
	}
}

func TestSubmitHomeworkPhoto(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna", ChatID: 55})

	e.text(55, messages.BtnSubmit)
	e.text(55, "")
	if got := e.bot.last(55); got != messages.EmptySubmission {
		t.Fatalf("empty: got %q", got)
	}

	photo := &tgbotapi.Message{
		MessageID: 900,
		From:      &tgbotapi.User{ID: 55},
		Chat:      &tgbotapi.Chat{ID: 55, Type: "private"},
		Photo:     []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
		Caption:   "№1-3",
	}
	e.h.HandleMessage(e.ctx, photo)
	if got := e.bot.last(55); got != messages.SubmissionSent {
		t.Fatalf("got %q", got)
	}

	list, _ := e.db.ListSubmissions(e.ctx, 0)
	if len(list) != 1 || list[0].FileID != "large" || list[0].Content != "№1-3" || list[0].Kind != models.KindHomework {
		t.Fatalf("submissions %+v", list)
	}

	var copied *tgbotapi.CopyMessageConfig
	for _, r := range e.bot.requests {
		if c, ok := r.(tgbotapi.CopyMessageConfig); ok {
			copied = &c
		}
	}
	if copied == nil || copied.ChatID != adminID || copied.FromChatID != 55 || copied.MessageID != 900 {
		t.Fatalf("photo not copied to tutor: %+v", copied)
	}
}

func TestContactLogin(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "+79990001122", Name: "Anna"})

	share := func(user, owner int64, phone string) {
		e.h.HandleMessage(e.ctx, &tgbotapi.Message{
			From:    &tgbotapi.User{ID: user},
			Chat:    &tgbotapi.Chat{ID: user, Type: "private"},
			Contact: &tgbotapi.Contact{PhoneNumber: phone, UserID: owner},
		})
	}

	// someone else's contact is refused
	share(77, 78, "79990001122")
	if got := e.bot.last(77); got != messages.ContactUnknown {
		t.Fatalf("got %q", got)
	}

	share(77, 77, "7 999 000-11-22")
	if got := e.bot.last(77); got != messages.Greeting(models.RoleStudent, "Anna") {
		t.Fatalf("got %q", got)
	}
	if s := e.student(t, "+79990001122"); s.ChatID != 77 {
		t.Fatalf("chat not bound: %+v", s)
	}
}

func TestIgnoresGroupChats(t *testing.T) {
	e := newEnv(t, true)
	e.h.HandleMessage(e.ctx, &tgbotapi.Message{
		From: &tgbotapi.User{ID: adminID},
		Chat: &tgbotapi.Chat{ID: -100, Type: "group"},
		Text: messages.BtnStudents,
	})
	if len(e.bot.texts(-100)) != 0 || len(e.bot.texts(adminID)) != 0 {
		t.Fatal("replied in a group chat")
	}
}

func TestAdminLists(t *testing.T) {
	e := newEnv(t, true)
	e.text(adminID, messages.BtnStudents)
	if got := e.bot.last(adminID); got != messages.NoStudents {
		t.Fatalf("got %q", got)
	}
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna"})
	e.text(adminID, "/students")
	if got := e.bot.last(adminID); !strings.Contains(got, "anna") {
		t.Fatalf("got %q", got)
	}
	e.text(adminID, "/homework_submissions")
	if got := e.bot.last(adminID); got != messages.NoSubmissions {
		t.Fatalf("got %q", got)
	}
}

func TestPasswordWithSpaces(t *testing.T) {
	e := newEnv(t, true)

	e.text(adminID, "/add_student")
	e.text(adminID, "anna")
	e.text(adminID, " secret ")
	e.text(adminID, "Анна")

	e.text(55, "/login")
	e.text(55, "anna")
	e.text(55, " secret ")
	if got := e.bot.last(55); got != messages.Greeting(models.RoleStudent, "Анна") {
		t.Fatalf("got %q", got)
	}
}

func TestLongQuestionReachesTutor(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna", ChatID: 55})

	e.text(55, strings.Repeat("ж", messages.TextLimit))
	got := e.bot.last(adminID)
	if got == "" {
		t.Fatal("tutor got nothing")
	}
	if n := len(utf16.Encode([]rune(got))); n > messages.TextLimit {
		t.Fatalf("forwarded text is %d units", n)
	}
}

func TestRegisterBindsChatWithRecord(t *testing.T) {
	e := newEnv(t, true)
	e.addStudent(t, models.Student{Login: "anna", Name: "Anna", ChatID: 77})

	// chat 77 is bound to anna, so /register is refused
	e.text(77, "/register")
	if got := e.bot.last(77); got != messages.AlreadyRegistered {
		t.Fatalf("got %q", got)
	}

	e.text(88, "/register")
	e.text(88, "Пётр")
	s, err := e.db.GetStudentByChat(e.ctx, 88)
	if err != nil || s.Login != "88" {
		t.Fatalf("chat 88 -> %+v, %v", s, err)
	}
}
