package handlers

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-tutor-bot/internal/messages"
	"telegram-tutor-bot/internal/models"
)

// Command is what an inbound message asks for, independent of how it was typed.
type Command int

const (
	CmdNone Command = iota
	CmdUnknown
	CmdStart
	CmdAbout
	CmdCancel
	CmdLogin
	CmdRegister
	CmdHomework
	CmdSchedule
	CmdProgress
	CmdSubmitHomework
	CmdAddStudent
	CmdRemoveStudent
	CmdStudents
	CmdSubmissions
	CmdUpdateSchedule
	CmdUpdateHomework
	CmdUpdateProgress
)

var slashCommands = map[string]Command{
	"start":                CmdStart,
	"help":                 CmdStart,
	"about":                CmdAbout,
	"cancel":               CmdCancel,
	"login":                CmdLogin,
	"register":             CmdRegister,
	"homework":             CmdHomework,
	"schedule":             CmdSchedule,
	"progress":             CmdProgress,
	"submit_homework":      CmdSubmitHomework,
	"add_student":          CmdAddStudent,
	"remove_student":       CmdRemoveStudent,
	"students":             CmdStudents,
	"homework_submissions": CmdSubmissions,
	"update_schedule":      CmdUpdateSchedule,
	"update_homework":      CmdUpdateHomework,
	"update_progress":      CmdUpdateProgress,
}

var menuLabels = map[string]Command{
	messages.BtnLogin:    CmdLogin,
	messages.BtnRegister: CmdRegister,
	messages.BtnAbout:    CmdAbout,
	messages.BtnCancel:   CmdCancel,

	messages.BtnHomework: CmdHomework,
	messages.BtnSchedule: CmdSchedule,
	messages.BtnProgress: CmdProgress,
	messages.BtnSubmit:   CmdSubmitHomework,

	messages.BtnAddStudent:     CmdAddStudent,
	messages.BtnRemoveStudent:  CmdRemoveStudent,
	messages.BtnStudents:       CmdStudents,
	messages.BtnSubmissions:    CmdSubmissions,
	messages.BtnUpdateSchedule: CmdUpdateSchedule,
	messages.BtnUpdateHomework: CmdUpdateHomework,
	messages.BtnUpdateProgress: CmdUpdateProgress,
}

// ParseCommand maps a slash command or an exact menu label to a Command.
// Plain text gives CmdNone, an unrecognised slash command CmdUnknown.
func ParseCommand(msg *tgbotapi.Message) Command {
	if msg == nil {
		return CmdNone
	}
	if msg.IsCommand() {
		if c, ok := slashCommands[msg.Command()]; ok {
			return c
		}
		return CmdUnknown
	}
	return menuLabels[msg.Text]
}

// UpdateField reports which record field an update command overwrites.
func (c Command) UpdateField() (models.Field, bool) {
	switch c {
	case CmdUpdateSchedule:
		return models.FieldSchedule, true
	case CmdUpdateHomework:
		return models.FieldHomework, true
	case CmdUpdateProgress:
		return models.FieldProgress, true
	}
	return "", false
}

func (c Command) AdminOnly() bool {
	switch c {
	case CmdAddStudent, CmdRemoveStudent, CmdStudents, CmdSubmissions,
		CmdUpdateSchedule, CmdUpdateHomework, CmdUpdateProgress:
		return true
	}
	return false
}

func (c Command) StudentOnly() bool {
	switch c {
	case CmdHomework, CmdSchedule, CmdProgress, CmdSubmitHomework:
		return true
	}
	return false
}
