package models

// Role is the capability class of the current actor.
type Role int

const (
	RoleUnknown Role = iota
	RoleStudent
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleStudent:
		return "student"
	default:
		return "unknown"
	}
}

// Step tags the prompt a chat is currently answering.
type Step string

const (
	StepNone Step = ""

	StepLoginLogin    Step = "login:login"
	StepLoginPassword Step = "login:password"
	StepRegisterName  Step = "register:name"

	StepAddLogin    Step = "add:login"
	StepAddPassword Step = "add:password"
	StepAddName     Step = "add:name"
	StepRemoveLogin Step = "remove:login"

	StepUpdateLogin Step = "update:login"
	StepUpdateValue Step = "update:value"

	StepSubmitHomework Step = "submit:homework"
	StepAnswerText     Step = "answer:text"
)
