package ai

// FailureStage указывает, на каком шаге AI-предложение не удалось.
type FailureStage string

const (
	StageMissingKey  FailureStage = "missing_key"
	StageTimeout     FailureStage = "timeout"
	StageAPIError    FailureStage = "api_error"
	StageToolMissing FailureStage = "tool_missing"
	StageToolParse   FailureStage = "tool_parse"
	StageInvalidArgs FailureStage = "invalid_args"
)

// ProposeError несет этап отказа вместе с сообщением. Отказы AI никогда не
// становятся ошибкой для пользователя, оркестратор превращает их в warning.
type ProposeError struct {
	Stage   FailureStage
	Message string
}

func (e *ProposeError) Error() string {
	return e.Message
}

func newProposeError(stage FailureStage, message string) *ProposeError {
	return &ProposeError{Stage: stage, Message: message}
}
