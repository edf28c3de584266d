package store

const (
	logMsgDispatched     = "store: action dispatched"
	logMsgDispatchFailed = "store: dispatch failed"
	logAttrAction        = "action"
	logAttrError         = "error"
)

// Logger receives dispatch diagnostics. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}
