package eventbuilder

type Logger interface {
	Info(message string, module string)
	Error(string)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, string) {}
func (NopLogger) Error(string)        {}
