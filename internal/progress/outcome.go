package progress

import "fmt"

type Kind int

const (
	KindSuccess Kind = iota
	KindSkipped
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindSkipped:
		return "skipped"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of processing one instrument. Skipped covers normal
// data-insufficiency and filter rejections; Failed covers provider errors.
// Storage errors are not outcomes: they are returned and abort the batch.
type Outcome struct {
	Kind   Kind
	Reason string
	Err    error
}

func Success(reason string) Outcome {
	return Outcome{Kind: KindSuccess, Reason: reason}
}

func Skip(format string, args ...any) Outcome {
	return Outcome{Kind: KindSkipped, Reason: fmt.Sprintf(format, args...)}
}

func Fail(err error) Outcome {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return Outcome{Kind: KindFailed, Reason: reason, Err: err}
}

func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}
