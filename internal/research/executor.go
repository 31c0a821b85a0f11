package research

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/llm"
)

const defaultCallTimeout = 60 * time.Second

// executor holds the settings shared by the three stage executors.
type executor struct {
	prompts     Prompts
	callTimeout time.Duration
	logger      *zap.Logger
}

type Option func(*executor)

func WithPrompts(prompts Prompts) Option {
	return func(e *executor) {
		e.prompts = prompts
	}
}

// WithCallTimeout bounds every individual model or search call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(e *executor) {
		if timeout > 0 {
			e.callTimeout = timeout
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func newExecutor(opts []Option) executor {
	e := executor{
		prompts:     DefaultPrompts(),
		callTimeout: defaultCallTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e executor) generateJSON(ctx context.Context, provider llm.Provider, messages []llm.Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return llm.GenerateStructured(callCtx, provider, messages)
}
