package execution

import (
	"log/slog"

	"mit.edu/dsg/gracejoin/logging"
)

// ExecutorContext holds all the state and resources required for query execution.
// It is passed to every Executor during Init.
type ExecutorContext struct {
	tables *TableManager
	// numBuffers is the page budget B granted to memory-hungry operators
	numBuffers int
	logger     *slog.Logger
}

func NewExecutorContext(tables *TableManager, numBuffers int) *ExecutorContext {
	return &ExecutorContext{
		tables:     tables,
		numBuffers: numBuffers,
		logger:     logging.Discard(),
	}
}

// TableManager returns the manager through which operators create and drop temporary tables.
func (ctx *ExecutorContext) TableManager() *TableManager {
	return ctx.tables
}

// NumBuffers returns the number of buffer pages an operator may hold at once.
func (ctx *ExecutorContext) NumBuffers() int {
	return ctx.numBuffers
}

func (ctx *ExecutorContext) Logger() *slog.Logger {
	return ctx.logger
}

// SetLogger replaces the logger handed to executors. A nil logger discards everything.
func (ctx *ExecutorContext) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx.logger = logger
}
