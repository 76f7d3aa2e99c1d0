package execution

import (
	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/storage"
)

// Cursor adapts an initialized Executor to a check-then-take iteration protocol for callers outside the engine.
//
// HasNext may be called any number of times; it pulls at most one row ahead and keeps it until Next takes it.
// Rows returned by Next own their bytes. The cursor closes the executor as soon as it runs dry, fails, or is
// closed by the caller, whichever comes first.
type Cursor struct {
	exec   Executor
	desc   *storage.RawTupleDesc
	staged storage.Tuple
	ready  bool
	done   bool
	err    error
}

// NewCursor wraps exec, which must already have been initialized.
func NewCursor(exec Executor) *Cursor {
	return &Cursor{
		exec: exec,
		desc: storage.NewRawTupleDesc(exec.PlanNode().OutputSchema()),
	}
}

// OpenCursor initializes exec under ctx and wraps it. If Init fails the executor is closed and the error returned.
func OpenCursor(exec Executor, ctx *ExecutorContext) (*Cursor, error) {
	if err := exec.Init(ctx); err != nil {
		_ = exec.Close()
		return nil, err
	}
	return NewCursor(exec), nil
}

// Executor returns the wrapped executor.
func (c *Cursor) Executor() Executor {
	return c.exec
}

// HasNext reports whether Next will return a row.
func (c *Cursor) HasNext() bool {
	if c.ready {
		return true
	}
	if c.done {
		return false
	}
	if c.exec.Next() {
		t := c.exec.Current()
		c.staged = t.DeepCopy(c.desc)
		c.ready = true
		return true
	}
	c.err = c.exec.Error()
	c.finish()
	return false
}

// Next consumes the pending row. It fails with EmptyIterationError when no row can be produced; Err tells
// whether that is because of an earlier failure.
func (c *Cursor) Next() (storage.Tuple, error) {
	if !c.HasNext() {
		return storage.Tuple{}, common.NewGoDBError(common.EmptyIterationError, "cursor has no more rows")
	}
	c.ready = false
	t := c.staged
	c.staged = storage.Tuple{}
	return t, nil
}

// Remove is not supported: join output is read-only.
func (c *Cursor) Remove() error {
	return common.NewGoDBError(common.UnsupportedOperationError, "cannot remove rows through a join cursor")
}

// Err returns the error that ended iteration early, or nil.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the executor. Rows already returned stay valid.
func (c *Cursor) Close() error {
	c.ready = false
	c.staged = storage.Tuple{}
	return c.finish()
}

func (c *Cursor) finish() error {
	if c.done {
		return nil
	}
	c.done = true
	err := c.exec.Close()
	if c.err == nil {
		c.err = err
	}
	return err
}
