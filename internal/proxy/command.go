package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
	"github.com/nerrad567/gray-logic-cti/internal/commands"
)

// CommandCallback receives the outcome of DoCommand: an error, or the
// typed result of the command.
type CommandCallback func(err error, result any)

// DoCommand issues a named command. cb is invoked exactly once, possibly
// before DoCommand returns when the command cannot be sent. It never
// mutates engine state.
func (e *Engine) DoCommand(name string, args commands.Args, cb CommandCallback) {
	if cb == nil {
		cb = func(error, any) {}
	}
	start := time.Now()
	done := func(err error, res any) {
		if e.observer != nil {
			e.observer(name, time.Since(start), err)
		}
		cb(err, res)
	}

	cmd, ok := e.commands.Get(name)
	if op, isOp := operations[name]; !ok && isOp {
		e.runOperation(name, op, args, done)
		return
	}
	if !ok {
		done(fmt.Errorf("%w: %s", ErrUnknownCommand, name), nil)
		return
	}
	frame, err := cmd.Build(args)
	if err != nil {
		done(err, nil)
		return
	}

	req := ami.Request{
		Frame:      frame,
		Prefix:     name,
		Completion: cmd.Completion(),
		Timeout:    e.cfg.CommandTimeout,
	}
	if c, ok := cmd.(commands.Claimer); ok {
		req.Claims = c.Claims()
	}
	_, err = e.sender.Send(context.Background(), req, func(r ami.Result) {
		if r.Err != nil && !ami.IsProtocolError(r.Err) {
			done(r.Err, nil)
			return
		}
		res, err := cmd.Interpret(args, r)
		done(err, res)
	})
	if err != nil {
		done(err, nil)
	}
}

// Do issues a command and waits for its result or for ctx to end.
func (e *Engine) Do(ctx context.Context, name string, args commands.Args) (any, error) {
	type outcome struct {
		res any
		err error
	}
	ch := make(chan outcome, 1)
	e.DoCommand(name, args, func(err error, res any) {
		ch <- outcome{res: res, err: err}
	})
	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
