package assistant

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/olistqa/olistqa/internal/completion"
	"github.com/olistqa/olistqa/internal/query"
)

type reply struct {
	text string
	err  error
}

type scriptedClient struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
	delay   time.Duration
}

func (c *scriptedClient) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if len(c.replies) == 0 {
		return "", completion.ErrNoAnswer
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	return next.text, next.err
}

type engineStep struct {
	result query.Result
	err    error
}

type scriptedEngine struct {
	mu    sync.Mutex
	steps []engineStep
	calls []string
}

func (e *scriptedEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, request.SQL)
	if len(e.steps) == 0 {
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: errors.New("no scripted result")}
	}
	next := e.steps[0]
	e.steps = e.steps[1:]
	return next.result, next.err
}

func failing(sqlText, message string) engineStep {
	return engineStep{err: &query.ExecutionError{SQL: sqlText, Err: errors.New(message)}}
}

func rows(columns []string, values ...[]any) engineStep {
	return engineStep{result: query.Result{Columns: columns, Rows: values}}
}
