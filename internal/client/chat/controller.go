// Package chat drives one question/answer exchange at a time against the
// tutor backend and streams the answer into the shared message log.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/zhouzirui/moodtutor/internal/client/state"
	"github.com/zhouzirui/moodtutor/internal/model/chat"
)

// FailureNotice 在一次问答失败时替换 bot 消息。
const FailureNotice = "Sorry, something went wrong."

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrReplyInFlight = errors.New("a reply is already in flight")
)

// Fragments 是有序的回答片段流。回答结束时 Next 返回 io.EOF，流中断时返回其他错误。
type Fragments interface {
	Next() (string, error)
	Close() error
}

// Transport opens one answer stream per request.
type Transport interface {
	Ask(ctx context.Context, req chat.AskRequest) (Fragments, error)
}

// Controller 持有消息记录和回复中标记。
type Controller struct {
	log       *state.ChatLog
	levels    *state.LevelSelector
	transport Transport
}

// NewController wires the controller to its writer handles.
func NewController(chatLog *state.ChatLog, levels *state.LevelSelector, transport Transport) *Controller {
	return &Controller{log: chatLog, levels: levels, transport: transport}
}

// SelectLevel 解析 raw 并设为当前等级。
func (c *Controller) SelectLevel(raw string) error {
	level, err := chat.ParseLevel(raw)
	if err != nil {
		return err
	}
	return c.levels.Set(level)
}

// Submit 发送问题并阻塞到回答全部写入消息记录或问答失败为止。
// 空问题或已有回复进行中时直接返回错误，不修改记录；之后的任何失败都会
// 用 FailureNotice 替换 bot 消息，并返回包装后的错误。
func (c *Controller) Submit(ctx context.Context, question string) error {
	if strings.TrimSpace(question) == "" {
		return ErrEmptyQuestion
	}

	exchange, ok := c.log.Begin(question)
	if !ok {
		return ErrReplyInFlight
	}

	req := chat.AskRequest{
		Question: question,
		Level:    exchange.Level,
		Emotion:  exchange.Emotion,
	}
	if err := c.stream(ctx, req); err != nil {
		log.Printf("[chat] exchange failed: %v", err)
		c.log.Fail(FailureNotice)
		return fmt.Errorf("ask: %w", err)
	}

	c.log.Finish()
	return nil
}

func (c *Controller) stream(ctx context.Context, req chat.AskRequest) error {
	fragments, err := c.transport.Ask(ctx, req)
	if err != nil {
		return err
	}
	defer fragments.Close()

	for {
		fragment, err := fragments.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if fragment == "" {
			continue
		}
		if err := c.log.Append(fragment); err != nil {
			return fmt.Errorf("append fragment: %w", err)
		}
	}
}
