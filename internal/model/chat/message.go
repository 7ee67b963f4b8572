package chat

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
)

// Sender identifies who produced a chat turn.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one bubble of the conversation log.
type Message struct {
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}

// SkillLevel 表示学生自报的水平。
type SkillLevel string

const (
	Beginner SkillLevel = "Beginner"
	Advanced SkillLevel = "Advanced"
)

// Levels lists the selectable skill levels in display order.
var Levels = []SkillLevel{Beginner, Advanced}

// ParseLevel 校验并返回技能等级，空字符串回退为 Beginner。
func ParseLevel(raw string) (SkillLevel, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Beginner, nil
	}
	for _, level := range Levels {
		if strings.EqualFold(string(level), trimmed) {
			return level, nil
		}
	}
	return "", fmt.Errorf("unknown skill level %q", raw)
}

// AskRequest is the payload of POST /ask and of the first websocket frame.
type AskRequest struct {
	Question string        `json:"question"`
	Level    SkillLevel    `json:"level"`
	Emotion  emotion.Label `json:"emotion"`
}

// UploadResponse is the JSON body returned by POST /upload.
type UploadResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
