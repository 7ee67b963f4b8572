package state

import (
	"errors"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/model/chat"
)

var (
	ErrNoOpenMessage     = errors.New("no open bot message")
	ErrCameraBackwards   = errors.New("camera state can only move forward")
	ErrUnknownSkillLevel = errors.New("unknown skill level")
)

// Exchange 是 ChatLog.Begin 在提交瞬间记录的等级和情绪。
type Exchange struct {
	Level   chat.SkillLevel
	Emotion emotion.Label
}

// ChatLog 消息记录的写入句柄，归聊天控制器所有。
type ChatLog struct{ s *Store }

// ChatLog returns the writer handle for the message log and reply flag.
func (s *Store) ChatLog() *ChatLog { return &ChatLog{s: s} }

// Begin 在同一临界区内追加用户消息和一条空的待完成 bot 消息、置起回复中标记，
// 并记录当前等级和情绪。已有回复进行中时返回 false，不做任何修改。
func (l *ChatLog) Begin(question string) (Exchange, bool) {
	s := l.s
	s.mu.Lock()
	if s.replying {
		s.mu.Unlock()
		return Exchange{}, false
	}

	s.messages = append(s.messages,
		chat.Message{Text: question, Sender: chat.SenderUser},
		chat.Message{Text: "", Sender: chat.SenderBot},
	)
	s.openIndex = len(s.messages) - 1
	s.replying = true
	ex := Exchange{Level: s.level, Emotion: s.emotion}
	s.mu.Unlock()

	s.notify()
	return ex, true
}

// Append 把片段追加到待完成的 bot 消息末尾。
func (l *ChatLog) Append(fragment string) error {
	s := l.s
	s.mu.Lock()
	if s.openIndex < 0 {
		s.mu.Unlock()
		return ErrNoOpenMessage
	}
	s.messages[s.openIndex].Text += fragment
	s.mu.Unlock()

	s.notify()
	return nil
}

// Finish closes the open message and releases the in-flight flag.
func (l *ChatLog) Finish() {
	l.close(nil)
}

// Fail 用 notice 替换待完成消息的内容，关闭它并清除回复中标记。
func (l *ChatLog) Fail(notice string) {
	l.close(&notice)
}

func (l *ChatLog) close(replacement *string) {
	s := l.s
	s.mu.Lock()
	if s.openIndex >= 0 && replacement != nil {
		s.messages[s.openIndex].Text = *replacement
	}
	s.openIndex = -1
	s.replying = false
	s.mu.Unlock()

	s.notify()
}

// EmotionCell 情绪标签的写入句柄，归采样器所有。
type EmotionCell struct{ s *Store }

// EmotionCell returns the writer handle for the emotion label.
func (s *Store) EmotionCell() *EmotionCell { return &EmotionCell{s: s} }

// Set 覆盖标签，以最后一次调用为准。
func (c *EmotionCell) Set(label emotion.Label) {
	s := c.s
	s.mu.Lock()
	changed := s.emotion != label
	s.emotion = label
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// LevelSelector is the skill level's writer, owned by the user-facing controller.
type LevelSelector struct{ s *Store }

// LevelSelector returns the writer handle for the skill level.
func (s *Store) LevelSelector() *LevelSelector { return &LevelSelector{s: s} }

// Set selects a level.
func (l *LevelSelector) Set(level chat.SkillLevel) error {
	known := false
	for _, candidate := range chat.Levels {
		if candidate == level {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownSkillLevel
	}

	s := l.s
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()

	s.notify()
	return nil
}

// CameraSwitch is the camera state's writer, owned by the sampler.
type CameraSwitch struct{ s *Store }

// CameraSwitch returns the writer handle for the camera state.
func (s *Store) CameraSwitch() *CameraSwitch { return &CameraSwitch{s: s} }

// Advance 让状态只向前推进，原地不动也允许。
func (c *CameraSwitch) Advance(to CameraState) error {
	s := c.s
	s.mu.Lock()
	if to < s.camera {
		s.mu.Unlock()
		return ErrCameraBackwards
	}
	s.camera = to
	s.mu.Unlock()

	s.notify()
	return nil
}

// Abort 把启动失败的摄像头退回 off，不影响已在运行的摄像头。
func (c *CameraSwitch) Abort() {
	s := c.s
	s.mu.Lock()
	if s.camera != CameraStarting {
		s.mu.Unlock()
		return
	}
	s.camera = CameraOff
	s.mu.Unlock()

	s.notify()
}

// Release 在采集被主动关闭后把状态退回 off，可以从任何状态调用。
func (c *CameraSwitch) Release() {
	s := c.s
	s.mu.Lock()
	if s.camera == CameraOff {
		s.mu.Unlock()
		return
	}
	s.camera = CameraOff
	s.mu.Unlock()

	s.notify()
}

// ModelsFlag is the model load state's writer, owned by the model loader.
type ModelsFlag struct{ s *Store }

// ModelsFlag returns the writer handle for the model load state.
func (s *Store) ModelsFlag() *ModelsFlag { return &ModelsFlag{s: s} }

// Set records the load outcome.
func (m *ModelsFlag) Set(state ModelsState) {
	s := m.s
	s.mu.Lock()
	s.models = state
	s.mu.Unlock()

	s.notify()
}

// UploadSlot is the upload status's writer, owned by the uploader.
type UploadSlot struct{ s *Store }

// UploadSlot returns the writer handle for the upload status.
func (s *Store) UploadSlot() *UploadSlot { return &UploadSlot{s: s} }

// Begin 设置过渡状态并标记上传中。已有上传进行时返回 false，状态保持不变。
func (u *UploadSlot) Begin(status string) bool {
	s := u.s
	s.mu.Lock()
	if s.uploading {
		s.mu.Unlock()
		return false
	}
	s.uploading = true
	s.uploadStatus = status
	s.mu.Unlock()

	s.notify()
	return true
}

// Finish 替换状态文字并清除上传中标记。
func (u *UploadSlot) Finish(status string) {
	s := u.s
	s.mu.Lock()
	s.uploading = false
	s.uploadStatus = status
	s.mu.Unlock()

	s.notify()
}
