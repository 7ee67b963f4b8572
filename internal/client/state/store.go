// Package state holds the client's single owned store. Every field has one
// writer handle, handed to the component that owns that field; everything
// else reads through the Store's accessors or a Snapshot.
package state

import (
	"sync"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/model/chat"
)

// CameraState 表示摄像头采集的生命周期。
type CameraState int

const (
	CameraOff CameraState = iota
	CameraStarting
	CameraOn
)

func (c CameraState) String() string {
	switch c {
	case CameraStarting:
		return "starting"
	case CameraOn:
		return "on"
	default:
		return "off"
	}
}

// ModelsState 表示推理模型一次性加载的结果。
type ModelsState int

const (
	ModelsLoading ModelsState = iota
	ModelsReady
	ModelsFailed
)

func (m ModelsState) String() string {
	switch m {
	case ModelsReady:
		return "ready"
	case ModelsFailed:
		return "failed"
	default:
		return "loading"
	}
}

// Snapshot 是整个状态的一致副本。
type Snapshot struct {
	Messages     []chat.Message
	Replying     bool
	Emotion      emotion.Label
	Level        chat.SkillLevel
	Camera       CameraState
	Models       ModelsState
	UploadStatus string
	Uploading    bool
}

// Store 客户端共享状态
type Store struct {
	mu sync.RWMutex

	messages  []chat.Message
	openIndex int
	replying  bool

	emotion emotion.Label
	level   chat.SkillLevel
	camera  CameraState
	models  ModelsState

	uploadStatus string
	uploading    bool

	changed chan struct{}
}

// New 创建带初始值的状态：neutral 情绪、Beginner 等级、摄像头关闭、模型加载中。
func New() *Store {
	return &Store{
		openIndex: -1,
		emotion:   emotion.Neutral,
		level:     chat.Beginner,
		camera:    CameraOff,
		models:    ModelsLoading,
		changed:   make(chan struct{}, 1),
	}
}

// Changed 在每次修改后发出信号。信号会合并：读取方落后时只会看到一个待处理信号，不会积压。
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

func (s *Store) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Snapshot 在一次读锁内复制所有字段。
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Messages:     s.copyMessages(),
		Replying:     s.replying,
		Emotion:      s.emotion,
		Level:        s.level,
		Camera:       s.camera,
		Models:       s.models,
		UploadStatus: s.uploadStatus,
		Uploading:    s.uploading,
	}
}

// Messages 返回消息记录的副本
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyMessages()
}

func (s *Store) copyMessages() []chat.Message {
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Replying reports whether a reply is in flight.
func (s *Store) Replying() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replying
}

// Emotion returns the latest sampled label.
func (s *Store) Emotion() emotion.Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emotion
}

// Level returns the selected skill level.
func (s *Store) Level() chat.SkillLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

// Camera returns the capture state.
func (s *Store) Camera() CameraState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.camera
}

// Models returns the model load state.
func (s *Store) Models() ModelsState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models
}

// UploadStatus returns the upload status line.
func (s *Store) UploadStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploadStatus
}
