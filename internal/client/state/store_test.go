package state

import (
	"sync"
	"testing"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/model/chat"
)

func TestNewStoreDefaults(t *testing.T) {
	snap := New().Snapshot()
	if snap.Emotion != emotion.Neutral {
		t.Fatalf("expected neutral, got %s", snap.Emotion)
	}
	if snap.Level != chat.Beginner {
		t.Fatalf("expected Beginner, got %s", snap.Level)
	}
	if snap.Camera != CameraOff || snap.Models != ModelsLoading {
		t.Fatalf("unexpected lifecycle defaults %+v", snap)
	}
	if snap.Replying || len(snap.Messages) != 0 {
		t.Fatalf("expected empty log, got %+v", snap)
	}
}

func TestChatLogBeginSnapshotsLevelAndEmotion(t *testing.T) {
	s := New()
	if err := s.LevelSelector().Set(chat.Advanced); err != nil {
		t.Fatalf("Set level: %v", err)
	}
	s.EmotionCell().Set(emotion.Sad)

	ex, ok := s.ChatLog().Begin("what is a derivative?")
	if !ok {
		t.Fatal("expected Begin to succeed")
	}
	if ex.Level != chat.Advanced || ex.Emotion != emotion.Sad {
		t.Fatalf("unexpected exchange %+v", ex)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user + bot message, got %d", len(msgs))
	}
	if msgs[0].Sender != chat.SenderUser || msgs[0].Text != "what is a derivative?" {
		t.Fatalf("unexpected user message %+v", msgs[0])
	}
	if msgs[1].Sender != chat.SenderBot || msgs[1].Text != "" {
		t.Fatalf("unexpected placeholder %+v", msgs[1])
	}
	if !s.Replying() {
		t.Fatal("expected reply in flight")
	}
}

func TestChatLogBeginRejectedWhileReplying(t *testing.T) {
	s := New()
	log := s.ChatLog()
	log.Begin("first")

	if _, ok := log.Begin("second"); ok {
		t.Fatal("expected second Begin to be rejected")
	}
	if got := len(s.Messages()); got != 2 {
		t.Fatalf("rejected Begin must not touch the log, got %d messages", got)
	}
}

func TestChatLogAppendFinishAndFail(t *testing.T) {
	s := New()
	log := s.ChatLog()

	if err := log.Append("x"); err != ErrNoOpenMessage {
		t.Fatalf("expected ErrNoOpenMessage, got %v", err)
	}

	log.Begin("q1")
	for _, frag := range []string{"Hel", "lo", " World"} {
		if err := log.Append(frag); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	log.Finish()

	msgs := s.Messages()
	if msgs[1].Text != "Hello World" {
		t.Fatalf("unexpected bot text %q", msgs[1].Text)
	}
	if s.Replying() {
		t.Fatal("expected in-flight flag cleared")
	}
	if err := log.Append("late"); err != ErrNoOpenMessage {
		t.Fatalf("append after finish should fail, got %v", err)
	}

	log.Begin("q2")
	log.Append("partial")
	log.Fail("Sorry, something went wrong.")

	msgs = s.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[3].Text != "Sorry, something went wrong." {
		t.Fatalf("expected failure notice, got %q", msgs[3].Text)
	}
	if msgs[1].Text != "Hello World" {
		t.Fatal("earlier messages must not change")
	}
}

func TestCameraSwitchOnlyMovesForward(t *testing.T) {
	s := New()
	sw := s.CameraSwitch()

	if err := sw.Advance(CameraStarting); err != nil {
		t.Fatalf("Advance starting: %v", err)
	}
	if err := sw.Advance(CameraOn); err != nil {
		t.Fatalf("Advance on: %v", err)
	}
	if err := sw.Advance(CameraOn); err != nil {
		t.Fatalf("staying on should be allowed: %v", err)
	}
	if err := sw.Advance(CameraStarting); err != ErrCameraBackwards {
		t.Fatalf("expected ErrCameraBackwards, got %v", err)
	}

	sw.Abort()
	if s.Camera() != CameraOn {
		t.Fatal("Abort must not stop a running camera")
	}
}

func TestCameraSwitchAbortFailedStart(t *testing.T) {
	s := New()
	sw := s.CameraSwitch()
	sw.Advance(CameraStarting)
	sw.Abort()
	if s.Camera() != CameraOff {
		t.Fatalf("expected off after abort, got %s", s.Camera())
	}
}

func TestCameraSwitchRelease(t *testing.T) {
	s := New()
	sw := s.CameraSwitch()
	sw.Advance(CameraStarting)
	sw.Advance(CameraOn)
	<-s.Changed()

	sw.Release()
	if s.Camera() != CameraOff {
		t.Fatalf("expected off after release, got %s", s.Camera())
	}
	select {
	case <-s.Changed():
	default:
		t.Fatal("release must signal a change")
	}

	sw.Release()
	select {
	case <-s.Changed():
		t.Fatal("releasing an off camera is not a change")
	default:
	}
	if err := sw.Advance(CameraStarting); err != nil {
		t.Fatalf("a released camera must start again: %v", err)
	}
}

func TestLevelSelectorRejectsUnknown(t *testing.T) {
	s := New()
	if err := s.LevelSelector().Set(chat.SkillLevel("Expert")); err != ErrUnknownSkillLevel {
		t.Fatalf("expected ErrUnknownSkillLevel, got %v", err)
	}
	if s.Level() != chat.Beginner {
		t.Fatal("level must not change on rejection")
	}
}

func TestUploadSlotSingleFlight(t *testing.T) {
	s := New()
	slot := s.UploadSlot()

	if !slot.Begin("Uploading and processing...") {
		t.Fatal("expected first Begin to succeed")
	}
	if slot.Begin("again") {
		t.Fatal("expected second Begin to be rejected")
	}
	if s.UploadStatus() != "Uploading and processing..." {
		t.Fatalf("unexpected status %q", s.UploadStatus())
	}
	slot.Finish("notes.pdf processed successfully!")
	if s.UploadStatus() != "notes.pdf processed successfully!" || s.Snapshot().Uploading {
		t.Fatalf("unexpected final state %+v", s.Snapshot())
	}
}

func TestChangedCoalesces(t *testing.T) {
	s := New()
	s.ModelsFlag().Set(ModelsReady)
	s.EmotionCell().Set(emotion.Happy)
	s.LevelSelector().Set(chat.Advanced)

	select {
	case <-s.Changed():
	default:
		t.Fatal("expected a pending change signal")
	}
	select {
	case <-s.Changed():
		t.Fatal("signals should coalesce into one")
	default:
	}
}

func TestEmotionCellLastWriteWins(t *testing.T) {
	s := New()
	cell := s.EmotionCell()

	var wg sync.WaitGroup
	for _, label := range emotion.Labels {
		wg.Add(1)
		go func(l emotion.Label) {
			defer wg.Done()
			cell.Set(l)
		}(label)
	}
	wg.Wait()

	cell.Set(emotion.Angry)
	if s.Emotion() != emotion.Angry {
		t.Fatalf("expected the last write to win, got %s", s.Emotion())
	}
}
