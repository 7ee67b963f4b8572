// Package tui is the terminal view: it renders the shared store and turns
// key presses into controller calls.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	clientchat "github.com/zhouzirui/moodtutor/internal/client/chat"
	"github.com/zhouzirui/moodtutor/internal/client/state"
	"github.com/zhouzirui/moodtutor/internal/model/chat"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A49FA5"))

	emotionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	logStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F25D94")).
			Bold(true)

	botStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	inputStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#04B575")).
			Padding(0, 1)

	disabledInputStyle = inputStyle.
				BorderForeground(lipgloss.Color("#626262"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

// Asker sends questions and selects the skill level.
type Asker interface {
	Submit(ctx context.Context, question string) error
	SelectLevel(raw string) error
}

// CameraEnabler starts emotion sampling.
type CameraEnabler interface {
	EnableCamera(ctx context.Context) error
}

// FileUploader uploads a document by path.
type FileUploader interface {
	UploadFile(ctx context.Context, path string) error
}

// Deps 视图驱动的各个组件
type Deps struct {
	Store  *state.Store
	Chat   Asker
	Camera CameraEnabler
	Upload FileUploader
}

type inputMode int

const (
	modeChat inputMode = iota
	modeUpload
)

type (
	stateChangedMsg struct{}
	submitDoneMsg   struct {
		question string
		err      error
	}
	cameraDoneMsg   struct{ err error }
	uploadDoneMsg   struct{ err error }
)

// Model is the bubbletea model.
type Model struct {
	ctx    context.Context
	deps   Deps
	input  string
	mode   inputMode
	notice string
	width  int
	height int
}

// NewModel 创建视图，ctx 约束它发起的所有请求。
func NewModel(ctx context.Context, deps Deps) Model {
	return Model{ctx: ctx, deps: deps, width: 80, height: 24}
}

// Run 启动程序并阻塞到用户退出。
func Run(ctx context.Context, deps Deps, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	_, err := tea.NewProgram(NewModel(ctx, deps), opts...).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.waitForChange()
}

func (m Model) waitForChange() tea.Cmd {
	changed := m.deps.Store.Changed()
	return func() tea.Msg {
		<-changed
		return stateChangedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateChangedMsg:
		return m, m.waitForChange()
	case submitDoneMsg:
		if errors.Is(msg.err, clientchat.ErrReplyInFlight) {
			// 另一条回复抢先开始：本次发送视为未发生，把问题还给输入框
			if m.input == "" {
				m.input = msg.question
			}
			return m, nil
		}
		m.notice = errorNotice("send", msg.err)
	case cameraDoneMsg:
		m.notice = errorNotice("camera", msg.err)
	case uploadDoneMsg:
		m.notice = errorNotice("upload", msg.err)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func errorNotice(action string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", action, err)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.mode == modeUpload {
			m.mode = modeChat
			m.input = ""
			return m, nil
		}
		return m, tea.Quit
	case "enter":
		return m.submit()
	case "tab":
		return m.toggleLevel()
	case "ctrl+e":
		return m.enableCamera()
	case "ctrl+o":
		if m.mode == modeChat {
			m.mode = modeUpload
			m.input = ""
		}
		return m, nil
	case "backspace":
		if runes := []rune(m.input); len(runes) > 0 {
			m.input = string(runes[:len(runes)-1])
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	case tea.KeySpace:
		m.input += " "
	}
	return m, nil
}

// submit 是发送动作，回复进行中时不响应。Replying 的检查与 Submit 之间存在窗口，
// 由 Submit 自身的单飞规则兜底。
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.mode == modeUpload {
		path := strings.TrimSpace(m.input)
		m.mode = modeChat
		m.input = ""
		if path == "" || m.deps.Upload == nil {
			return m, nil
		}
		ctx, uploader := m.ctx, m.deps.Upload
		return m, func() tea.Msg {
			return uploadDoneMsg{err: uploader.UploadFile(ctx, path)}
		}
	}

	if m.deps.Store.Replying() || strings.TrimSpace(m.input) == "" {
		return m, nil
	}
	question := m.input
	m.input = ""
	m.notice = ""
	ctx, asker := m.ctx, m.deps.Chat
	return m, func() tea.Msg {
		return submitDoneMsg{question: question, err: asker.Submit(ctx, question)}
	}
}

func (m Model) toggleLevel() (tea.Model, tea.Cmd) {
	next := chat.Advanced
	if m.deps.Store.Level() == chat.Advanced {
		next = chat.Beginner
	}
	if err := m.deps.Chat.SelectLevel(string(next)); err != nil {
		m.notice = errorNotice("level", err)
	}
	return m, nil
}

// enableCamera 只在模型就绪且摄像头关闭时触发。
func (m Model) enableCamera() (tea.Model, tea.Cmd) {
	snap := m.deps.Store.Snapshot()
	if m.deps.Camera == nil || snap.Models != state.ModelsReady || snap.Camera != state.CameraOff {
		return m, nil
	}
	ctx, enabler := m.ctx, m.deps.Camera
	return m, func() tea.Msg {
		return cameraDoneMsg{err: enabler.EnableCamera(ctx)}
	}
}

func (m Model) View() string {
	snap := m.deps.Store.Snapshot()

	title := titleStyle.Render("Emotion-Aware Tutor")
	status := m.renderStatus(snap)
	input := m.renderInput(snap)

	footer := []string{}
	if snap.UploadStatus != "" {
		footer = append(footer, statusStyle.Render("Upload: "+snap.UploadStatus))
	}
	if m.notice != "" {
		footer = append(footer, statusStyle.Render(m.notice))
	}
	footer = append(footer, helpStyle.Render("Enter send • Tab level • Ctrl+E camera • Ctrl+O upload file • Esc quit"))

	used := lipgloss.Height(title) + lipgloss.Height(status) + lipgloss.Height(input) + len(footer) + 2
	logHeight := m.height - used - 2
	if logHeight < 3 {
		logHeight = 3
	}
	log := logStyle.Width(m.innerWidth()).Render(m.renderLog(snap.Messages, logHeight))

	parts := append([]string{title, status, log, input}, footer...)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) innerWidth() int {
	if m.width < 20 {
		return 20
	}
	return m.width - 2
}

func (m Model) renderStatus(snap state.Snapshot) string {
	level := fmt.Sprintf("Level: %s", snap.Level)

	var camera string
	switch {
	case snap.Camera == state.CameraOn:
		camera = "Emotion: " + emotionStyle.Render(string(snap.Emotion))
	case snap.Camera == state.CameraStarting:
		camera = "Camera: starting..."
	case snap.Models == state.ModelsReady:
		camera = "Camera: off (Ctrl+E to enable)"
	default:
		// A failed load stays in this state for the rest of the run.
		camera = "Camera: loading models..."
	}

	return statusStyle.Render(level + "   " + camera)
}

// renderLog lays out every message and keeps the newest lines that fit.
func (m Model) renderLog(messages []chat.Message, height int) string {
	if len(messages) == 0 {
		return helpStyle.Render("Ask the tutor anything.")
	}

	width := m.innerWidth() - 4
	var lines []string
	for _, msg := range messages {
		var block string
		if msg.Sender == chat.SenderUser {
			block = userStyle.Width(width).Render("You: " + msg.Text)
		} else {
			text := msg.Text
			if text == "" {
				text = "…"
			}
			block = botStyle.Width(width).Render("Tutor: " + text)
		}
		lines = append(lines, strings.Split(block, "\n")...)
		lines = append(lines, "")
	}
	lines = lines[:len(lines)-1]

	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderInput(snap state.Snapshot) string {
	if m.mode == modeUpload {
		return inputStyle.Width(m.innerWidth()).Render("File path: " + m.input)
	}
	if snap.Replying {
		return disabledInputStyle.Width(m.innerWidth()).Render("Ask: " + m.input + "  (waiting for reply)")
	}
	return inputStyle.Width(m.innerWidth()).Render("Ask: " + m.input)
}
