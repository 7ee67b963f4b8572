package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/model/chat"
)

// PromptBuilder renders the tutor system prompt and the user query.
type PromptBuilder struct {
	sections []string
}

// NewPromptBuilder returns a builder with the three-part answer structure.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		sections: []string{
			"1.  **Direct Answer (The 'What'):** Provide a clear and direct answer.",
			"2.  **Importance (The 'Why'):** Explain why this concept is important.",
			"3.  **Real-World Example (The 'Where/When'):** Give a simple, relatable real-world example.",
		},
	}
}

// SystemPrompt adapts tone to the student's level and detected emotion.
func (pb *PromptBuilder) SystemPrompt(level chat.SkillLevel, label emotion.Label) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("You are an expert tutor. A %s student is asking a question.", level))
	if instruction := emotion.Instruction(label); instruction != "" {
		builder.WriteString(" ")
		builder.WriteString(instruction)
	}
	builder.WriteString("\nYour response must be structured in three distinct parts:\n")
	builder.WriteString(strings.Join(pb.sections, "\n"))
	builder.WriteString(fmt.Sprintf("\nAdapt the complexity for a %s student. Use markdown for formatting.", level))
	return builder.String()
}

// Query wraps the question with optional grounding context from uploaded notes.
func (pb *PromptBuilder) Query(question string, context []string) string {
	if len(context) == 0 {
		return fmt.Sprintf("The student's question is: %q", question)
	}
	return fmt.Sprintf(
		"The student's question is: %q\nUse the following context from the student's notes to ground your answer: Context: %s",
		question,
		strings.Join(context, "\n"),
	)
}
