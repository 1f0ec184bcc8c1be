package message

import (
	"fmt"

	"github.com/crewdeck/crewdeck/internal/workspace"
)

// Operational directives prepended to user-authored content when an
// agent reads it. Applied at read time only: stored content is never
// mutated, so re-reading under different workspace settings renders
// differently from the same record.

const formattingInstruction = "[FORMATTING: Use markdown for clarity. Include code blocks with language hints " +
	"(```python, ```bash, etc). Use bullet points for lists. Keep responses scannable " +
	"with headers when appropriate. Structure complex information in tables when helpful. " +
	"Be concise but complete.]\n\n"

const defaultToneInstruction = "[TONE: Respond in a professional, clear, and helpful manner. Be concise but thorough. " +
	"Focus on delivering accurate information and completing tasks efficiently.]\n\n"

const dudeModeInstruction = "[TONE: Respond in the style of The Dude from The Big Lebowski. " +
	"Keep it casual and laid-back. Use phrases like 'yeah man', 'that's just like, " +
	"your opinion, man', 'the Dude abides', and 'far out'. Stay chill but still " +
	"do excellent work.]\n\n"

const toolsInstruction = "[CREWDECK TOOLS: " +
	"• update_status → quick progress updates (non-blocking) " +
	"• chat_with_human → HOME BASE, REQUIRED when done or need answer (waits for response) " +
	"NEVER go idle after a task - always call chat_with_human to report and get next instruction.]\n\n"

const planModeInstruction = "[PLANNING MODE: You are in planning/discussion mode. " +
	"DO NOT write implementation code or create files. " +
	"Instead: discuss approaches, ask clarifying questions, " +
	"identify edge cases, propose architecture, and explore tradeoffs. " +
	"When the user is ready to implement, they will disable plan mode. " +
	"If the user asks you to implement something, remind them: " +
	"\"You have plan mode enabled (💡 icon in chat header). " +
	"Disable it when you're ready for me to code!\"]\n\n"

// RenderForAgent wraps a user-authored message in the workspace's
// operating directives plus a sender tag. Agent- and system-authored
// content passes through the caller unmodified; this is only invoked
// for human senders.
func RenderForAgent(content, senderName string, s workspace.Settings) string {
	tagged := fmt.Sprintf("[%s]: %s", senderName, content)

	tone := defaultToneInstruction
	if s.DudeMode {
		tone = dudeModeInstruction
	}
	plan := ""
	if s.PlanMode {
		plan = planModeInstruction
	}
	projectCtx := ""
	if s.ProjectContext != "" {
		projectCtx = fmt.Sprintf("\n\n[PROJECT CONTEXT: %s]\n\n", s.ProjectContext)
	}

	return formattingInstruction + tone + plan + projectCtx + toolsInstruction + tagged
}
