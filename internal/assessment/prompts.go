package assessment

import (
	"strings"
	"time"

	"github.com/speaklens/speaklens/internal/models"
)

// turnContext carries everything a prompt rule may consult. Prompt rules are
// pure except for the one-time task-variant pick, which is staged on the
// metadata copy and committed by the caller.
type turnContext struct {
	Phase              models.Phase
	TurnIndex          int
	LastUserTranscript string
	TimeRemaining      time.Duration
}

const fallbackPrompt = "Please continue with your response."

// promptFor dispatches on the phase to produce the next prompt. md is a
// staged copy of the session metadata; the task rule may set TaskVariant on it.
func (e *Engine) promptFor(tc turnContext, md *models.SessionMetadata) string {
	switch tc.Phase {
	case models.PhaseInit:
		return initPrompt(md)
	case models.PhaseWarmup:
		return warmupPrompt(tc)
	case models.PhaseInterviewQ1, models.PhaseInterviewQ2:
		return interviewPrompt(tc)
	case models.PhaseTask:
		return e.taskPrompt(tc, md)
	case models.PhaseListening:
		return listeningPrompt(tc)
	case models.PhaseWrap:
		return wrapPrompt()
	case models.PhaseComplete:
		return fallbackPrompt
	default:
		return fallbackPrompt
	}
}

func initPrompt(md *models.SessionMetadata) string {
	if !md.ConsentRecorded {
		return "Welcome to the English assessment. I'll need to record your consent to proceed. Please say 'I consent to this assessment' after the beep."
	}
	if !md.MicTestCompleted {
		return "Great! Now let's test your microphone. Please say 'Testing, testing, one two three' so I can check the audio levels."
	}
	return "Perfect! Your microphone is working well. Let's begin the assessment. Tell me your first name and where you're calling from."
}

// warmupKeywords is the small set the re-ask rule looks for in the prior
// transcript before moving on.
var warmupKeywords = []string{"name", "call", "from"}

func warmupPrompt(tc turnContext) string {
	if tc.TurnIndex == 0 {
		return "Tell me your first name and where you're calling from."
	}

	transcript := strings.ToLower(tc.LastUserTranscript)
	for _, kw := range warmupKeywords {
		if strings.Contains(transcript, kw) {
			return "Thank you. Now let's move to the first interview question."
		}
	}
	return "I didn't catch that clearly. Could you please tell me your first name and where you're calling from?"
}

func interviewPrompt(tc turnContext) string {
	if tc.TurnIndex == 0 {
		if tc.Phase == models.PhaseInterviewQ1 {
			return "What do you usually do on a typical workday? Mention two tasks."
		}
		return "Do you prefer working from home or office? Why?"
	}

	if tc.Phase == models.PhaseInterviewQ1 {
		return "How do you prioritize those tasks?"
	}
	return "Can you give me an example of when the opposite approach might be better?"
}

func (e *Engine) taskPrompt(tc turnContext, md *models.SessionMetadata) string {
	if tc.TurnIndex == 0 {
		// Chosen exactly once per session, then pinned in metadata.
		if md.TaskVariant == "" {
			md.TaskVariant = e.pick()
		}

		if md.TaskVariant == models.TaskPicture {
			return "I'll show you an office scene. Describe what you see and what might be happening."
		}
		return "You're calling a customer to reschedule a meeting. Explain the reason, propose two new times, and confirm next steps."
	}

	return "Thank you. That completes the task section."
}

func listeningPrompt(tc turnContext) string {
	if tc.TurnIndex == 0 {
		return "I'll play a short business message. Listen carefully, then answer my question about it."
	}
	return "What did the speaker promise to send and why?"
}

func wrapPrompt() string {
	return "Thank you for completing the assessment. Your results will be available shortly."
}

// shouldAdvance evaluates the phase advancement predicate for the turn that
// was just appended. TurnIndex has already been incremented at this point.
func shouldAdvance(s *models.Session, turn models.Turn) bool {
	switch s.Phase {
	case models.PhaseInit:
		return s.Metadata.ConsentRecorded && s.Metadata.MicTestCompleted
	case models.PhaseWarmup:
		return s.TurnIndex > 0 && len(turn.UserTranscript) > 10
	case models.PhaseInterviewQ1, models.PhaseInterviewQ2,
		models.PhaseTask, models.PhaseListening, models.PhaseWrap:
		return s.TurnIndex > 0
	default:
		return false
	}
}
