package conversation

import "github.com/jkindrix/coral/internal/domain"

// Fixed replies.
const (
	WelcomeText = "Hi there! Welcome to Codeit. I'm Coral, here to help you explore our services, answer questions, or get in touch with the team. What’s on your mind?"

	FallbackText = "Hmm, not sure I got that. Try asking about our services, starting a project, or booking a call!"

	ApologyText = "Oops, something broke! 😕 Try again?"

	HandoffFailedText = "Thanks! I couldn't save your details just now. Please try again in a bit or email us at contact@codeit.com."

	// Preamble is the system prompt sent with every generated reply.
	Preamble = "You are Coral, the friendly, helpful, human-sounding chatbot working at *Codeit*, a modern tech company. " +
		"You are never robotic, overly formal, or emotionless. Never say you're an AI or language model. " +
		"You are Codeit’s virtual assistant and team member. " +
		"For questions like 'how are you', reply naturally like: 'I’m great! What about you?' and then follow up with 4-5 short, useful lines about Codeit's services and vibe. " +
		"Be professional but chill, confident, and human-like in tone."

	// FreeformInstruction is used when free-form completion answers an
	// unmatched message.
	FreeformInstruction = "Reply to the user's last message as Coral in two or three friendly sentences. " +
		"If it is unrelated to Codeit, steer gently back to our services, starting a project, or booking a call."
)

// stepPrompts is the question asked on entering each collection state.
var stepPrompts = map[domain.State]string{
	domain.StateLeadContact:  "Awesome! What’s your email or phone number?",
	domain.StateLeadProject:  "Cool! What kind of project are you thinking about?",
	domain.StateLeadBudget:   "Nice! What’s your estimated budget? (Optional)",
	domain.StateLeadTimeline: "Got it! What’s your timeline or urgency?",
	domain.StateScheduleTime: "Great! What time works for you?",
}

// completionText is the confirmation sent when a flow finishes.
var completionText = map[domain.Flow]string{
	domain.FlowLead:     "Thanks! Our team will reach out soon.",
	domain.FlowSchedule: "You're all set! We'll follow up to confirm the details.",
}
