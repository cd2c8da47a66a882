package conversation

import (
	"fmt"
	"regexp"

	"github.com/jkindrix/coral/internal/domain"
)

// Reply is how an intent answers. Exactly one of Literal, RandomChoice or
// Generated.
type Reply interface {
	reply()
}

// Literal always answers with Text.
type Literal struct {
	Text string
}

// RandomChoice answers with one of Texts, picked uniformly.
type RandomChoice struct {
	Texts []string
}

// Generated asks the language model to write the answer following
// Instruction.
type Generated struct {
	Instruction string
}

func (Literal) reply()      {}
func (RandomChoice) reply() {}
func (Generated) reply()    {}

// Intent is one rule table entry.
type Intent struct {
	Name string
	// Description is shown to the model during classification.
	Description string
	// Matcher is tried against the normalised message.
	Matcher   *regexp.Regexp
	Reply     Reply
	NextState domain.State
}

// Registry is the ordered, immutable rule table.
type Registry struct {
	intents []Intent
}

// NewRegistry validates intents and returns a registry preserving their order.
func NewRegistry(intents ...Intent) (*Registry, error) {
	for i, in := range intents {
		if in.Name == "" {
			return nil, fmt.Errorf("intent %d: name is required", i+1)
		}
		if in.Description == "" {
			return nil, fmt.Errorf("intent %q: description is required", in.Name)
		}
		if in.Matcher == nil {
			return nil, fmt.Errorf("intent %q: matcher is required", in.Name)
		}
		switch r := in.Reply.(type) {
		case Literal:
			if r.Text == "" {
				return nil, fmt.Errorf("intent %q: literal reply is empty", in.Name)
			}
		case RandomChoice:
			if len(r.Texts) == 0 {
				return nil, fmt.Errorf("intent %q: random choice has no texts", in.Name)
			}
		case Generated:
			if r.Instruction == "" {
				return nil, fmt.Errorf("intent %q: generated reply has no instruction", in.Name)
			}
		default:
			return nil, fmt.Errorf("intent %q: reply is required", in.Name)
		}
		if in.NextState != "" {
			if _, ok := in.NextState.Step(); !ok {
				return nil, fmt.Errorf("intent %q: next state %q is not a collection state", in.Name, in.NextState)
			}
		}
	}

	out := make([]Intent, len(intents))
	copy(out, intents)
	return &Registry{intents: out}, nil
}

// MustRegistry is like NewRegistry but panics on invalid input.
func MustRegistry(intents ...Intent) *Registry {
	r, err := NewRegistry(intents...)
	if err != nil {
		panic(err)
	}
	return r
}

// MatchRegex returns the first intent, in registry order, whose matcher
// accepts msg.
func (r *Registry) MatchRegex(msg string) (Intent, bool) {
	for _, in := range r.intents {
		if in.Matcher.MatchString(msg) {
			return in, true
		}
	}
	return Intent{}, false
}

// Descriptions lists the intent descriptions in registry order.
func (r *Registry) Descriptions() []string {
	out := make([]string, len(r.intents))
	for i, in := range r.intents {
		out[i] = in.Description
	}
	return out
}

// At resolves a 1-based classification answer. Zero and out-of-range
// indexes report false.
func (r *Registry) At(index int) (Intent, bool) {
	if index < 1 || index > len(r.intents) {
		return Intent{}, false
	}
	return r.intents[index-1], true
}

// Len returns the number of intents.
func (r *Registry) Len() int {
	return len(r.intents)
}

const contactText = "Get in touch with us!\n" +
	"- Phone: +123-456-7890\n" +
	"- Email: contact@codeit.com\n" +
	"- WhatsApp: +123-456-7890\n" +
	"- LinkedIn: linkedin.com/company/codeit\n" +
	"We’re here to help!"

// DefaultRegistry returns the Codeit rule table. Pricing sits before the
// broader services pattern.
func DefaultRegistry() *Registry {
	return MustRegistry(
		Intent{
			Name:        "how_are_you",
			Description: "Does the user want to know how the assistant or company is doing? (e.g., 'how are you', 'what’s up', 'how you doing')",
			Matcher:     regexp.MustCompile(`(?i)^(how are you|how are you doing|what(’|')s up|hru|how u doing)\??$`),
			Reply: Literal{Text: "I’m doing great! What about you? At Codeit, we craft digital magic, from custom websites and sleek mobile apps to UI/UX design, AI automation, and marketing solutions. " +
				"We're a crew of tech lovers making brands shine online. Let’s build something awesome together."},
		},
		Intent{
			Name:        "identity",
			Description: "Does the user want to know who the assistant is or what Codeit does? (e.g., 'who are you', 'what is codeit', 'what can you do')",
			Matcher:     regexp.MustCompile(`(?i)^(who are you|what are you|what can you do|what is codeit|tell me about (this )?company)\??$`),
			Reply: Literal{Text: "I'm Coral, your friendly tech-sidekick at Codeit! We’re a creative tech company turning ideas into high-impact digital experiences. " +
				"From websites to mobile apps, UI/UX, cloud setups, and AI, we cover it all. Whether you’re a startup or a scale-up, we’ve got your back. Ready to explore?"},
		},
		Intent{
			Name:        "pricing",
			Description: "Does the user ask about prices, rates, or how much a project costs? (e.g., 'how much does a website cost', 'pricing')",
			Matcher:     regexp.MustCompile(`(?i)\b(pricing|prices?|costs?|how much|rates)\b`),
			Reply: Literal{Text: "Every project is priced on its scope, so there’s no one-size-fits-all number. " +
				"Tell us a bit about your idea by starting a project and we’ll send a tailored quote, or book a free call to talk it through!"},
		},
		Intent{
			Name:        "services",
			Description: "Does the user want to know about services offered by Codeit? (e.g., 'what services do you offer', 'what do you do')",
			Matcher:     regexp.MustCompile(`(?i)services|what do you offer`),
			Reply: Literal{Text: "Here’s what we offer at Codeit:\n" +
				"- Web Development: Custom websites & e-commerce\n" +
				"- Mobile Apps: iOS & Android solutions\n" +
				"- UI/UX Design: User-friendly interfaces\n" +
				"- Cloud Solutions: Scalable infrastructure\n" +
				"- Digital Marketing: SEO & social media\n" +
				"- AI & ML: Smart automation\n" +
				"What interests you?"},
		},
		Intent{
			Name:        "start_project",
			Description: "Does the user want to start a project or work with Codeit? (e.g., 'start a project', 'work with you')",
			Matcher:     regexp.MustCompile(`(?i)start a project|work with you`),
			Reply:       Literal{Text: "Excited to kick off a project? Please share your name to get started!"},
			NextState:   domain.StateLeadName,
		},
		Intent{
			Name:        "schedule",
			Description: "Does the user want to schedule a meeting or book a call? (e.g., 'schedule a meeting', 'book a call')",
			Matcher:     regexp.MustCompile(`(?i)schedule|book a meeting|book a call`),
			Reply:       Literal{Text: "Let’s set up a free 15-minute consultation! When’s a good day for you?"},
			NextState:   domain.StateScheduleDate,
		},
		Intent{
			Name:        "contact",
			Description: "Does the user want contact information? (e.g., 'contact', 'reach out', 'phone', 'email')",
			Matcher:     regexp.MustCompile(`(?i)contact|reach out|phone|email|whatsapp|linkedin`),
			Reply:       Literal{Text: contactText},
		},
		Intent{
			Name:        "project_duration",
			Description: "Does the user ask how long a project takes? (e.g., 'how long does a project take')",
			Matcher:     regexp.MustCompile(`(?i)how long does a project take`),
			Reply:       Literal{Text: "Project timelines depend on scope. A typical web project takes 4–12 weeks. Want specifics for your idea?"},
		},
		Intent{
			Name:        "startups",
			Description: "Does the user ask if Codeit works with startups? (e.g., 'do you work with startups')",
			Matcher:     regexp.MustCompile(`(?i)do you work with startups`),
			Reply:       Literal{Text: "Absolutely, we love startups! We offer flexible solutions to fuel your growth. What’s your startup about?"},
		},
		Intent{
			Name:        "industries",
			Description: "Does the user ask about industries Codeit works with? (e.g., 'what industries')",
			Matcher:     regexp.MustCompile(`(?i)what industries`),
			Reply:       Literal{Text: "We work across tech, healthcare, e-commerce, and more. What’s your industry?"},
		},
		Intent{
			Name:        "joke",
			Description: "Does the user want a tech joke? (e.g., 'tell me a tech joke')",
			Matcher:     regexp.MustCompile(`(?i)tell me a joke|tech joke`),
			Reply:       Generated{Instruction: "Share a random tech joke in a fun, engaging tone."},
		},
		Intent{
			Name:        "advice",
			Description: "Does the user want startup advice? (e.g., 'startup advice', 'give me advice')",
			Matcher:     regexp.MustCompile(`(?i)startup advice|give me advice`),
			Reply: RandomChoice{Texts: []string{
				"Start small, build fast, learn faster.",
				"Solve a real pain point, not just a cool idea.",
				"Your first version won’t be perfect. Launch anyway.",
			}},
		},
	)
}
