package conversation

import "strings"

// NavEntry maps a service menu button to its canned description.
type NavEntry struct {
	// Key is matched by substring against the normalised message.
	Key string
	// Label is the menu line shown in the greeting. Entries without a label
	// still match but are not listed.
	Label    string
	Response string
}

// Navigator answers the service menu buttons. Entries are tried in order and
// the first key contained in the message wins.
type Navigator struct {
	entries []NavEntry
}

// NewNavigator creates a navigator over entries. Keys are lower-cased.
func NewNavigator(entries []NavEntry) *Navigator {
	n := &Navigator{entries: make([]NavEntry, 0, len(entries))}
	for _, e := range entries {
		e.Key = strings.ToLower(strings.TrimSpace(e.Key))
		if e.Key == "" {
			continue
		}
		n.entries = append(n.entries, e)
	}
	return n
}

// Lookup returns the canned response for the first key contained in msg.
// msg must already be normalised.
func (n *Navigator) Lookup(msg string) (string, bool) {
	if msg == "" {
		return "", false
	}
	for _, e := range n.entries {
		if strings.Contains(msg, e.Key) {
			return e.Response, true
		}
	}
	return "", false
}

// Menu renders the labelled entries as a bullet list.
func (n *Navigator) Menu() string {
	var sb strings.Builder
	for _, e := range n.entries {
		if e.Label == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(e.Label)
	}
	return sb.String()
}

// Normalize lower-cases and trims a message before matching.
func Normalize(msg string) string {
	return strings.ToLower(strings.TrimSpace(msg))
}

// DefaultNavigator returns the Codeit service menu.
func DefaultNavigator() *Navigator {
	return NewNavigator([]NavEntry{
		{
			Key:   "web development",
			Label: "Web Development: Custom websites & e-commerce",
			Response: "Web Development: Custom Websites & E-Commerce\n" +
				"At Codeit, our web dev wizards craft stunning, high-performing websites and e-commerce platforms. " +
				"From bold landing pages to complex online stores, we blend creativity with clean code to bring your brand alive online.",
		},
		{
			Key:   "mobile apps",
			Label: "Mobile Apps: iOS & Android solutions",
			Response: "Mobile Apps: iOS & Android Solutions\n" +
				"We build sleek, scalable mobile apps that live in users’ pockets and hearts. " +
				"Whether it’s Android or iOS, our Codeit crew turns your vision into intuitive, impactful apps that just feel right.",
		},
		{
			Key:   "ui/ux design",
			Label: "UI/UX Design: User-friendly interfaces",
			Response: "UI/UX Design: User-Friendly Interfaces\n" +
				"Design is the soul of experience, and at Codeit our UI/UX artists create interfaces that aren’t just pretty, but purposeful. " +
				"We make every click effortless, every screen delightful.",
		},
		{
			Key:   "cloud solutions",
			Label: "Cloud Solutions: Scalable infrastructure",
			Response: "Cloud Solutions: Scalable Infrastructure\n" +
				"Codeit brings the cloud down to earth. Our engineers build robust, secure, and scalable cloud solutions tailored to your growth. " +
				"From AWS to Azure, we keep your systems light, fast, and future-ready.",
		},
		{
			Key:   "digital marketing",
			Label: "Digital Marketing: SEO & social media",
			Response: "Digital Marketing: SEO & Social Media\n" +
				"At Codeit, our digital marketing maestros turn traffic into trust. " +
				"With SEO strategies, viral social content, and conversion-focused campaigns, we help your brand rise, roar, and resonate.",
		},
		{
			Key:   "ai & ml",
			Label: "AI & ML: Smart automation",
			Response: "AI & ML: Smart Automation\n" +
				"Let smart tech do the heavy lifting. Codeit’s AI & ML experts craft intelligent solutions that automate tasks, analyze data, and predict trends, " +
				"so you can focus on what truly matters.",
		},
		{
			Key:      "contact us",
			Response: contactText,
		},
	})
}
