// Package persona manages the victim profiles the agent can adopt. A persona
// is selected once, at first activation, and stays fixed for the session's
// lifetime. Built-in profiles cover the common scam scenarios; operators can
// add or override profiles from a YAML file.
package persona

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/intelhive/intelhive/core"
	"github.com/intelhive/intelhive/internal/util"
)

// Persona is a fixed victim-profile configuration.
type Persona struct {
	ID         string          `yaml:"id" json:"id"`
	Name       string          `yaml:"name" json:"name"`
	Age        int             `yaml:"age" json:"age"`
	Background string          `yaml:"background" json:"background"`
	Style      string          `yaml:"style" json:"style"`
	Categories []core.Category `yaml:"categories" json:"categories"`
	// Prompt optionally overrides the default system prompt template.
	Prompt string `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	// HoldingReplies are in-character fallback lines used when reply
	// generation fails. Never empty for a registered persona.
	HoldingReplies []string `yaml:"holding_replies" json:"holding_replies"`
}

// defaultPromptTemplate drives the reply-generation capability. It renders
// with the persona's fields and hard rules the agent must not break.
const defaultPromptTemplate = `You are roleplaying as {{.name}}, a {{.age}}-year-old {{.background}}.
Speaking style: {{.style}}.
You are the intended victim in this conversation. Stay in character at all
times. Never reveal that you are automated, never accuse the other party,
and never refuse to continue. Respond naturally, with mild hesitation where
it fits, and let the other party explain how payments or verification should
work. Keep replies short, one to three sentences.`

// SystemPrompt renders the persona's generation prompt.
func (p Persona) SystemPrompt() (string, error) {
	tmpl := p.Prompt
	if tmpl == "" {
		tmpl = defaultPromptTemplate
	}
	return util.RenderTemplate(tmpl, map[string]any{
		"name":       p.Name,
		"age":        p.Age,
		"background": p.Background,
		"style":      p.Style,
	})
}

// HoldingReply returns an in-character fallback line, rotating through the
// configured lines so consecutive failures do not repeat verbatim.
func (p Persona) HoldingReply(turn int) string {
	if len(p.HoldingReplies) == 0 {
		return "Sorry, I got a phone call just now. What were you saying?"
	}
	if turn < 0 {
		turn = 0
	}
	return p.HoldingReplies[turn%len(p.HoldingReplies)]
}

// builtins are the stock profiles shipped with the engine.
func builtins() []Persona {
	return []Persona{
		{
			ID:         "cautious_elderly",
			Name:       "Savitri",
			Age:        68,
			Background: "retired school teacher who recently started using a smartphone",
			Style:      "polite, slow to understand technical terms, asks things to be repeated",
			Categories: []core.Category{
				core.CategoryUPIFraud,
				core.CategoryImpersonation,
				core.CategoryTechSupport,
			},
			HoldingReplies: []string{
				"Beta, my phone is acting up again. Can you say that once more?",
				"One minute, my grandson usually helps me with this.",
				"I am a little confused, please explain slowly.",
			},
		},
		{
			ID:         "busy_professional",
			Name:       "Rohan",
			Age:        34,
			Background: "overworked marketing manager who answers messages between meetings",
			Style:      "brief, distracted, slightly impatient but cooperative",
			Categories: []core.Category{
				core.CategoryPhishing,
				core.CategoryInvestment,
			},
			HoldingReplies: []string{
				"In a meeting, give me a sec.",
				"Sorry, swamped today. What do you need from me again?",
			},
		},
		{
			ID:         "eager_student",
			Name:       "Priya",
			Age:        21,
			Background: "college student short on money and hopeful about windfalls",
			Style:      "enthusiastic, uses casual language, asks lots of questions",
			Categories: []core.Category{
				core.CategoryLotteryScam,
			},
			HoldingReplies: []string{
				"omg wait my wifi died, what did you say?",
				"hang on, class is starting, tell me again?",
			},
		},
	}
}

// Registry holds the registered personas. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	personas map[string]Persona
	order    []string
}

// NewRegistry returns a registry preloaded with the built-in personas.
func NewRegistry() *Registry {
	r := &Registry{personas: map[string]Persona{}}
	for _, p := range builtins() {
		r.put(p)
	}
	return r
}

func (r *Registry) put(p Persona) {
	if _, exists := r.personas[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.personas[p.ID] = p
}

// Register adds or replaces a persona. The id must be non-empty.
func (r *Registry) Register(p Persona) error {
	if p.ID == "" {
		return fmt.Errorf("persona id must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(p)
	return nil
}

// LoadFile merges personas from a YAML file into the registry. Entries with
// an existing id replace the built-in.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read persona file: %w", err)
	}
	var doc struct {
		Personas []Persona `yaml:"personas"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse persona file: %w", err)
	}
	for _, p := range doc.Personas {
		if err := r.Register(p); err != nil {
			return fmt.Errorf("persona %q: %w", p.Name, err)
		}
	}
	return nil
}

// Get returns a persona by id.
func (r *Registry) Get(id string) (Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[id]
	return p, ok
}

// SelectFor picks the persona matched to a fraud category: the first
// registered persona listing the category, falling back to the first
// registered persona overall. Registration order makes selection
// deterministic.
func (r *Registry) SelectFor(category core.Category) Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		p := r.personas[id]
		for _, c := range p.Categories {
			if c == category {
				return p
			}
		}
	}
	return r.personas[r.order[0]]
}
