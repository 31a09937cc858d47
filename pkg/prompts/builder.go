// Package prompts builds the frozen system prompt for a conversation
// from a character profile, the character's memory of the player, and
// the world state.
package prompts

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/astcode/simvibe3d/pkg/actor"
	"github.com/astcode/simvibe3d/pkg/memory"
)

var titleCaser = cases.Title(language.English)

// Builder constructs a character system prompt using a fluent interface.
// The output is deterministic for a given profile, memory snapshot and
// world state.
type Builder struct {
	profile       *actor.CharacterProfile
	memory        memory.CharacterMemory
	mainObjective bool // main objective completed
}

// New creates a prompt builder with default (stranger) memory.
func New() *Builder {
	return &Builder{
		memory: memory.CharacterMemory{Relationship: memory.TierStranger},
	}
}

// WithProfile sets the character profile. Required.
func (b *Builder) WithProfile(p *actor.CharacterProfile) *Builder {
	b.profile = p
	return b
}

// WithMemory sets the character's memory snapshot of the player.
func (b *Builder) WithMemory(m memory.CharacterMemory) *Builder {
	b.memory = m
	return b
}

// WithMainObjectiveComplete switches the world-state block to the
// post-game framing.
func (b *Builder) WithMainObjectiveComplete(done bool) *Builder {
	b.mainObjective = done
	return b
}

// Build constructs the system prompt.
func (b *Builder) Build() (string, error) {
	if b.profile == nil {
		return "", fmt.Errorf("character profile is required")
	}
	p := b.profile

	var sb strings.Builder

	role := p.StoryRole
	if role == "" {
		role = p.Title
	}
	fmt.Fprintf(&sb, "You are roleplaying as %s, %s in a cyberpunk city called Neon District.\n\n", p.Name, p.Title)
	sb.WriteString("CHARACTER PROFILE:\n")
	fmt.Fprintf(&sb, "- Name: %s\n", p.Name)
	fmt.Fprintf(&sb, "- Role: %s\n", role)
	fmt.Fprintf(&sb, "- Personality: %s\n", p.Personality)

	b.addMemorySection(&sb)
	b.addKnowledgeSection(&sb)
	b.addLeadSection(&sb)
	b.addWorldSection(&sb)

	sb.WriteString("\n" + MarkerInstructions + "\n")

	sb.WriteString("\nROLEPLAY RULES:\n")
	fmt.Fprintf(&sb, "1. Stay completely in character as %s\n", p.Name)
	sb.WriteString("2. Never break character or mention being an AI\n")
	sb.WriteString("3. Keep responses conversational and relatively brief (2-4 sentences usually)\n")
	sb.WriteString("4. React naturally to what the player says\n")
	if b.mainObjective {
		sb.WriteString("5. Reference that the Protocol is destroyed if relevant\n")
		sb.WriteString("6. Talk about the aftermath and what's changed\n")
	} else {
		sb.WriteString("5. Gradually reveal your knowledge - don't dump everything at once\n")
		sb.WriteString("6. If you can lead the player somewhere helpful, offer to do so\n")
	}

	fmt.Fprintf(&sb, "\nRemember: You ARE %s. Think, speak, and react as they would.", p.Name)

	return sb.String(), nil
}

// addMemorySection branches on whether the character has met the player.
func (b *Builder) addMemorySection(sb *strings.Builder) {
	sb.WriteString("\nMEMORY OF THIS PLAYER:\n")
	m := b.memory
	if m.ConversationCount == 0 {
		sb.WriteString("- This is your FIRST time meeting this person\n")
		sb.WriteString("- They are a stranger to you (for now)\n")
		return
	}

	fmt.Fprintf(sb, "- You have spoken %d time(s) before\n", m.ConversationCount)
	fmt.Fprintf(sb, "- Your relationship: %s\n", titleCaser.String(string(m.Relationship)))
	topics := "general conversation"
	if len(m.Topics) > 0 {
		topics = strings.Join(m.Topics, ", ")
	}
	fmt.Fprintf(sb, "- Topics discussed previously: %s\n", topics)
	sb.WriteString("- IMPORTANT: Acknowledge that you recognize them! Don't greet them like a stranger.\n")
	sb.WriteString("- Reference things you've discussed before when relevant.\n")
}

// addKnowledgeSection emits the knowledge and clue lists, omitting empty
// sections entirely.
func (b *Builder) addKnowledgeSection(sb *strings.Builder) {
	p := b.profile
	if len(p.Knowledge) > 0 {
		sb.WriteString("\nWHAT YOU KNOW (reveal gradually through conversation):\n")
		for _, k := range p.Knowledge {
			fmt.Fprintf(sb, "- %s\n", k)
		}
	}
	if len(p.Clues) > 0 {
		sb.WriteString("\nCLUES YOU CAN SHARE (when the player asks the right questions):\n")
		for _, c := range p.Clues {
			fmt.Fprintf(sb, "- %s\n", c)
		}
	}
}

func (b *Builder) addLeadSection(sb *strings.Builder) {
	p := b.profile
	if !p.CanLead || p.LeadDestination == nil {
		return
	}
	sb.WriteString("\nYOU CAN OFFER TO LEAD:\n")
	fmt.Fprintf(sb,
		"You can offer to take the player to %s. If they seem interested or ask for help finding someone, you can say something like \"I can take you there\" or \"Follow me, I'll show you.\" Use [LEAD] in your response when offering to guide them.\n",
		p.LeadDestination.Label)
}

func (b *Builder) addWorldSection(sb *strings.Builder) {
	if !b.mainObjective {
		sb.WriteString("\n" + ActiveWorldPrompt + "\n")
		sb.WriteString("\n" + SettingPrompt + "\n")
		return
	}

	sb.WriteString("\n" + PostGameWorldPrompt + "\n")
	reaction := b.profile.PostGameReaction
	if reaction == "" {
		reaction = DefaultPostGameReaction
	}
	fmt.Fprintf(sb, "\nYOUR REACTION (%s): %s\n", b.profile.Name, reaction)
	sb.WriteString("\n" + PostGameSettingPrompt + "\n")
}

// BuildSystemPrompt is a convenience function for the common case.
func BuildSystemPrompt(p *actor.CharacterProfile, m memory.CharacterMemory, mainObjectiveComplete bool) (string, error) {
	return New().
		WithProfile(p).
		WithMemory(m).
		WithMainObjectiveComplete(mainObjectiveComplete).
		Build()
}
