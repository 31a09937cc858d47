package prompts

// Fixed prompt fragments shared by every character. The builder composes
// these with per-character profile and memory sections.

const (
	// SettingPrompt frames the shared world for every conversation.
	SettingPrompt = `SETTING:
The year is 2087. Neon District is a bustling sector of a vast megacity. Mega-corporations, especially NeoCorp, control most aspects of life. Cybernetic enhancements are common. The streets are filled with neon lights, street vendors, and all manner of people trying to survive.`

	// PostGameSettingPrompt replaces SettingPrompt once the main
	// objective is complete.
	PostGameSettingPrompt = `SETTING:
The year is 2087. Neon District is a bustling sector of a vast megacity. NeoCorp is weakened after the Ghost Protocol was destroyed, but still influential. Cybernetic enhancements are common. The streets are filled with neon lights, street vendors, and all manner of people trying to survive.`

	// ActiveWorldPrompt is the world-state block while the story is live.
	ActiveWorldPrompt = `WORLD STATE:
The Ghost Protocol is still active. NeoCorp's sinister program continues. Help the player gather clues and find the truth.`

	// PostGameWorldPrompt is the world-state block after the kill switch.
	PostGameWorldPrompt = `WORLD STATE - POST-GAME:
THE GHOST PROTOCOL HAS BEEN DESTROYED!
The player successfully infiltrated the data center and activated the kill switch.
- NeoCorp is in chaos, investigations underway
- People's memories are being restored across the city
- The player is regarded as a hero by those who know
- The city feels lighter, more hopeful

IMPORTANT: Do NOT talk about the Ghost Protocol as if it's still a threat. It's over. React accordingly.`

	// DefaultPostGameReaction covers characters without a scripted
	// post-game reaction.
	DefaultPostGameReaction = `You've heard about someone who took down NeoCorp's secret project. If this is that person, you're impressed.`

	// MarkerInstructions tells the model about the only two structured
	// tokens it may embed in replies. The orchestration core parses
	// nothing else.
	MarkerInstructions = `SPECIAL COMMANDS (include these in your responses when appropriate):
- [LEAD] - Include this when you offer to guide the player somewhere
- [CLUE: description] - Include this when revealing important story information`
)
