package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/astcode/simvibe3d/pkg/chat"
	"github.com/astcode/simvibe3d/pkg/motion"
)

const PlaceHolderText = "Say something..."

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	// Conversation state
	activeCharacter CharacterSummary
	history         []chat.ChatMessage
	leadOffer       bool
	questState      *QuestState
	followNotice    string

	// Character selection state
	showCharacterModal bool
	characters         []CharacterSummary
	selectedCharacter  int
	loadingCharacters  bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type charactersLoadedMsg struct {
	characters []CharacterSummary
	err        error
}

type conversationStartedMsg struct {
	character CharacterSummary
	response  *chat.StartResponse
	err       error
}

type turnResponseMsg struct {
	response *chat.TurnResponse
	err      error
}

type conversationEndedMsg struct {
	err error
}

type questStateMsg struct {
	state *QuestState
	err   error
}

type followMsg struct {
	state *motion.CharacterState
	err   error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	characterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	clueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")). // gold
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 300
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:             cfg,
		client:             client,
		textarea:           ta,
		chatViewport:       chatVp,
		metaViewport:       metaVp,
		ready:              false,
		showCharacterModal: true,
		loadingCharacters:  true,
		selectedCharacter:  0,
	}
}

func (m *ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("NEON DISTRICT") + "\n\n")

	content.WriteString("Talking to:\n")
	content.WriteString(m.activeCharacter.Name + "\n")
	if m.activeCharacter.Title != "" {
		content.WriteString(promptStyle.Render(m.activeCharacter.Title) + "\n")
	}
	content.WriteString("\n")

	content.WriteString("Messages:\n")
	content.WriteString(fmt.Sprintf("%d total\n\n", len(m.history)))

	if m.questState != nil {
		p := m.questState.Progress
		content.WriteString("Quest:\n")
		if p.Complete {
			content.WriteString("Complete!\n")
		} else {
			content.WriteString(fmt.Sprintf("Ch. %d: %s\n", p.Chapter, p.StageTitle))
			content.WriteString(fmt.Sprintf("%d%% done\n", p.Percent))
		}
		content.WriteString(fmt.Sprintf("%d clues found\n\n", p.CluesFound))

		if len(m.questState.Objectives) > 0 {
			content.WriteString("Objectives:\n")
			for _, obj := range m.questState.Objectives {
				content.WriteString("• " + obj.Description + "\n")
			}
			content.WriteString("\n")
		}
	}

	if m.leadOffer {
		content.WriteString(clueStyle.Render("Offering to lead!") + "\n")
		content.WriteString("Type /follow\n\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /quest: Quest log\n")
	content.WriteString("• /follow: Follow\n")
	content.WriteString("• /end: Walk away\n")

	return content.String()
}

// writeChatContent builds the chat content from history for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding

	var content strings.Builder

	content.WriteString(titleStyle.Render("SIMVIBE 3D") + "\n\n")
	content.WriteString("The neon rain never stops in the District.\n")
	content.WriteString("Type below to talk. People are disappearing; someone here knows why.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(chatWidth-6, 1))) + "\n\n")

	for _, msg := range m.history {
		switch msg.Role {
		case chat.ChatRoleAgent, chat.ChatRoleSystem:
			content.WriteString(m.formatCharacterResponse(msg.Content, chatWidth) + "\n\n")
		case chat.ChatRoleUser:
			userMsg := userStyle.Render("You: ") + wordwrap.String(msg.Content, chatWidth-6) + "\n\n"
			content.WriteString(userMsg)
		}
	}

	if m.followNotice != "" {
		content.WriteString(clueStyle.Render(m.followNotice) + "\n\n")
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m ConsoleUI) Init() tea.Cmd {
	if m.showCharacterModal {
		return m.loadCharacters()
	}
	return textarea.Blink
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle character modal first
	if m.showCharacterModal {
		return m.updateCharacterModal(msg)
	}

	// Handle quit modal second
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.textarea, tiCmd = m.textarea.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizePanels()
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())
		m.ready = true

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.textarea.Reset()
			m.loading = true
			m.progressTick = 0
			m.followNotice = ""

			m.history = append(m.history, chat.ChatMessage{
				Role:    chat.ChatRoleUser,
				Content: input,
			})
			m.writeChatContent()

			return m, tea.Batch(m.sendTurnMessage(input), progressTick())
		}

	case turnResponseMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			m.writeChatContent()
			currentContent := m.chatViewport.View()
			errorMsg := errorStyle.Render("Error: "+msg.err.Error()) + "\n\n"
			m.chatViewport.SetContent(currentContent + errorMsg)
		} else {
			m.history = append(m.history, chat.ChatMessage{
				Role:    chat.ChatRoleAgent,
				Content: msg.response.Message,
			})
			if msg.response.LeadOffer {
				m.leadOffer = true
			}
			if msg.response.Clue != "" {
				m.followNotice = "Clue discovered: " + msg.response.Clue
			}
			m.writeChatContent()
			m.metaViewport.SetContent(m.writeMetadata())
		}
		m.chatViewport.GotoBottom()
		return m, m.refreshQuestState()

	case questStateMsg:
		if msg.err == nil && msg.state != nil {
			m.questState = msg.state
			m.metaViewport.SetContent(m.writeMetadata())
		}

	case conversationEndedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		// Back to character selection; post-game arrivals may appear
		m.history = nil
		m.leadOffer = false
		m.followNotice = ""
		m.showCharacterModal = true
		m.loadingCharacters = true
		return m, m.loadCharacters()

	case followMsg:
		m.loading = false
		if msg.err != nil {
			m.followNotice = ""
			m.writeChatContent()
			currentContent := m.chatViewport.View()
			m.chatViewport.SetContent(currentContent + errorStyle.Render("Error: "+msg.err.Error()) + "\n\n")
		} else {
			m.leadOffer = false
			label := msg.state.Label
			if label == "" {
				label = "somewhere important"
			}
			m.followNotice = fmt.Sprintf("%s sets off toward %s. Stay close.", m.activeCharacter.Name, label)
			m.writeChatContent()
			m.metaViewport.SetContent(m.writeMetadata())
		}
		m.chatViewport.GotoBottom()

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m *ConsoleUI) resizePanels() {
	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m *ConsoleUI) formatCharacterResponse(response string, width int) string {
	prefix := m.activeCharacter.Name + ": "
	wrapped := wordwrap.String(response, width-len(prefix))
	return characterStyle.Render(speakerStyle.Render(prefix)) + wrapped
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))
	m.textarea.Reset()

	switch cmd {
	case "/help":
		helpText := `
Commands:
• /help - Show this help
• /quest - Show quest log and clues
• /follow - Accept a character's offer to lead you somewhere
• /copy - Copy the transcript to the clipboard
• /end - End the conversation and pick someone else
• Ctrl+C - Quit

How to play:
• Talk to people about the disappearances
• Characters remember you between conversations
• Some will offer to lead you to the next lead
`
		currentContent := m.chatViewport.View()
		m.chatViewport.SetContent(currentContent + titleStyle.Render("Help:") + helpText + "\n")
		m.chatViewport.GotoBottom()

	case "/quest":
		var questText strings.Builder
		questText.WriteString(titleStyle.Render("Quest Log:") + "\n")
		if m.questState == nil {
			questText.WriteString("No quest data yet.\n")
		} else {
			p := m.questState.Progress
			if p.Complete {
				questText.WriteString("The Ghost Protocol is destroyed. The erased are coming home.\n")
			} else {
				questText.WriteString(fmt.Sprintf("Chapter %d: %s (%d%%)\n", p.Chapter, p.StageTitle, p.Percent))
				for _, obj := range m.questState.Objectives {
					questText.WriteString("• " + obj.Description + "\n")
				}
			}
			if len(m.questState.Clues) > 0 {
				questText.WriteString("\nClues:\n")
				for _, c := range m.questState.Clues {
					questText.WriteString(clueStyle.Render("• ") + c.Text + promptStyle.Render(" ("+c.Source+")") + "\n")
				}
			}
		}
		questText.WriteString("\n")

		currentContent := m.chatViewport.View()
		m.chatViewport.SetContent(currentContent + questText.String())
		m.chatViewport.GotoBottom()

	case "/follow":
		if !m.leadOffer {
			currentContent := m.chatViewport.View()
			m.chatViewport.SetContent(currentContent + promptStyle.Render("No one is offering to lead you right now.") + "\n\n")
			m.chatViewport.GotoBottom()
			return m, nil
		}
		m.loading = true
		m.progressTick = 0
		return m, tea.Batch(m.acceptLeadOffer(), progressTick())

	case "/copy":
		var transcript strings.Builder
		for _, msg := range m.history {
			switch msg.Role {
			case chat.ChatRoleAgent:
				transcript.WriteString(m.activeCharacter.Name + ": " + msg.Content + "\n")
			case chat.ChatRoleUser:
				transcript.WriteString("You: " + msg.Content + "\n")
			}
		}
		notice := promptStyle.Render("Transcript copied to clipboard.")
		if err := clipboard.WriteAll(transcript.String()); err != nil {
			notice = errorStyle.Render("Copy failed: " + err.Error())
		}
		currentContent := m.chatViewport.View()
		m.chatViewport.SetContent(currentContent + notice + "\n\n")
		m.chatViewport.GotoBottom()

	case "/end":
		m.loading = true
		return m, m.endActiveConversation()
	}

	return m, nil
}

func (m ConsoleUI) sendTurnMessage(message string) tea.Cmd {
	return func() tea.Msg {
		resp, err := sendTurn(m.client, m.config.APIBaseURL, m.activeCharacter.ID, message)
		return turnResponseMsg{resp, err}
	}
}

func (m ConsoleUI) refreshQuestState() tea.Cmd {
	return func() tea.Msg {
		state, err := getQuestState(m.client, m.config.APIBaseURL)
		return questStateMsg{state, err}
	}
}

func (m ConsoleUI) loadCharacters() tea.Cmd {
	return func() tea.Msg {
		characters, err := listCharacters(m.client, m.config.APIBaseURL)
		return charactersLoadedMsg{characters, err}
	}
}

func (m ConsoleUI) startConversationWith(character CharacterSummary) tea.Cmd {
	return func() tea.Msg {
		resp, err := startConversation(m.client, m.config.APIBaseURL, character.ID)
		return conversationStartedMsg{character, resp, err}
	}
}

func (m ConsoleUI) endActiveConversation() tea.Cmd {
	return func() tea.Msg {
		return conversationEndedMsg{endConversation(m.client, m.config.APIBaseURL)}
	}
}

func (m ConsoleUI) acceptLeadOffer() tea.Cmd {
	return func() tea.Msg {
		state, err := followCharacter(m.client, m.config.APIBaseURL, m.activeCharacter.ID)
		return followMsg{state, err}
	}
}

func (m ConsoleUI) updateCharacterModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case charactersLoadedMsg:
		m.loadingCharacters = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.characters = msg.characters
			if m.selectedCharacter >= len(m.characters) {
				m.selectedCharacter = 0
			}
		}

	case conversationStartedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.activeCharacter = msg.character
			m.leadOffer = msg.response.LeadOffer
			m.followNotice = ""
			if msg.response.Resumed {
				m.history = msg.response.History
			} else {
				m.history = []chat.ChatMessage{{
					Role:    chat.ChatRoleAgent,
					Content: msg.response.Greeting,
				}}
			}
			m.showCharacterModal = false
			if m.width > 0 && m.height > 0 {
				m.resizePanels()
			}
			m.writeChatContent()
			m.metaViewport.SetContent(m.writeMetadata())
			m.textarea.Focus()
			m.ready = true
		}
		return m, tea.Batch(textarea.Blink, m.refreshQuestState())

	case tea.KeyMsg:
		if m.loadingCharacters {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		if m.err != nil {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				m.showQuitModal = true
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyUp:
			if m.selectedCharacter > 0 {
				m.selectedCharacter--
			}
		case tea.KeyDown:
			if m.selectedCharacter < len(m.characters)-1 {
				m.selectedCharacter++
			}
		case tea.KeyEnter:
			if len(m.characters) > 0 {
				m.loading = true
				return m, m.startConversationWith(m.characters[m.selectedCharacter])
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				if m.showCharacterModal {
					return m, nil
				}
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Leave the District?"))
	content.WriteString("\n\n")
	content.WriteString("Your conversations are saved. The quest will be waiting.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderCharacterModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	if m.loadingCharacters {
		content.WriteString(modalTitleStyle.Render("Loading the District..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Finding out who's around..."))
	} else if m.err != nil {
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(fmt.Sprintf("Failed to load characters: %v", m.err)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	} else if m.loading {
		content.WriteString(modalTitleStyle.Render("Approaching..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Getting their attention..."))
	} else {
		content.WriteString(modalTitleStyle.Render("Who do you approach?"))
		content.WriteString("\n\n")

		for i, c := range m.characters {
			label := c.Name
			if c.Title != "" {
				label = fmt.Sprintf("%s, %s", c.Name, c.Title)
			}
			if i == m.selectedCharacter {
				content.WriteString(modalSelectedItemStyle.Render(fmt.Sprintf("▶ %s", label)))
			} else {
				content.WriteString(modalItemStyle.Render(fmt.Sprintf("  %s", label)))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showCharacterModal {
		return m.renderCharacterModal()
	}

	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30
	}
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
