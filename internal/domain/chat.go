package domain

// ChatMessage is one turn sent to a chat-completion rewrite backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
