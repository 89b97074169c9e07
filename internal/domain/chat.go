package domain

// Chat roles understood by the reasoning prompts.
const (
	ChatRoleSystem = "system"
	ChatRoleUser   = "user"
)

// ChatMessage is one turn of a reasoning prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
