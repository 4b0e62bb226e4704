// Package chat holds the upstream conversation types.
package chat

// Request is a single-turn prompt.
type Request struct {
	Prompt   string
	Tone     string
	Language string
}

// Reply is the upstream answer with the usage it reported.
type Reply struct {
	Content      string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CacheHit     bool
}

// TotalTokens returns input plus output tokens.
func (r Reply) TotalTokens() int64 { return r.InputTokens + r.OutputTokens }
