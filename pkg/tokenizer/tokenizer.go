package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/username/deskchat/internal/domain/entities"
)

// DefaultEncoding is used when no encoding is configured
const DefaultEncoding = "cl100k_base"

// messageOverhead approximates the role and framing tokens of one message
const messageOverhead = 4

// Tokenizer provides token counting functionality
type Tokenizer struct {
	encoding     *tiktoken.Tiktoken
	encodingName string
}

// NewTokenizer creates a tokenizer for the named BPE encoding. Gemini does not
// publish its vocabulary, so counts are an estimate.
func NewTokenizer(encodingName string) (*Tokenizer, error) {
	if encodingName == "" {
		encodingName = DefaultEncoding
	}

	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encodingName, err)
	}

	return &Tokenizer{
		encoding:     encoding,
		encodingName: encodingName,
	}, nil
}

// Encoding returns the encoding name
func (t *Tokenizer) Encoding() string {
	return t.encodingName
}

// CountTokens counts tokens in a text string
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessageTokens counts tokens in a message, including role and formatting overhead
func (t *Tokenizer) CountMessageTokens(message entities.Message) int {
	return t.CountTokens(message.Content) + t.CountTokens(string(message.Role)) + messageOverhead
}

// CountConversationTokens counts the tokens a conversation would cost as history
func (t *Tokenizer) CountConversationTokens(conv entities.Conversation) int {
	total := 0
	for _, m := range conv.Messages {
		total += t.CountMessageTokens(m)
	}
	return total
}
