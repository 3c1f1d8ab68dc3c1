// Package provider abstracts remote LLM backends using the Eino framework.
package provider

import (
	"context"
	"io"

	"github.com/cloudwego/eino/schema"

	"github.com/codesquad-ai/codesquad/pkg/types"
)

// Provider is one remote text-generation backend.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the list of available models.
	Models() []types.Model

	// Generate returns a complete response in one call.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Stream returns the response as a sequence of incremental chunks.
	Stream(ctx context.Context, req *Request) (*Stream, error)
}

// Request is a completion request.
type Request struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	MaxTokens   int               `json:"maxTokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

// Response is a complete, token-accounted completion.
type Response struct {
	Content string           `json:"content"`
	Usage   types.TokenUsage `json:"usage"`
}

// Chunk is one increment of a streamed completion. Usage is populated on
// the chunks where the backend reports it (typically the last).
type Chunk struct {
	Delta string
	Usage *types.TokenUsage
}

// Stream delivers completion chunks in order. Recv returns io.EOF when the
// stream is exhausted; any other error is a classified *Error.
type Stream struct {
	reader     *schema.StreamReader[*schema.Message]
	providerID string
	acc        string
	usage      types.TokenUsage
}

// NewStream wraps an Eino stream reader.
func NewStream(reader *schema.StreamReader[*schema.Message], providerID string) *Stream {
	return &Stream{reader: reader, providerID: providerID}
}

// Recv returns the next chunk.
func (s *Stream) Recv() (*Chunk, error) {
	msg, err := s.reader.Recv()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, Classify(s.providerID, err)
	}

	// Both configured backends stream deltas; content accumulates here so
	// Content returns the full response without re-deriving it per chunk.
	s.acc += msg.Content
	chunk := &Chunk{Delta: msg.Content}

	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		s.usage.Input = msg.ResponseMeta.Usage.PromptTokens
		s.usage.Output = msg.ResponseMeta.Usage.CompletionTokens
		u := s.usage
		chunk.Usage = &u
	}

	return chunk, nil
}

// Content returns the accumulated response text received so far.
func (s *Stream) Content() string { return s.acc }

// Usage returns the most recent token accounting reported by the backend.
func (s *Stream) Usage() types.TokenUsage { return s.usage }

// Close releases the underlying stream.
func (s *Stream) Close() {
	s.reader.Close()
}

// drain consumes a stream to completion, used by Generate implementations
// built on streaming backends.
func drain(stream *Stream) (*Response, error) {
	defer stream.Close()
	for {
		_, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return &Response{Content: stream.Content(), Usage: stream.Usage()}, nil
}
