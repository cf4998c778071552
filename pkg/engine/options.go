package engine

import (
	"github.com/memstrat/memstrat-go/pkg/knowledge"
	"github.com/memstrat/memstrat-go/pkg/logging"
	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/reaper"
	"github.com/memstrat/memstrat-go/pkg/transcript"
)

// Option customizes Engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	logger          logging.Logger
	store           memory.Store
	transcripts     transcript.Provider
	retriever       knowledge.Retriever
	writer          knowledge.Writer
	janitor         reaper.SessionJanitor
	topicVocabulary []string
}

func applyOptions(opts []Option) *engineOptions {
	options := &engineOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithLogger sets the structured logger used by every component.
func WithLogger(logger logging.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithStore injects a memory store, bypassing Database configuration.
func WithStore(store memory.Store) Option {
	return func(o *engineOptions) {
		o.store = store
	}
}

// WithTranscripts injects a transcript provider. Applications keeping chat
// history in their own storage use this to serve recent turns from it.
func WithTranscripts(provider transcript.Provider) Option {
	return func(o *engineOptions) {
		o.transcripts = provider
	}
}

// WithKnowledgeBase injects an external knowledge base, bypassing the
// built-in index. Retriever and writer may be the same value.
func WithKnowledgeBase(retriever knowledge.Retriever, writer knowledge.Writer) Option {
	return func(o *engineOptions) {
		o.retriever = retriever
		o.writer = writer
	}
}

// WithSessionJanitor adds session cleanup to retention sweeps.
func WithSessionJanitor(janitor reaper.SessionJanitor) Option {
	return func(o *engineOptions) {
		o.janitor = janitor
	}
}

// WithTopicVocabulary overrides the word list used for topic detection.
func WithTopicVocabulary(words []string) Option {
	return func(o *engineOptions) {
		o.topicVocabulary = words
	}
}
