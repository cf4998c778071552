// Package extractor turns raw user messages into typed memory records.
//
// Classification is heuristic: phrase indicators and small regular
// expressions decide which memory types a message produces, and each type
// carries fixed priority, confidence, and relevance seeds. A single message
// can produce several records, or none at all.
package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/memstrat/memstrat-go/pkg/logging"
	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/policy"
)

var (
	intentIndicators     = []string{"want", "need", "looking for", "interested in", "plan to", "hoping to"}
	preferenceIndicators = []string{"prefer", "like", "dislike", "favorite", "best", "better"}
	correctionIndicators = []string{"actually", "no", "wrong", "incorrect", "meant", "should be"}

	feedbackPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(that was|this is|it's)\s+(good|bad|helpful|not helpful|wrong|correct)`),
		regexp.MustCompile(`(thanks|thank you|helpful|not helpful)`),
		regexp.MustCompile(`\b(wrong|incorrect|right|correct)\b`),
	}

	positiveWords = []string{"good", "great", "helpful", "thanks", "correct", "right", "perfect"}
	negativeWords = []string{"bad", "wrong", "incorrect", "not helpful", "useless", "terrible"}
)

// defaultTopicVocabulary seeds topic detection when no domain vocabulary is
// configured.
var defaultTopicVocabulary = []string{
	"pricing", "fees", "billing", "account", "schedule", "support",
	"features", "requirements", "upgrade", "subscription", "refund",
	"delivery", "installation", "documentation",
}

// Message is the raw input to extraction.
type Message struct {
	ID             string
	ConversationID string
	UserID         string
	Sender         string
	Content        string
	CreatedAt      time.Time
}

// Config configures an Extractor.
type Config struct {
	// NodeID seeds the snowflake ID generator (0-1023, default 1).
	NodeID int64

	// TopicVocabulary is the word list used for topic detection. Defaults
	// to a general-purpose vocabulary.
	TopicVocabulary []string

	// Logger defaults to a nop logger.
	Logger logging.Logger
}

// Extractor classifies messages and persists the resulting records.
type Extractor struct {
	registry *policy.Registry
	store    memory.Store
	node     *snowflake.Node
	logger   logging.Logger
	topics   []*regexp.Regexp
}

// New creates an Extractor backed by the given store.
func New(registry *policy.Registry, store memory.Store, cfg *Config) (*Extractor, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	nodeID := cfg.NodeID
	if nodeID == 0 {
		nodeID = 1
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}

	vocabulary := cfg.TopicVocabulary
	if len(vocabulary) == 0 {
		vocabulary = defaultTopicVocabulary
	}
	topics := make([]*regexp.Regexp, 0, len(vocabulary))
	for _, word := range vocabulary {
		topics = append(topics, regexp.MustCompile(`\b`+regexp.QuoteMeta(strings.ToLower(word))+`s?\b`))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}

	return &Extractor{
		registry: registry,
		store:    store,
		node:     node,
		logger:   logger,
		topics:   topics,
	}, nil
}

// candidate is one classified memory before policy filtering.
type candidate struct {
	memoryType policy.MemoryType
	content    string
	context    map[string]interface{}
	priority   policy.Priority
	confidence float64
	relevance  float64
}

// ExtractFromMessage classifies the message under the given strategy and
// persists every candidate whose type the strategy allows. Disallowed
// candidates are dropped silently. An unclassifiable message, including one
// with blank content, yields an empty slice and no error.
func (e *Extractor) ExtractFromMessage(ctx context.Context, msg *Message, strategy policy.Strategy) ([]*memory.Record, error) {
	pol, err := e.registry.PolicyFor(strategy)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: message is nil", memory.ErrValidation)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return []*memory.Record{}, nil
	}

	content := strings.ToLower(msg.Content)

	candidates := []*candidate{
		e.classifyContext(msg),
		e.classifyIntent(msg, content),
		e.classifyPreference(msg, content),
		e.classifyFeedback(msg, content),
		e.classifyCorrection(msg, content),
		e.classifyTopic(msg, content),
	}

	now := time.Now()
	var records []*memory.Record
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if !pol.AllowsType(c.memoryType) {
			e.logger.Debug("dropping candidate not allowed by strategy",
				"memory_type", c.memoryType, "strategy", strategy)
			continue
		}

		retentionDays, autoExpire, err := e.registry.RetentionFor(strategy, c.memoryType)
		if err != nil {
			return nil, err
		}
		var expiresAt *time.Time
		if autoExpire {
			expiry := now.Add(time.Duration(retentionDays) * 24 * time.Hour)
			expiresAt = &expiry
		}

		record := &memory.Record{
			ID:             e.node.Generate().Int64(),
			ConversationID: msg.ConversationID,
			UserID:         msg.UserID,
			MemoryType:     c.memoryType,
			Strategy:       strategy,
			Priority:       c.priority,
			Content:        c.content,
			Context:        c.context,
			Confidence:     c.confidence,
			Relevance:      c.relevance,
			RAGWeight:      pol.RAGWeight,
			CreatedAt:      now,
			ExpiresAt:      expiresAt,
		}
		if err := record.Validate(); err != nil {
			return nil, err
		}
		if err := e.store.Insert(ctx, record); err != nil {
			return nil, fmt.Errorf("persist %s memory: %w", c.memoryType, err)
		}
		records = append(records, record)
	}

	e.logger.Info("extracted memories from message",
		"count", len(records), "strategy", strategy, "conversation_id", msg.ConversationID)
	return records, nil
}

func (e *Extractor) classifyContext(msg *Message) *candidate {
	return &candidate{
		memoryType: policy.TypeContext,
		content:    msg.Content,
		context: map[string]interface{}{
			"message_id": msg.ID,
			"sender":     msg.Sender,
			"timestamp":  msg.CreatedAt.Format(time.RFC3339),
		},
		priority:   policy.PriorityLow,
		confidence: 0.5,
		relevance:  0.3,
	}
}

func (e *Extractor) classifyIntent(msg *Message, content string) *candidate {
	for _, indicator := range intentIndicators {
		if !containsPhrase(content, indicator) {
			continue
		}
		pattern := regexp.MustCompile(regexp.QuoteMeta(indicator) + `\s+(.+?)(?:\.|$|,|\?)`)
		match := pattern.FindStringSubmatch(content)
		if match == nil {
			continue
		}
		intentText := strings.TrimSpace(match[1])
		return &candidate{
			memoryType: policy.TypeIntent,
			content:    fmt.Sprintf("User %s %s", indicator, intentText),
			context: map[string]interface{}{
				"original_message": msg.Content,
				"indicator":        indicator,
				"extracted_intent": intentText,
			},
			priority:   policy.PriorityHigh,
			confidence: 0.8,
			relevance:  0.9,
		}
	}
	return nil
}

func (e *Extractor) classifyPreference(msg *Message, content string) *candidate {
	for _, indicator := range preferenceIndicators {
		if !containsPhrase(content, indicator) {
			continue
		}
		pattern := regexp.MustCompile(`(.*?` + regexp.QuoteMeta(indicator) + `\s+.+?)(?:\.|$|,|\?)`)
		match := pattern.FindStringSubmatch(content)
		if match == nil {
			continue
		}
		preferenceText := strings.TrimSpace(match[1])
		return &candidate{
			memoryType: policy.TypePreference,
			content:    preferenceText,
			context: map[string]interface{}{
				"original_message": msg.Content,
				"indicator":        indicator,
				"preference_type":  classifyPreferenceKind(preferenceText),
			},
			priority:   policy.PriorityMedium,
			confidence: 0.7,
			relevance:  0.8,
		}
	}
	return nil
}

func (e *Extractor) classifyFeedback(msg *Message, content string) *candidate {
	for _, pattern := range feedbackPatterns {
		match := pattern.FindString(content)
		if match == "" {
			continue
		}
		sentiment := feedbackSentiment(match)
		priority := policy.PriorityMedium
		feedbackKind := "positive"
		if sentiment < 0 {
			priority = policy.PriorityHigh
			feedbackKind = "negative"
		}
		return &candidate{
			memoryType: policy.TypeFeedback,
			content:    "User feedback: " + match,
			context: map[string]interface{}{
				"original_message": msg.Content,
				"sentiment":        sentiment,
				"feedback_type":    feedbackKind,
			},
			priority:   priority,
			confidence: 0.8,
			relevance:  0.7,
		}
	}
	return nil
}

func (e *Extractor) classifyCorrection(msg *Message, content string) *candidate {
	for _, indicator := range correctionIndicators {
		if !containsPhrase(content, indicator) {
			continue
		}
		return &candidate{
			memoryType: policy.TypeCorrection,
			content:    "User correction: " + msg.Content,
			context: map[string]interface{}{
				"original_message":     msg.Content,
				"correction_indicator": indicator,
				"needs_kb_update":      true,
			},
			priority:   policy.PriorityCritical,
			confidence: 0.9,
			relevance:  1.0,
		}
	}
	return nil
}

func (e *Extractor) classifyTopic(msg *Message, content string) *candidate {
	var topics []string
	for _, pattern := range e.topics {
		if match := pattern.FindString(content); match != "" {
			topics = append(topics, strings.TrimSuffix(match, "s"))
		}
	}
	if len(topics) == 0 {
		return nil
	}
	return &candidate{
		memoryType: policy.TypeTopic,
		content:    "Discussion topics: " + strings.Join(topics, ", "),
		context: map[string]interface{}{
			"original_message": msg.Content,
			"topics":           topics,
			"topic_count":      len(topics),
		},
		priority:   policy.PriorityLow,
		confidence: 0.6,
		relevance:  0.5,
	}
}

// containsPhrase matches an indicator on word boundaries so short
// indicators like "no" do not fire inside longer words.
func containsPhrase(content, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(content[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordChar(content[start-1])
		afterOK := end == len(content) || !isWordChar(content[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func classifyPreferenceKind(text string) string {
	switch {
	case containsAny(text, "program", "course", "study"):
		return "academic"
	case containsAny(text, "time", "schedule", "mode"):
		return "schedule"
	case containsAny(text, "location", "campus", "distance"):
		return "location"
	case containsAny(text, "fee", "cost", "price", "budget"):
		return "financial"
	default:
		return "general"
	}
}

// feedbackSentiment scores text at -1, 0, or 1 from simple word counts.
func feedbackSentiment(text string) float64 {
	text = strings.ToLower(text)
	var positive, negative int
	for _, word := range positiveWords {
		if strings.Contains(text, word) {
			positive++
		}
	}
	for _, word := range negativeWords {
		if strings.Contains(text, word) {
			negative++
		}
	}
	switch {
	case positive > negative:
		return 1.0
	case negative > positive:
		return -1.0
	default:
		return 0.0
	}
}

func containsAny(text string, words ...string) bool {
	text = strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
