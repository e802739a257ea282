package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/memoryglass/memoryglass-go/pkg/cache"
	"github.com/memoryglass/memoryglass-go/pkg/classify"
	"github.com/memoryglass/memoryglass-go/pkg/gateway"
	"github.com/memoryglass/memoryglass-go/pkg/llm"
	"github.com/memoryglass/memoryglass-go/pkg/session"
)

// historicalRecallLimit bounds how many past-session summaries the keyword
// fast path consults when the live window has no match.
const historicalRecallLimit = 5

// subjectPatterns extract the object a location question is about. Evaluated
// in order; the first capture wins.
var subjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`where (?:is|are|was|were) (?:my |the )?(.+)`),
	regexp.MustCompile(`where did i (?:leave|put|place) (?:my |the )?(.+)`),
	regexp.MustCompile(`did i (?:leave|put|place) (?:my |the )?(.+)`),
}

// trailingNoise is stripped from an extracted subject before matching.
var trailingNoise = []string{"somewhere", "anywhere", "around here", "again"}

// Ask resolves a question about what is or was visible.
//
// Resolution is tiered, cheapest first: per-user rate check, two-tier answer
// cache, deterministic keyword match over the memory window for location
// questions, and finally the throttled external model. When the external
// call fails after retries, a memory-only fallback answer is produced rather
// than an error, provided the question is memory-oriented.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	if req.UserID == "" || strings.TrimSpace(req.Question) == "" {
		return nil, NewPipelineError("Ask", ErrBadInput)
	}
	if req.Media != nil {
		if err := c.validateMedia(req.Media); err != nil {
			return nil, err
		}
	}

	now := req.Timestamp
	if now.IsZero() {
		now = c.now()
	}
	question := strings.TrimSpace(req.Question)

	if d := c.limiter.Allow(req.UserID, now); !d.OK {
		return nil, &RateLimitError{RetryAfter: d.RetryAfter}
	}

	if e, ok := c.caches.Get(req.UserID, question); ok {
		c.cacheHits.Add(1)
		c.logger.Debug("answer cache hit", "user_id", req.UserID)
		return c.respond(ctx, question, e, true, now), nil
	}

	cls := classify.Classify(question)
	view, _ := c.sessions.Window(req.UserID, now)

	if entry := c.keywordMatch(ctx, req.UserID, question, cls, view, now); entry != nil {
		c.keywordHits.Add(1)
		c.cacheStore(req.UserID, question, entry)
		return c.respond(ctx, question, entry, false, now), nil
	}

	entry, err := c.modelInvoke(ctx, question, req.Media, cls, view, now)
	if err != nil {
		return nil, err
	}

	c.cacheStore(req.UserID, question, entry)
	return c.respond(ctx, question, entry, false, now), nil
}

// keywordMatch is the deterministic fast path: a location question is
// answered from the memory window (and then the durable history) without any
// model call. Returns nil when the path does not apply or nothing matches;
// the caller falls through to the model.
func (c *Client) keywordMatch(ctx context.Context, userID, question string, cls classify.Classification, view session.View, now time.Time) *cache.Entry {
	if cls.QueryType != classify.QueryLocation || cls.IsPresentTense {
		return nil
	}

	subject := extractSubject(question)
	if subject == "" {
		return nil
	}

	if obj, ok := bestMatch(view.Objects, subject); ok {
		return &cache.Entry{
			Answer:          foundAnswer(subject, obj, now),
			UsedMemory:      true,
			ObjectsFound:    len(view.Objects),
			ActivitiesFound: len(view.Activities),
			CreatedAt:       now,
		}
	}

	if c.durable != nil {
		summaries, err := c.durable.FindHistoricalSummaries(ctx, userID, historicalRecallLimit)
		if err != nil {
			c.logger.Warn("historical recall failed", "user_id", userID, "err", err)
		}
		for _, s := range summaries {
			if obj, ok := bestMatch(s.Objects, subject); ok {
				return &cache.Entry{
					Answer:     foundAnswer(subject, obj, now),
					UsedMemory: true,
					CreatedAt:  now,
				}
			}
		}
	}

	// No match anywhere; the model gets the question.
	return nil
}

// modelInvoke asks the external model, falling back to a memory-only answer
// when the call fails after retries and the question is memory-oriented.
func (c *Client) modelInvoke(ctx context.Context, question string, media *llm.Media, cls classify.Classification, view session.View, now time.Time) (*cache.Entry, error) {
	memText := renderWindow(view, now)
	useMemory := cls.IsMemoryQuestion && memText != ""

	// Strong memory questions are answerable from window text alone, so
	// the (large) media payload is not sent at all.
	callMedia := media
	if cls.IsStrongMemoryQuestion && memText != "" {
		callMedia = nil
	}

	prompt := buildPrompt(question, memText, useMemory, callMedia != nil)
	text, err := c.gw.Generate(ctx, prompt, callMedia)
	if err == nil {
		c.modelCalls.Add(1)
		e := &cache.Entry{Answer: strings.TrimSpace(text), UsedMemory: useMemory, CreatedAt: now}
		if useMemory {
			e.ObjectsFound = len(view.Objects)
			e.ActivitiesFound = len(view.Activities)
		}
		return e, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, llm.ErrBadInput) {
		return nil, NewPipelineError("Ask", fmt.Errorf("%w: %v", ErrBadInput, err))
	}

	// One cheaper text-only retry before giving up: if the failed call
	// carried media, the payload itself may be what the provider choked on.
	if callMedia != nil && cls.IsMemoryQuestion && memText != "" {
		if text, rerr := c.gw.Generate(ctx, buildPrompt(question, memText, true, false), nil); rerr == nil {
			c.modelCalls.Add(1)
			return &cache.Entry{
				Answer:          strings.TrimSpace(text),
				UsedMemory:      true,
				ObjectsFound:    len(view.Objects),
				ActivitiesFound: len(view.Activities),
				CreatedAt:       now,
			}, nil
		}
	}

	// The memory-only fallback is reserved for memory-classified questions;
	// anything else surfaces the failure.
	if errors.Is(err, gateway.ErrExhausted) || errors.Is(err, llm.ErrThrottled) ||
		errors.Is(err, llm.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		if cls.IsMemoryQuestion {
			c.fallbacks.Add(1)
			c.logger.Warn("model unavailable, serving memory fallback", "err", err)
			return fallbackEntry(view, now), nil
		}
		if errors.Is(err, llm.ErrUnavailable) {
			return nil, NewPipelineError("Ask", fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		return nil, NewPipelineError("Ask", fmt.Errorf("%w: %v", ErrTransient, err))
	}

	return nil, NewPipelineError("Ask", fmt.Errorf("%w: %v", ErrUnavailable, err))
}

// respond converts a cache entry into the wire response, synthesizing voice
// audio when a synthesizer is configured. Synthesis failures are logged and
// the answer is returned without audio.
func (c *Client) respond(ctx context.Context, question string, e *cache.Entry, cached bool, now time.Time) *AskResponse {
	resp := &AskResponse{
		Answer:     e.Answer,
		Question:   question,
		Timestamp:  toMillis(now),
		UsedMemory: e.UsedMemory,
		Cached:     cached,
		Fallback:   e.Fallback,
	}
	if e.UsedMemory {
		resp.MemoryContext = &MemoryContext{
			ObjectsFound:    e.ObjectsFound,
			ActivitiesFound: e.ActivitiesFound,
		}
	}

	if c.voice != nil {
		if audio, err := c.voice.Synthesize(ctx, e.Answer); err != nil {
			c.logger.Warn("voice synthesis failed", "err", err)
		} else {
			resp.VoiceAudio = "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(audio)
		}
	}
	return resp
}

// cacheStore writes the entry to the answer caches. Fallback answers only go
// to the short tier: they suppress duplicate submissions but must not pin a
// degraded answer for the long TTL.
func (c *Client) cacheStore(userID, question string, e *cache.Entry) {
	if e.Fallback {
		c.short.Set(userID, question, e)
		return
	}
	c.caches.Set(userID, question, e)
}

// extractSubject pulls the object name out of a location question. Empty
// when no pattern captures anything usable.
func extractSubject(question string) string {
	q := strings.ToLower(strings.TrimSpace(question))
	q = strings.TrimRight(q, "?!. ")

	for _, p := range subjectPatterns {
		m := p.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		subject := strings.TrimSpace(m[1])
		for _, noise := range trailingNoise {
			subject = strings.TrimSpace(strings.TrimSuffix(subject, noise))
		}
		if len(subject) >= 3 {
			return subject
		}
	}
	return ""
}

// bestMatch finds the observation best matching the subject: substring match
// either direction, highest confidence wins, most recent breaks ties.
func bestMatch(objects []session.ObservedObject, subject string) (session.ObservedObject, bool) {
	var best session.ObservedObject
	found := false
	for _, o := range objects {
		desc := strings.ToLower(o.Description)
		if !strings.Contains(desc, subject) && !strings.Contains(subject, desc) {
			continue
		}
		if !found || o.Confidence > best.Confidence ||
			(o.Confidence == best.Confidence && o.Timestamp.After(best.Timestamp)) {
			best = o
			found = true
		}
	}
	return best, found
}

// foundAnswer phrases a successful location lookup.
func foundAnswer(subject string, obj session.ObservedObject, now time.Time) string {
	seen := FormatRelative(obj.Timestamp, now)
	if obj.Location != "" {
		return fmt.Sprintf("I found your %s. It was last seen %s, %s.", subject, obj.Location, seen)
	}
	return fmt.Sprintf("I found your %s. It was last seen %s.", subject, seen)
}

// renderWindow formats the memory window as prompt context lines. Empty when
// the window has nothing.
func renderWindow(v session.View, now time.Time) string {
	if len(v.Objects) == 0 && len(v.Activities) == 0 {
		return ""
	}

	var b strings.Builder
	if len(v.Objects) > 0 {
		b.WriteString("Objects seen recently:\n")
		for _, o := range v.Objects {
			b.WriteString("- ")
			b.WriteString(o.Description)
			if o.Location != "" {
				b.WriteString(" (")
				b.WriteString(o.Location)
				b.WriteString(")")
			}
			b.WriteString(" [")
			b.WriteString(FormatRelative(o.Timestamp, now))
			b.WriteString("]\n")
		}
	}
	if len(v.Activities) > 0 {
		b.WriteString("Activities seen recently:\n")
		for _, a := range v.Activities {
			b.WriteString("- ")
			b.WriteString(a.Description)
			b.WriteString(" [")
			b.WriteString(FormatRelative(a.Timestamp, now))
			b.WriteString("]\n")
		}
	}
	return b.String()
}

// buildPrompt assembles the model prompt from the question, the optional
// memory context, and whether media accompanies the call.
func buildPrompt(question, memText string, useMemory, hasMedia bool) string {
	var b strings.Builder
	b.WriteString("You are a live visual memory assistant. Answer briefly and conversationally.\n\n")
	if useMemory {
		b.WriteString(memText)
		b.WriteString("\n")
	}
	if hasMedia {
		b.WriteString("A video segment of the current moment is attached.\n\n")
	} else if useMemory {
		b.WriteString("Answer from the observations above only.\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// fallbackEntry produces the memory-only answer used when the external model
// cannot be reached.
func fallbackEntry(v session.View, now time.Time) *cache.Entry {
	e := &cache.Entry{
		UsedMemory:      true,
		Fallback:        true,
		ObjectsFound:    len(v.Objects),
		ActivitiesFound: len(v.Activities),
		CreatedAt:       now,
	}

	if len(v.Objects) == 0 && len(v.Activities) == 0 {
		e.Answer = "I'm having trouble reaching the vision service and have no recent memories to draw on. Please try again in a moment."
		e.UsedMemory = false
		return e
	}

	var parts []string
	for i := len(v.Objects) - 1; i >= 0 && len(parts) < 3; i-- {
		o := v.Objects[i]
		p := o.Description
		if o.Location != "" {
			p += " " + o.Location
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", p, FormatRelative(o.Timestamp, now)))
	}
	for i := len(v.Activities) - 1; i >= 0 && len(parts) < 5; i-- {
		a := v.Activities[i]
		parts = append(parts, fmt.Sprintf("%s (%s)", a.Description, FormatRelative(a.Timestamp, now)))
	}
	e.Answer = "I couldn't reach the vision service, but from your recent memories I saw: " + strings.Join(parts, "; ") + "."
	return e
}
