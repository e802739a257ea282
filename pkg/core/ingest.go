package core

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/memoryglass/memoryglass-go/pkg/llm"
	"github.com/memoryglass/memoryglass-go/pkg/session"
)

// chunkAnalysisPrompt asks the model for structured observations. The reply
// is parsed leniently: the first JSON object found in the text is used.
const chunkAnalysisPrompt = `Analyze this short video segment and identify what is visible.

Return ONLY a JSON object in this exact format:
{
  "objects": [
    {"description": "red water bottle", "location": "on the desk, center-right",
     "color": "red", "brand": "", "text": "", "flavor": "", "size": "",
     "confidence": 0.95}
  ],
  "activities": [
    {"description": "person typing on a laptop"}
  ]
}

Include every distinct object with its location in the frame and a confidence
between 0 and 1. Leave unknown attributes empty. Do not add commentary.`

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// chunkAnalysis is the schema the extraction prompt requests.
type chunkAnalysis struct {
	Objects []struct {
		Description string  `json:"description"`
		Location    string  `json:"location"`
		Color       string  `json:"color"`
		Flavor      string  `json:"flavor"`
		Brand       string  `json:"brand"`
		Text        string  `json:"text"`
		Size        string  `json:"size"`
		Confidence  float64 `json:"confidence"`
	} `json:"objects"`
	Activities []struct {
		Description string `json:"description"`
	} `json:"activities"`
}

// IngestChunk records a media chunk against the user's session and queues it
// for background analysis. The call returns immediately; observations land in
// the memory window once the analysis worker finishes.
func (c *Client) IngestChunk(ctx context.Context, userID string, media *llm.Media) (*ChunkResponse, error) {
	if userID == "" || media == nil {
		return nil, NewPipelineError("IngestChunk", ErrBadInput)
	}
	if err := c.validateMedia(media); err != nil {
		return nil, err
	}

	now := c.now()
	chunk := session.ChunkRecord{
		ID:       c.node.Generate().Int64(),
		Size:     len(media.Data),
		MimeType: media.MimeType,
	}
	idx, size := c.sessions.RecordChunk(userID, chunk, now)

	if !c.ingest.submit(userID, *media, now) {
		c.logger.Warn("ingest queue full, chunk analysis dropped",
			"user_id", userID, "chunk_index", idx)
	}

	return &ChunkResponse{Success: true, ChunkIndex: idx, MemorySize: size}, nil
}

// validateMedia rejects malformed payloads before any external call.
func (c *Client) validateMedia(media *llm.Media) error {
	switch {
	case len(media.Data) < c.cfg.Media.MinBytes:
		return &MalformedMediaError{Reason: fmt.Sprintf("payload too small (%d bytes)", len(media.Data))}
	case len(media.Data) > c.cfg.Media.MaxBytes:
		return &MalformedMediaError{Reason: fmt.Sprintf("payload too large (%d bytes)", len(media.Data))}
	case !strings.HasPrefix(media.MimeType, "video/") && !strings.HasPrefix(media.MimeType, "image/"):
		return &MalformedMediaError{Reason: fmt.Sprintf("unsupported media type %q", media.MimeType)}
	}
	return nil
}

// chunkJob is one queued analysis unit.
type chunkJob struct {
	userID     string
	media      llm.Media
	receivedAt time.Time
}

// ingester runs one bounded producer/consumer queue per live session, so
// backpressure and ordering of background chunk analysis are explicit
// rather than a pile of unawaited goroutines.
type ingester struct {
	c         *Client
	queueSize int

	mu     sync.Mutex
	queues map[string]chan chunkJob
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newIngester(c *Client, queueSize int) *ingester {
	if queueSize <= 0 {
		queueSize = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ingester{
		c:         c,
		queueSize: queueSize,
		queues:    make(map[string]chan chunkJob),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// submit queues a chunk for the user's worker, starting the worker on first
// use. Returns false when the queue is full or the ingester is closed; the
// chunk's metadata is already in the window either way.
func (i *ingester) submit(userID string, media llm.Media, receivedAt time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false
	}

	q, ok := i.queues[userID]
	if !ok {
		q = make(chan chunkJob, i.queueSize)
		i.queues[userID] = q
		i.wg.Add(1)
		go i.worker(q)
	}

	select {
	case q <- chunkJob{userID: userID, media: media, receivedAt: receivedAt}:
		return true
	default:
		return false
	}
}

// stop closes the user's queue; the worker drains what is left and exits.
func (i *ingester) stop(userID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if q, ok := i.queues[userID]; ok {
		delete(i.queues, userID)
		close(q)
	}
}

// close shuts down all workers.
func (i *ingester) close() {
	i.mu.Lock()
	if !i.closed {
		i.closed = true
		for userID, q := range i.queues {
			delete(i.queues, userID)
			close(q)
		}
	}
	i.mu.Unlock()

	i.cancel()
	i.wg.Wait()
}

func (i *ingester) worker(q chan chunkJob) {
	defer i.wg.Done()
	for job := range q {
		select {
		case <-i.ctx.Done():
			return
		default:
		}
		i.analyze(job)
	}
}

// analyze runs one chunk through the extraction prompt and records the
// parsed observations. Failures log and record nothing; the chunk metadata
// is already in the window.
func (i *ingester) analyze(job chunkJob) {
	text, err := i.c.gw.Generate(i.ctx, chunkAnalysisPrompt, &job.media, llm.WithMaxTokens(800))
	if err != nil {
		i.c.logger.Warn("chunk analysis failed", "user_id", job.userID, "err", err)
		return
	}
	i.c.modelCalls.Add(1)

	objects, activities, err := parseChunkAnalysis(text, job.receivedAt)
	if err != nil {
		i.c.logger.Warn("chunk analysis unparseable", "user_id", job.userID, "err", err)
		return
	}
	if len(objects) == 0 && len(activities) == 0 {
		return
	}

	size := i.c.sessions.RecordObservations(job.userID, objects, activities, i.c.now())
	i.c.logger.Debug("chunk analyzed",
		"user_id", job.userID,
		"objects", len(objects),
		"activities", len(activities),
		"window_objects", size.Objects,
		"window_activities", size.Activities)
}

// parseChunkAnalysis extracts the first JSON object from the model reply and
// converts it into timestamped observations.
func parseChunkAnalysis(text string, observedAt time.Time) ([]session.ObservedObject, []session.ObservedActivity, error) {
	raw := jsonObjectPattern.FindString(text)
	if raw == "" {
		return nil, nil, fmt.Errorf("no JSON object in model reply")
	}

	var parsed chunkAnalysis
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode analysis: %w", err)
	}

	var objects []session.ObservedObject
	for _, o := range parsed.Objects {
		if strings.TrimSpace(o.Description) == "" {
			continue
		}
		conf := o.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		objects = append(objects, session.ObservedObject{
			Description: o.Description,
			Location:    o.Location,
			Color:       o.Color,
			Flavor:      o.Flavor,
			Brand:       o.Brand,
			Text:        o.Text,
			Size:        o.Size,
			Confidence:  conf,
			Timestamp:   observedAt,
		})
	}

	var activities []session.ObservedActivity
	for _, a := range parsed.Activities {
		if strings.TrimSpace(a.Description) == "" {
			continue
		}
		activities = append(activities, session.ObservedActivity{
			Description: a.Description,
			Timestamp:   observedAt,
		})
	}
	return objects, activities, nil
}
