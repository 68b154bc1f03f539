package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/carelink-ai/callbridge/internal/metrics"
	"github.com/carelink-ai/callbridge/pipeline"
	"github.com/carelink-ai/callbridge/sentiment"
	"github.com/carelink-ai/callbridge/telephony"
	"github.com/carelink-ai/callbridge/types"
	"github.com/carelink-ai/callbridge/voiceagent"
)

// State is the call lifecycle phase. Transitions are strictly forward.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateEnding
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// AgentLink is what the session needs from the voice-agent connection.
// voiceagent.Connection satisfies it.
type AgentLink interface {
	Connect(ctx context.Context, settings voiceagent.Settings) error
	Events() <-chan voiceagent.Event
	IsSpeaking() bool
	IsConnected() bool
	Err() error
	SendAudio(ctx context.Context, audio []byte) error
	Inject(ctx context.Context, content string) error
	SendFunctionResult(ctx context.Context, id, output string) error
	Close() error
}

// TelephonyWriter sends an encoded frame back over the telephony stream.
type TelephonyWriter interface {
	WriteFrame(ctx context.Context, data []byte) error
}

// FunctionRunner executes a named agent function and returns the JSON
// payload to hand back. Implementations contain all failures: the returned
// string always carries a {"success": ...} result, never a panic or a
// session-killing error.
type FunctionRunner interface {
	Execute(ctx context.Context, name string, params map[string]any) string
}

// Config carries per-call identity and the tuning knobs for the
// bookkeeping that steers the agent.
type Config struct {
	CallSID   string
	PatientID string

	// Instructions and Greeting seed the agent settings payload.
	Instructions string
	Greeting     string

	// Functions is the schema advertised to the agent.
	Functions []voiceagent.FunctionDefinition

	// TopicSummaryEvery sends a topic-steering injection every Nth patient
	// turn. Zero means the default of 10.
	TopicSummaryEvery int

	// SentimentEvery triggers a sentiment analysis every Nth patient turn.
	// Zero means the default of 5.
	SentimentEvery int

	// SentimentWindow is how many trailing transcript lines each analysis
	// scores. Zero means the default of 10.
	SentimentWindow int

	// SentimentHistoryCap bounds the per-call label history. Zero means 20.
	SentimentHistoryCap int

	// SustainedNegative is how many consecutive negative labels count as
	// sustained. Zero means 3.
	SustainedNegative int

	// InjectionInterval is the minimum spacing between consecutive
	// injections while the agent is silent. Zero means 2s.
	InjectionInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.TopicSummaryEvery <= 0 {
		c.TopicSummaryEvery = 10
	}
	if c.SentimentEvery <= 0 {
		c.SentimentEvery = 5
	}
	if c.SentimentWindow <= 0 {
		c.SentimentWindow = 10
	}
	if c.SentimentHistoryCap <= 0 {
		c.SentimentHistoryCap = 20
	}
	if c.SustainedNegative <= 0 {
		c.SustainedNegative = 3
	}
	if c.InjectionInterval <= 0 {
		c.InjectionInterval = 2 * time.Second
	}
}

// Snapshot is the read-only view of a session exposed on the admin surface.
type Snapshot struct {
	CallSID       string    `json:"call_sid"`
	PatientID     string    `json:"patient_id"`
	State         string    `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	PatientTurns  int       `json:"patient_turns"`
	Topics        []string  `json:"topics,omitempty"`
	LastSentiment string    `json:"last_sentiment,omitempty"`
}

// CallSession owns one live call end to end: the relay between the
// telephony stream and the agent connection, the transcript and turn
// bookkeeping, the injection delivery policy, and exactly-once teardown.
//
// Two flows run concurrently per session: the telephony read loop feeding
// HandleFrame, and Run consuming the agent event stream. They share the
// agent connection, whose writes are internally serialized.
type CallSession struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector

	agent      AgentLink
	relay      *telephony.Relay
	out        TelephonyWriter
	dispatcher FunctionRunner
	saver      pipeline.Client
	monitor    *Monitor
	topics     *TopicTracker
	queue      *Queue
	injectRate *rate.Limiter

	state     atomic.Int32
	saved     atomic.Bool
	startedAt time.Time

	mu               sync.Mutex
	transcript       []types.TranscriptEntry
	patientTurns     int
	sentimentHistory []string
	negativeStreak   int

	tasksCtx    context.Context
	cancelTasks context.CancelFunc
	tasks       sync.WaitGroup

	done    chan struct{}
	onEnded func(callSID string)
}

// New creates a session in the Connecting state. scorer may be nil to
// disable sentiment monitoring.
func New(cfg Config, agent AgentLink, relay *telephony.Relay, out TelephonyWriter,
	dispatcher FunctionRunner, saver pipeline.Client, scorer Scorer,
	collector *metrics.Collector, logger *zap.Logger) *CallSession {

	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	logger = logger.With(
		zap.String("component", "call_session"),
		zap.String("call_sid", cfg.CallSID),
		zap.String("patient_id", cfg.PatientID),
	)

	tasksCtx, cancelTasks := context.WithCancel(context.Background())
	s := &CallSession{
		cfg:         cfg,
		logger:      logger,
		metrics:     collector,
		agent:       agent,
		relay:       relay,
		out:         out,
		dispatcher:  dispatcher,
		saver:       saver,
		topics:      NewTopicTracker(),
		queue:       NewQueue(),
		injectRate:  rate.NewLimiter(rate.Every(cfg.InjectionInterval), 1),
		tasksCtx:    tasksCtx,
		cancelTasks: cancelTasks,
		done:        make(chan struct{}),
	}
	if scorer != nil {
		s.monitor = NewMonitor(scorer, logger)
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// OnEnded registers a callback invoked once, after teardown completes. Set
// before Start; the registry uses it to remove the session.
func (s *CallSession) OnEnded(fn func(callSID string)) {
	s.onEnded = fn
}

// State returns the current lifecycle phase.
func (s *CallSession) State() State {
	return State(s.state.Load())
}

// Done is closed when teardown has completed.
func (s *CallSession) Done() <-chan struct{} {
	return s.done
}

// CallSID returns the call identifier.
func (s *CallSession) CallSID() string { return s.cfg.CallSID }

// Start connects the agent and moves the session to Active. On failure the
// session goes straight to Ended without attempting a save: the call never
// started, there is nothing to persist.
func (s *CallSession) Start(ctx context.Context) error {
	settings := voiceagent.NewSettings(s.cfg.Instructions, s.cfg.Greeting, s.cfg.Functions)
	if err := s.agent.Connect(ctx, settings); err != nil {
		// End() may have raced the dial (shutdown, admin force-end). It
		// owns teardown when it won the CAS; a second close of done here
		// would panic the process.
		if s.advance(StateConnecting, StateEnded) {
			s.cancelTasks()
			if s.onEnded != nil {
				s.onEnded(s.cfg.CallSID)
			}
			close(s.done)
		}
		return err
	}

	if !s.advance(StateConnecting, StateActive) {
		// Ended while connecting (e.g. shutdown raced the dial).
		s.agent.Close()
		return types.NewError(types.ErrCallEnded, "session ended during connect").WithCallSID(s.cfg.CallSID)
	}

	s.startedAt = time.Now()
	s.metrics.CallStarted()
	s.logger.Info("call active")
	return nil
}

// Run consumes the agent event stream until the connection ends, the
// context is cancelled, or the session is ended from elsewhere. It always
// leaves the session Ended.
func (s *CallSession) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.End("shutdown")
			return
		case <-s.done:
			return
		case ev, ok := <-s.agent.Events():
			if !ok {
				if err := s.agent.Err(); err != nil {
					s.logger.Error("agent transport failed", zap.Error(err))
					s.End("transport_failure")
				} else {
					s.End("agent_closed")
				}
				return
			}
			s.handleEvent(ctx, ev)
		}
	}
}

// HandleFrame processes one inbound telephony message. Malformed frames are
// logged and dropped; they never abort the read loop.
func (s *CallSession) HandleFrame(ctx context.Context, data []byte) {
	f, err := telephony.ParseFrame(data)
	if err != nil {
		s.logger.Warn("ignoring malformed telephony frame", zap.Error(err))
		return
	}

	switch f.Event {
	case telephony.EventConnected:
		s.logger.Debug("telephony stream connected")
	case telephony.EventStart:
		s.relay.Bind(f.Start)
	case telephony.EventMedia:
		if s.State() != StateActive {
			return
		}
		audio, err := s.relay.Decode(f)
		if err != nil {
			return // logged by the relay
		}
		s.metrics.RecordMediaFrame("inbound")
		if err := s.agent.SendAudio(ctx, audio); err != nil {
			s.logger.Warn("audio forward failed", zap.Error(err))
		}
	case telephony.EventMark:
		if f.Mark != nil {
			s.logger.Debug("mark acknowledged", zap.String("name", f.Mark.Name))
		}
	case telephony.EventStop:
		s.End("caller_hangup")
	}
}

func (s *CallSession) handleEvent(ctx context.Context, ev voiceagent.Event) {
	switch e := ev.(type) {
	case voiceagent.AudioEvent:
		frame, err := s.relay.EncodeMedia(e.Audio)
		if err != nil {
			s.logger.Warn("dropping agent audio", zap.Error(err))
			return
		}
		s.metrics.RecordMediaFrame("outbound")
		if err := s.out.WriteFrame(ctx, frame); err != nil {
			s.logger.Warn("telephony write failed", zap.Error(err))
		}

	case voiceagent.TranscriptEvent:
		s.handleTranscript(ctx, e)

	case voiceagent.SpeakingStateEvent:
		if !e.Speaking {
			s.sendTurnMark(ctx)
			s.drainPending(ctx)
		}

	case voiceagent.UserSpeakingEvent:
		if e.Speaking && s.agent.IsSpeaking() {
			// Barge-in: flush queued agent audio on the provider side so
			// the caller isn't talked over.
			if frame, err := s.relay.EncodeClear(); err == nil {
				s.out.WriteFrame(ctx, frame)
			}
		}

	case voiceagent.FunctionCallEvent:
		s.tasks.Add(1)
		go func() {
			defer s.tasks.Done()
			s.runFunction(s.tasksCtx, e)
		}()

	case voiceagent.MetadataEvent:
		s.logger.Debug("agent metadata", zap.ByteString("raw", e.Raw))

	case voiceagent.ErrorEvent:
		s.logger.Error("agent error", zap.String("message", e.Message))
	}
}

func (s *CallSession) handleTranscript(ctx context.Context, e voiceagent.TranscriptEvent) {
	speaker := types.SpeakerPatient
	if e.Role == "assistant" {
		speaker = types.SpeakerAgent
	}

	entry := types.TranscriptEntry{Speaker: speaker, Text: e.Content, Timestamp: time.Now()}

	s.mu.Lock()
	s.transcript = append(s.transcript, entry)
	turns := s.patientTurns
	if speaker != types.SpeakerAgent {
		s.patientTurns++
		turns = s.patientTurns
	}
	window := s.lastLinesLocked(s.cfg.SentimentWindow)
	s.mu.Unlock()

	s.metrics.RecordTranscriptTurn(speaker)
	if speaker == types.SpeakerAgent {
		return
	}

	// The patient taking a turn means the agent yielded the floor, so any
	// guidance stranded by pacing goes out before new deliveries are
	// considered.
	if !s.agent.IsSpeaking() {
		s.drainPending(ctx)
	}

	if added := s.topics.Observe(e.Content); len(added) > 0 {
		s.logger.Debug("new topics", zap.Strings("topics", added))
	}

	if turns%s.cfg.TopicSummaryEvery == 0 {
		if summary := s.topics.Summary(); summary != "" {
			s.deliver(ctx, summary)
		}
	}

	if s.monitor != nil && turns%s.cfg.SentimentEvery == 0 {
		s.monitor.Trigger(s.tasksCtx, window, func(label string) {
			s.onSentiment(s.tasksCtx, label)
		})
	}
}

// lastLinesLocked renders the trailing n transcript entries as lines.
// Callers hold s.mu.
func (s *CallSession) lastLinesLocked(n int) []string {
	start := len(s.transcript) - n
	if start < 0 {
		start = 0
	}
	lines := make([]string, 0, len(s.transcript)-start)
	for _, e := range s.transcript[start:] {
		lines = append(lines, e.Speaker+": "+e.Text)
	}
	return lines
}

// deliver applies the injection delivery policy: send immediately when the
// agent is silent and pacing allows, otherwise park the message in the
// single-slot queue for the next drain (the agent stopping speech, or the
// next patient turn while the agent is silent).
func (s *CallSession) deliver(ctx context.Context, msg string) {
	if s.agent.IsSpeaking() || !s.injectRate.Allow() {
		s.queue.Enqueue(msg)
		s.metrics.RecordInjection("queued")
		return
	}
	s.sendInjection(ctx, msg)
}

// drainPending runs on AgentStoppedSpeaking: the agent just finished a
// turn, so a drained message is sent without consulting the pacer.
func (s *CallSession) drainPending(ctx context.Context) {
	msg, ok := s.queue.Drain()
	if !ok {
		return
	}
	s.sendInjection(ctx, msg)
}

// sendTurnMark asks the provider to echo a mark once everything buffered
// for the finished agent turn has played out to the caller. The echo is
// acknowledged in HandleFrame.
func (s *CallSession) sendTurnMark(ctx context.Context) {
	frame, err := s.relay.EncodeMark("")
	if err != nil {
		return
	}
	if err := s.out.WriteFrame(ctx, frame); err != nil {
		s.logger.Warn("mark write failed", zap.Error(err))
	}
}

func (s *CallSession) sendInjection(ctx context.Context, msg string) {
	if err := s.agent.Inject(ctx, msg); err != nil {
		s.logger.Warn("injection refused", zap.Error(err))
		s.metrics.RecordInjection("refused")
		return
	}
	s.metrics.RecordInjection("sent")
}

// onSentiment records a completed analysis and, when the tone shifted or
// negativity is sustained, submits guidance through the delivery policy.
func (s *CallSession) onSentiment(ctx context.Context, label string) {
	s.mu.Lock()
	prev := ""
	if n := len(s.sentimentHistory); n > 0 {
		prev = s.sentimentHistory[n-1]
	}
	s.sentimentHistory = append(s.sentimentHistory, label)
	if len(s.sentimentHistory) > s.cfg.SentimentHistoryCap {
		s.sentimentHistory = s.sentimentHistory[1:]
	}
	if sentiment.IsNegative(label) {
		s.negativeStreak++
	} else {
		s.negativeStreak = 0
	}
	streak := s.negativeStreak
	s.mu.Unlock()

	s.metrics.RecordSentiment(label)
	s.logger.Debug("sentiment sample", zap.String("label", label), zap.String("previous", prev))

	if guidance := sentimentGuidance(prev, label, streak, s.cfg.SustainedNegative); guidance != "" {
		s.deliver(ctx, guidance)
	}
}

// sentimentGuidance maps a label shift to steering text, or "" when no
// guidance is warranted.
func sentimentGuidance(prev, label string, streak, sustained int) string {
	switch {
	case streak >= sustained:
		return "The caller has sounded low for a while now. Pause the current thread and check in warmly on how they are really feeling."
	case sentiment.IsNegative(label) && !sentiment.IsNegative(prev):
		return "The caller's mood has dipped. Use a gentler, slower tone and give them room to share what's on their mind."
	case sentiment.IsPositive(label) && sentiment.IsNegative(prev):
		return "The caller has brightened up. Match their energy and build on whatever lifted their mood."
	default:
		return ""
	}
}

// runFunction executes one agent function request and returns the outcome.
// Failures are contained here: the agent gets a structured failure payload
// and the session keeps running.
func (s *CallSession) runFunction(ctx context.Context, e voiceagent.FunctionCallEvent) {
	s.logger.Info("function call", zap.String("function", e.Name), zap.String("id", e.ID))
	output := s.dispatcher.Execute(ctx, e.Name, e.Params)
	if err := s.agent.SendFunctionResult(ctx, e.ID, output); err != nil {
		s.logger.Warn("function result not delivered",
			zap.String("function", e.Name),
			zap.Error(err),
		)
	}
}

// SaveConversation hands the transcript to the cognitive pipeline, at most
// once per call. The saved flag is set before the attempt so a racing
// second caller can never trigger a double save; retries are the
// pipeline's concern.
func (s *CallSession) SaveConversation(ctx context.Context) error {
	if !s.saved.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	transcript := make([]types.TranscriptEntry, len(s.transcript))
	copy(transcript, s.transcript)
	mood := ""
	if n := len(s.sentimentHistory); n > 0 {
		mood = s.sentimentHistory[n-1]
	}
	s.mu.Unlock()

	duration := 0.0
	if !s.startedAt.IsZero() {
		duration = time.Since(s.startedAt).Seconds()
	}

	req := pipeline.ProcessRequest{
		PatientID:  s.cfg.PatientID,
		CallSID:    s.cfg.CallSID,
		Transcript: transcript,
		DurationS:  duration,
		Mood:       mood,
		Topics:     s.topics.Topics(),
	}
	if _, err := s.saver.ProcessConversation(ctx, req); err != nil {
		s.logger.Error("conversation save failed", zap.Error(err))
		return err
	}
	s.logger.Info("conversation saved", zap.Int("turns", len(transcript)))
	return nil
}

// End tears the session down exactly once: cancel background work, stop
// accepting frames, save the conversation, close the agent connection,
// remove from the registry. Safe to call from any goroutine any number of
// times; late calls are no-ops.
func (s *CallSession) End(reason string) {
	if !s.advance(StateActive, StateEnding) && !s.advance(StateConnecting, StateEnding) {
		return
	}
	s.logger.Info("ending call", zap.String("reason", reason))

	if s.monitor != nil {
		s.monitor.Stop()
	}
	s.cancelTasks()
	s.tasks.Wait()

	// The caller's context may already be gone (hangup, shutdown), so the
	// save gets its own deadline.
	saveCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.SaveConversation(saveCtx)

	s.agent.Close()
	s.state.Store(int32(StateEnded))

	if !s.startedAt.IsZero() {
		s.metrics.CallEnded(reason, time.Since(s.startedAt))
	}
	if s.onEnded != nil {
		s.onEnded(s.cfg.CallSID)
	}
	close(s.done)
	s.logger.Info("call ended")
}

func (s *CallSession) advance(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// Snapshot returns the admin view of the session.
func (s *CallSession) Snapshot() Snapshot {
	s.mu.Lock()
	turns := s.patientTurns
	last := ""
	if n := len(s.sentimentHistory); n > 0 {
		last = s.sentimentHistory[n-1]
	}
	s.mu.Unlock()

	return Snapshot{
		CallSID:       s.cfg.CallSID,
		PatientID:     s.cfg.PatientID,
		State:         s.State().String(),
		StartedAt:     s.startedAt,
		PatientTurns:  turns,
		Topics:        s.topics.Topics(),
		LastSentiment: last,
	}
}

// Transcript returns a copy of the transcript so far.
func (s *CallSession) Transcript() []types.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// PatientTurns returns the patient turn count.
func (s *CallSession) PatientTurns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patientTurns
}
