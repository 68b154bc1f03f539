package voiceagent

// Settings is the first message sent on a new agent connection. It fixes
// the audio format for both directions, the conversation instructions, and
// the function-call schema the agent may invoke.
type Settings struct {
	Type  string        `json:"type"`
	Audio AudioSettings `json:"audio"`
	Agent AgentSettings `json:"agent"`
}

// AudioSettings declares the wire audio format in both directions.
type AudioSettings struct {
	Input  AudioFormat `json:"input"`
	Output AudioFormat `json:"output"`
}

// AudioFormat is one direction's encoding. The telephony provider delivers
// 8kHz mulaw, so that is the default for both directions.
type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// AgentSettings configures the agent's behavior for this call.
type AgentSettings struct {
	Instructions string               `json:"instructions"`
	Greeting     string               `json:"greeting,omitempty"`
	Functions    []FunctionDefinition `json:"functions,omitempty"`
}

// FunctionDefinition describes one callable function in the schema sent to
// the agent.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// NewSettings builds a settings payload with the standard telephony audio
// format.
func NewSettings(instructions, greeting string, functions []FunctionDefinition) Settings {
	format := AudioFormat{Encoding: "mulaw", SampleRate: 8000}
	return Settings{
		Type:  "Settings",
		Audio: AudioSettings{Input: format, Output: format},
		Agent: AgentSettings{
			Instructions: instructions,
			Greeting:     greeting,
			Functions:    functions,
		},
	}
}

// injectMessage is the out-of-band context injection payload.
type injectMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// functionCallResponse returns a function result correlated by request id.
type functionCallResponse struct {
	Type           string `json:"type"`
	FunctionCallID string `json:"function_call_id"`
	Output         string `json:"output"`
}
