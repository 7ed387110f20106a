package types

import "github.com/google/uuid"

// InboundFrameType enumerates the client->server frame shapes of §6.
type InboundFrameType string

const (
	InboundMessage   InboundFrameType = "message"
	InboundVoiceStart InboundFrameType = "voice_start"
	InboundVoiceChunk InboundFrameType = "voice_chunk"
	InboundVoiceStop  InboundFrameType = "voice_stop"
	InboundCancel     InboundFrameType = "cancel"
)

// InboundFrame is a line-delimited JSON frame sent by the client.
type InboundFrame struct {
	Type        InboundFrameType `json:"type"`
	Content     string           `json:"content,omitempty"`
	Department  string           `json:"department,omitempty"`
	Language    string           `json:"language,omitempty"`
	Attachments []string         `json:"attachments,omitempty"`
	Data        string           `json:"data,omitempty"` // base64 voice_chunk payload
}

// OutboundFrameType enumerates the server->client frame shapes of §6.
type OutboundFrameType string

const (
	OutboundToken      OutboundFrameType = "token"
	OutboundTrace      OutboundFrameType = "trace"
	OutboundCitation   OutboundFrameType = "citation"
	OutboundAttachment OutboundFrameType = "attachment"
	OutboundError      OutboundFrameType = "error"
	OutboundDone       OutboundFrameType = "done"
)

// AttachmentRef is a resolved inbound attachment id (§6): an object already
// sitting in object storage from ingestion, surfaced back to the client as
// a presigned URL for citation rendering alongside the chat response.
type AttachmentRef struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Passage is a retrieved, rank-ordered piece of context surfaced to the
// client as a citation.
type Passage struct {
	ChunkID      uuid.UUID `json:"chunk_id,omitempty"`
	MemoryNodeID uuid.UUID `json:"memory_node_id,omitempty"`
	Title        string    `json:"title,omitempty"`
	Snippet      string    `json:"snippet"`
	Score        float64   `json:"score"`
	DepartmentID string    `json:"department_id,omitempty"`
}

// OutboundFrame is a line-delimited JSON frame sent to the client.
type OutboundFrame struct {
	Type      OutboundFrameType      `json:"type"`
	Text      string                 `json:"text,omitempty"`
	Step      string                 `json:"step,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Passages    []Passage              `json:"passages,omitempty"`
	Attachments []AttachmentRef        `json:"attachments,omitempty"`
	Code        string                 `json:"code,omitempty"`
	Message     string                 `json:"message,omitempty"`
	QueryID     uuid.UUID              `json:"query_id,omitempty"`
	ElapsedMs   int64                  `json:"elapsed_ms,omitempty"`
}

func TokenFrame(text string) OutboundFrame {
	return OutboundFrame{Type: OutboundToken, Text: text}
}

func TraceFrame(step string, data map[string]interface{}) OutboundFrame {
	return OutboundFrame{Type: OutboundTrace, Step: step, Data: data}
}

func CitationFrame(passages []Passage) OutboundFrame {
	return OutboundFrame{Type: OutboundCitation, Passages: passages}
}

func AttachmentFrame(refs []AttachmentRef) OutboundFrame {
	return OutboundFrame{Type: OutboundAttachment, Attachments: refs}
}

func ErrorFrame(code, message string) OutboundFrame {
	return OutboundFrame{Type: OutboundError, Code: code, Message: message}
}

func DoneFrame(queryID uuid.UUID, elapsedMs int64) OutboundFrame {
	return OutboundFrame{Type: OutboundDone, QueryID: queryID, ElapsedMs: elapsedMs}
}
