package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeNode       EventType = "node"
	EventTypeRoute      EventType = "route"
	EventTypeToolCall   EventType = "tool_call"
	EventTypeToolResult EventType = "tool_result"
	EventTypePlaceFetch EventType = "place_fetch"
	EventTypeSchedule   EventType = "schedule"
	EventTypeLLM        EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogNode(sessionID, node, status string) {
	l.Log(Event{
		Type:      EventTypeNode,
		SessionID: sessionID,
		Data: map[string]string{
			"node":   node,
			"status": status,
		},
	})
}

func (l *Logger) LogRoute(sessionID, from, branch string) {
	l.Log(Event{
		Type:      EventTypeRoute,
		SessionID: sessionID,
		Data: map[string]string{
			"from":   from,
			"branch": branch,
		},
	})
}

func (l *Logger) LogToolCall(sessionID, tool, args string) {
	l.Log(Event{
		Type:      EventTypeToolCall,
		SessionID: sessionID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(sessionID, tool, result string) {
	l.Log(Event{
		Type:      EventTypeToolResult,
		SessionID: sessionID,
		Data: map[string]string{
			"tool":   tool,
			"result": result,
		},
	})
}

func (l *Logger) LogPlaceFetch(sessionID, category string, count int) {
	l.Log(Event{
		Type:      EventTypePlaceFetch,
		SessionID: sessionID,
		Data: map[string]any{
			"category": category,
			"count":    count,
		},
	})
}

func (l *Logger) LogSchedule(sessionID string, days int, fallback bool) {
	l.Log(Event{
		Type:      EventTypeSchedule,
		SessionID: sessionID,
		Data: map[string]any{
			"days":     days,
			"fallback": fallback,
		},
	})
}

func (l *Logger) LogLLM(sessionID, stage string, prompt any, response string) {
	l.Log(Event{
		Type:      EventTypeLLM,
		SessionID: sessionID,
		Data: map[string]any{
			"stage":    stage,
			"prompt":   prompt,
			"response": response,
		},
	})
}
