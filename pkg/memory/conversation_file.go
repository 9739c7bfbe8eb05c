// Copyright 2026 © The Eliza Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileConversation implements ConversationMemory with file-based storage.
// Each session is stored as a separate JSON file, so conversational context
// survives a process restart without an external service.
type FileConversation struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileConversation creates a new file-based conversation store.
func NewFileConversation(baseDir string) (*FileConversation, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create conversation directory: %w", err)
	}
	return &FileConversation{baseDir: baseDir}, nil
}

func (f *FileConversation) sessionFile(sessionID string) string {
	// Sanitize sessionID to prevent path traversal
	safe := filepath.Base(sessionID)
	return filepath.Join(f.baseDir, safe+".json")
}

// AppendMessage adds a message to the conversation.
func (f *FileConversation) AppendMessage(_ context.Context, sessionID string, msg ConversationMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	normalizeMessage(sessionID, &msg)

	messages, err := f.loadMessages(sessionID)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	messages = append(messages, msg)
	return f.saveMessages(sessionID, messages)
}

// GetMessages retrieves all messages for a session.
func (f *FileConversation) GetMessages(_ context.Context, sessionID string) ([]ConversationMessage, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	messages, err := f.loadMessages(sessionID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return messages, nil
}

// GetRecentMessages retrieves the last N messages for a session.
func (f *FileConversation) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]ConversationMessage, error) {
	messages, err := f.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return lastN(messages, limit), nil
}

// Clear removes all messages for a session.
func (f *FileConversation) Clear(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.sessionFile(sessionID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FileConversation) loadMessages(sessionID string) ([]ConversationMessage, error) {
	data, err := os.ReadFile(f.sessionFile(sessionID))
	if err != nil {
		return nil, err
	}
	var messages []ConversationMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", sessionID, err)
	}
	return messages, nil
}

func (f *FileConversation) saveMessages(sessionID string, messages []ConversationMessage) error {
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.sessionFile(sessionID), data, 0644)
}
