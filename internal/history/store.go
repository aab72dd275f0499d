// Package history persists per-user conversation history to disk.
//
// Each user's history lives in a single JSON file:
//
//	{dataDir}/{userID}.json
//
// The file holds the full message array, pretty-printed. Reads never fail:
// a missing, corrupt, or unreadable file yields an empty history so a chat
// turn always has something to build on.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/lashiv/lashivgpt/internal/conversation"
	"github.com/lashiv/lashivgpt/internal/logging"
)

const (
	// MaxHistorySizeBytes is the maximum size allowed for a history file.
	// This prevents disk exhaustion from malicious or corrupted data.
	// 10MB is enough for very large conversations with thousands of messages.
	MaxHistorySizeBytes = 10 * 1024 * 1024 // 10MB

	// MaxUserIDLength is the maximum length of a user identifier.
	MaxUserIDLength = 64
)

var (
	// ErrInvalidUserID is returned when a user ID fails validation.
	ErrInvalidUserID = errors.New("invalid user ID")

	// ErrHistoryTooLarge is returned when a serialized history exceeds
	// MaxHistorySizeBytes.
	ErrHistoryTooLarge = errors.New("history exceeds maximum size")
)

// userIDPattern restricts user IDs to a safe filename charset.
// SECURITY: user IDs become filenames, so anything that could escape the
// data directory (path separators, "..", control characters) is rejected.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Store manages per-user conversation history files.
type Store struct {
	dataDir string
	logger  *logging.Logger
}

// NewStore creates a history store rooted at dataDir.
// The directory is created on first write, not here.
func NewStore(dataDir string, logger *logging.Logger) *Store {
	return &Store{
		dataDir: dataDir,
		logger:  logger.WithComponent("history"),
	}
}

// Read returns the stored history for a user.
// A missing file, an invalid user ID, or a corrupt file all yield an empty
// slice. Corruption is logged and the file is left in place for inspection;
// the next successful Write replaces it.
func (s *Store) Read(userID string) []conversation.Message {
	if err := ValidateUserID(userID); err != nil {
		s.logger.Warn("rejecting history read for invalid user ID: %v", err)
		return []conversation.Message{}
	}

	path := s.historyPath(userID)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read history for %s: %v", userID, err)
		}
		return []conversation.Message{}
	}

	var messages []conversation.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		s.logger.Warn("corrupt history file for %s, starting fresh: %v", userID, err)
		return []conversation.Message{}
	}

	return messages
}

// Write persists the full history for a user, replacing any previous file.
// The write is atomic: data goes to a temp file first, then renames over
// the target, so a crash mid-write never leaves a truncated file behind.
func (s *Store) Write(userID string, messages []conversation.Message) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}

	// Create data directory (0700: owner-only access)
	if err := os.MkdirAll(s.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if messages == nil {
		messages = []conversation.Message{}
	}

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize history: %w", err)
	}

	// Check size limit to prevent disk exhaustion
	if len(data) > MaxHistorySizeBytes {
		return fmt.Errorf("%w: %d bytes", ErrHistoryTooLarge, len(data))
	}

	// Write to temp file first, then rename (atomic write)
	// 0600: owner read/write only
	path := s.historyPath(userID)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		// Clean up temp file if rename fails
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to commit history file: %w", err)
	}

	return nil
}

// Delete removes a user's history file.
// Deleting a user that has no history is not an error.
func (s *Store) Delete(userID string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}

	if err := os.Remove(s.historyPath(userID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete history file: %w", err)
	}

	return nil
}

// historyPath returns the file path for a user's history.
// Callers must validate userID first.
func (s *Store) historyPath(userID string) string {
	return filepath.Join(s.dataDir, userID+".json")
}

// ValidateUserID checks that a user ID is safe to use as a filename.
// Handlers call this up front so bad IDs fail the request instead of
// silently reading an empty history.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(userID) > MaxUserIDLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, MaxUserIDLength)
	}
	if !userIDPattern.MatchString(userID) {
		return fmt.Errorf("%w: contains disallowed characters", ErrInvalidUserID)
	}
	return nil
}
