package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pigeonchat/pigeon/internal/model"
)

// Cache is the client's durable local state: one JSON file per
// conversation plus a single unread-count map. A missing or corrupt
// file reads as empty so a damaged cache never blocks startup.
type Cache struct {
	dir string
}

// New returns a cache rooted at dir. The directory is created on the
// first write.
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) conversationPath(otherUserID string) string {
	return filepath.Join(c.dir, "chat_"+otherUserID+".json")
}

func (c *Cache) unreadPath() string {
	return filepath.Join(c.dir, "unread_counts.json")
}

// LoadConversation reads the cached message list for a conversation.
// Absent or unparseable files yield an empty slice and no error.
func (c *Cache) LoadConversation(otherUserID string) []model.Message {
	var msgs []model.Message
	if err := readJSON(c.conversationPath(otherUserID), &msgs); err != nil {
		return nil
	}
	return msgs
}

// SaveConversation writes the message list for a conversation.
func (c *Cache) SaveConversation(otherUserID string, msgs []model.Message) error {
	return c.writeJSON(c.conversationPath(otherUserID), msgs)
}

// LoadUnread reads the unread-count map. Absent or unparseable files
// yield an empty map and no error.
func (c *Cache) LoadUnread() map[string]int {
	counts := make(map[string]int)
	if err := readJSON(c.unreadPath(), &counts); err != nil {
		return make(map[string]int)
	}
	return counts
}

// SaveUnread writes the unread-count map.
func (c *Cache) SaveUnread(counts map[string]int) error {
	return c.writeJSON(c.unreadPath(), counts)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON writes atomically via a temp file in the same directory so
// a crash mid-write never leaves a truncated cache file behind.
func (c *Cache) writeJSON(path string, v any) error {
	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
