// Package session manages chat sessions with CSV-based logging. The chunk
// log stores only ids; chunk text is fetched from the text store when a
// session is replayed, so log files stay small and never go stale.
package session

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vsedlak/chatrag/pkg/provider"
	"github.com/vsedlak/chatrag/pkg/types"
)

var messageHeader = []string{"timestamp", "message_id", "role", "content", "model"}

var chunkHeader = []string{"timestamp", "message_id", "chunk_id", "document_id", "chunk_index", "score", "distance"}

// Manager stores sessions on disk: a metadata JSON per session plus two
// CSV logs, one for messages and one for retrieved chunk references.
type Manager struct {
	dir  string
	text provider.TextStore
}

// NewManager creates a session manager rooted at dir. The text store is
// used to resolve logged chunk ids back to text and may be nil for
// write-only use.
func NewManager(dir string, text provider.TextStore) (*Manager, error) {
	for _, sub := range []string{"", "logs", "chunks"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create sessions directory: %w", err)
		}
	}
	return &Manager{dir: dir, text: text}, nil
}

// Create starts a new session and returns its id.
func (m *Manager) Create(title string) (string, error) {
	sessionID := uuid.NewString()
	if title == "" {
		title = "Session " + sessionID[:8]
	}

	now := time.Now().UTC()
	info := types.SessionInfo{
		SessionID: sessionID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.writeInfo(&info); err != nil {
		return "", err
	}

	if err := writeCSVHeader(m.messagesPath(sessionID), messageHeader); err != nil {
		return "", err
	}
	if err := writeCSVHeader(m.chunksPath(sessionID), chunkHeader); err != nil {
		return "", err
	}

	return sessionID, nil
}

// List returns all sessions, newest first.
func (m *Manager) List() ([]types.SessionInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var sessions []types.SessionInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := m.readInfo(entry.Name()[:len(entry.Name())-len(".json")])
		if err != nil {
			continue
		}
		sessions = append(sessions, *info)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Get returns the metadata for one session.
func (m *Manager) Get(sessionID string) (*types.SessionInfo, error) {
	return m.readInfo(sessionID)
}

// Delete removes a session and its logs.
func (m *Manager) Delete(sessionID string) error {
	if _, err := m.readInfo(sessionID); err != nil {
		return err
	}
	for _, path := range []string{
		m.infoPath(sessionID),
		m.messagesPath(sessionID),
		m.chunksPath(sessionID),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// LogMessage appends one message to the session log and returns the
// message id.
func (m *Manager) LogMessage(sessionID string, msg types.Message, model string) (string, error) {
	info, err := m.readInfo(sessionID)
	if err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	row := []string{
		time.Now().UTC().Format(time.RFC3339),
		messageID,
		msg.Role,
		msg.Content,
		model,
	}
	if err := appendCSVRow(m.messagesPath(sessionID), row); err != nil {
		return "", err
	}

	info.MessageCount++
	info.UpdatedAt = time.Now().UTC()
	if err := m.writeInfo(info); err != nil {
		return "", err
	}
	return messageID, nil
}

// LogChunks records which chunks answered a message. Only ids and scores
// go to disk.
func (m *Manager) LogChunks(sessionID, messageID string, results []types.SearchResult) error {
	if _, err := m.readInfo(sessionID); err != nil {
		return err
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	for _, r := range results {
		if r.Unavailable {
			continue
		}
		row := []string{
			timestamp,
			messageID,
			r.ChunkID,
			r.DocumentID,
			strconv.Itoa(r.ChunkIndex),
			strconv.FormatFloat(r.Score, 'f', 6, 64),
			strconv.FormatFloat(r.Distance, 'f', 6, 64),
		}
		if err := appendCSVRow(m.chunksPath(sessionID), row); err != nil {
			return err
		}
	}
	return nil
}

// Messages replays the message log of a session.
func (m *Manager) Messages(sessionID string) ([]types.Message, error) {
	rows, err := readCSVRows(m.messagesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, types.ErrNotFound)
		}
		return nil, err
	}

	var messages []types.Message
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		messages = append(messages, types.Message{Role: row[2], Content: row[3]})
	}
	return messages, nil
}

// ChunksForMessage resolves the chunks logged for one message back to
// their current text. Chunks since deleted from the text store are skipped.
func (m *Manager) ChunksForMessage(ctx context.Context, sessionID, messageID string) ([]*types.Chunk, error) {
	if m.text == nil {
		return nil, fmt.Errorf("no text store configured")
	}

	rows, err := readCSVRows(m.chunksPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, types.ErrNotFound)
		}
		return nil, err
	}

	var chunks []*types.Chunk
	for _, row := range rows {
		if len(row) < 3 || row[1] != messageID {
			continue
		}
		chunk, err := m.text.GetChunkByID(ctx, row[2])
		if err != nil {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (m *Manager) infoPath(sessionID string) string {
	return filepath.Join(m.dir, sessionID+".json")
}

func (m *Manager) messagesPath(sessionID string) string {
	return filepath.Join(m.dir, "logs", sessionID+".csv")
}

func (m *Manager) chunksPath(sessionID string) string {
	return filepath.Join(m.dir, "chunks", sessionID+".csv")
}

func (m *Manager) readInfo(sessionID string) (*types.SessionInfo, error) {
	data, err := os.ReadFile(m.infoPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, types.ErrNotFound)
		}
		return nil, err
	}
	var info types.SessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("corrupt session metadata: %w", err)
	}
	return &info, nil
}

func (m *Manager) writeInfo(info *types.SessionInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.infoPath(info.SessionID), data, 0644)
}

func writeCSVHeader(path string, header []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func appendCSVRow(path string, row []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// readCSVRows returns the data rows of a CSV file, header skipped.
func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		rows = rows[1:]
	}
	return rows, nil
}
