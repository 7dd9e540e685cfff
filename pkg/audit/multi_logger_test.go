package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLogger captures events for assertions.
type recordingLogger struct {
	events []*Event
	err    error
}

func (r *recordingLogger) Log(ctx context.Context, event *Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingLogger) Close() error { return nil }

func TestMultiLogger_FanOut(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	m := NewMultiLogger(a, b)

	event := NewEvent(ActionTenantCreate, CategoryTenant, StatusSuccess)
	require.NoError(t, m.Log(context.Background(), event))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestMultiLogger_ContinuesPastFailure(t *testing.T) {
	failing := &recordingLogger{err: errors.New("sink down")}
	working := &recordingLogger{}
	m := NewMultiLogger(failing, working)

	event := NewEvent(ActionTenantCreate, CategoryTenant, StatusSuccess)
	err := m.Log(context.Background(), event)

	assert.Error(t, err)
	assert.Len(t, working.events, 1, "working sink should still receive the event")
}

func TestFileLogger_WritesNDJSON(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{BasePath: dir})
	require.NoError(t, err)

	actorID := int64(1)
	event := NewEvent(ActionClientRegister, CategoryClient, StatusSuccess)
	event.ActorUserID = &actorID
	event.TargetType = TargetClient
	event.TargetID = "hmd_ci_test"

	require.NoError(t, logger.Log(context.Background(), event))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"action":"client.register"`)
	assert.Contains(t, lines[0], `"target_id":"hmd_ci_test"`)
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{
		BasePath: dir,
		MaxSize:  1, // every write rotates
		MaxFiles: 2,
	})
	require.NoError(t, err)
	defer logger.Close()

	for i := 0; i < 5; i++ {
		event := NewEvent(ActionTokenIssue, CategoryOAuth, StatusSuccess)
		require.NoError(t, logger.Log(context.Background(), event))
	}

	rotated, err := filepath.Glob(filepath.Join(dir, "audit-*.log"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(rotated), 2, "rotation should prune beyond MaxFiles")
}
