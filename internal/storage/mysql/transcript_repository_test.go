package mysql

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	"AgentKit-Chat/internal/transcript"

	mysqldriver "github.com/go-sql-driver/mysql"
)

var turnColumns = []string{"id", "channel", "session_id", "message", "response", "tool_events", "error", "duration_ms", "created_at"}

func TestTranscriptRepositorySave(t *testing.T) {
	t.Parallel()

	op := execOp(insertTurnSQL, mockResult{rowsAffected: 1})
	op.args = func(args []driver.NamedValue) error {
		if len(args) != 9 {
			return fmt.Errorf("expected 9 args, got %d", len(args))
		}
		if args[0].Value != "turn-1" || args[1].Value != "ws" {
			return fmt.Errorf("unexpected id/channel %v %v", args[0].Value, args[1].Value)
		}
		events, _ := args[5].Value.(string)
		if !strings.Contains(events, `"type":"tool_call"`) {
			return fmt.Errorf("unexpected tool events %q", events)
		}
		return nil
	}
	db, drv := newMockDB(t, []mockOperation{op})
	defer drv.assertConsumed(t)
	defer db.Close()

	repo := &TranscriptRepository{db: db}
	err := repo.Save(context.Background(), transcript.Turn{
		ID:         "turn-1",
		Channel:    transcript.ChannelWebSocket,
		Message:    "hi",
		Response:   "hello",
		ToolEvents: []transcript.ToolEvent{{Type: transcript.ToolEventCall, Name: "get_wallet_details", Arguments: "{}"}},
		CreatedAt:  1,
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestTranscriptRepositorySaveDuplicateIgnored(t *testing.T) {
	t.Parallel()

	op := execOp(insertTurnSQL, mockResult{})
	op.err = &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	db, drv := newMockDB(t, []mockOperation{op})
	defer drv.assertConsumed(t)
	defer db.Close()

	repo := &TranscriptRepository{db: db}
	if err := repo.Save(context.Background(), transcript.Turn{ID: "dup"}); err != nil {
		t.Fatalf("duplicate should be ignored: %v", err)
	}
}

func TestTranscriptRepositoryListLatest(t *testing.T) {
	t.Parallel()

	rows := mockRowsData{
		columns: turnColumns,
		values: [][]driver.Value{
			{"b", "http", "", "second", "r2", `[{"type":"tool_output","output":"ok"}]`, "", int64(5), int64(20)},
			{"a", "ws", "s1", "first", "r1", `[]`, "", int64(3), int64(10)},
		},
	}
	db, drv := newMockDB(t, []mockOperation{queryOp(listTurnsSQL, rows)})
	defer drv.assertConsumed(t)
	defer db.Close()

	repo := &TranscriptRepository{db: db}
	turns, err := repo.ListLatest(context.Background(), 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(turns) != 2 || turns[0].ID != "b" || turns[1].Channel != transcript.ChannelWebSocket {
		t.Fatalf("unexpected turns: %+v", turns)
	}
	if len(turns[0].ToolEvents) != 1 || turns[0].ToolEvents[0].Output != "ok" {
		t.Fatalf("unexpected tool events: %+v", turns[0].ToolEvents)
	}
}

func TestTranscriptRepositoryEnsureSchema(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		execOp(createSchemaTableSQL, mockResult{}),
		queryOp(currentSchemaSQL, mockRowsData{columns: []string{"version"}, values: [][]driver.Value{{int64(0)}}}),
		beginOp(),
		execOp(firstSchemaStatement(t), mockResult{}),
		{typ: opExec, query: recordSchemaSQL, result: mockResult{rowsAffected: 1}, args: func(args []driver.NamedValue) error {
			if args[0].Value != int64(1) || args[1].Value != "0001_create_chat_turns.sql" {
				return fmt.Errorf("unexpected schema row: %v %v", args[0].Value, args[1].Value)
			}
			return nil
		}},
		commitOp(),
	}
	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	repo := &TranscriptRepository{db: db}
	if err := repo.ensureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema failed: %v", err)
	}
}

func TestTranscriptRepositoryEnsureSchemaUpToDate(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		execOp(createSchemaTableSQL, mockResult{}),
		queryOp(currentSchemaSQL, mockRowsData{columns: []string{"version"}, values: [][]driver.Value{{int64(transcriptSchemaVersion)}}}),
	}
	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	repo := &TranscriptRepository{db: db}
	if err := repo.ensureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema failed: %v", err)
	}
}

func TestTranscriptRepositoryEnsureSchemaRejectsNewerDatabase(t *testing.T) {
	t.Parallel()

	ops := []mockOperation{
		execOp(createSchemaTableSQL, mockResult{}),
		queryOp(currentSchemaSQL, mockRowsData{columns: []string{"version"}, values: [][]driver.Value{{int64(transcriptSchemaVersion + 1)}}}),
	}
	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	repo := &TranscriptRepository{db: db}
	if err := repo.ensureSchema(context.Background()); err == nil {
		t.Fatalf("expected error for newer schema")
	}
}

func TestLoadSchemaSteps(t *testing.T) {
	steps, err := loadSchemaSteps(fstest.MapFS{
		"0002_add_index.sql": {Data: []byte("-- 索引\nCREATE INDEX a ON chat_turns (channel);\n")},
		"0001_create.sql":    {Data: []byte("CREATE TABLE x (id INT);\nCREATE TABLE y (id INT);")},
		"0003_empty.sql":     {Data: []byte("-- nothing\n")},
		"README.md":          {Data: []byte("ignored")},
	})
	if err != nil {
		t.Fatalf("load steps: %v", err)
	}
	if len(steps) != 2 || steps[0].version != 1 || steps[1].version != 2 {
		t.Fatalf("unexpected steps: %+v", steps)
	}
	if len(steps[0].statements) != 2 || steps[1].statements[0] != "CREATE INDEX a ON chat_turns (channel)" {
		t.Fatalf("unexpected statements: %+v", steps)
	}

	if _, err := loadSchemaSteps(fstest.MapFS{"create.sql": {Data: []byte("SELECT 1;")}}); err == nil {
		t.Fatalf("expected error for script without version")
	}
	if _, err := loadSchemaSteps(fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":    {Data: []byte("SELECT 2;")},
	}); err == nil {
		t.Fatalf("expected error for duplicate version")
	}
}

func TestNormalizeDSN(t *testing.T) {
	dsn, err := normalizeDSN("user:pass@tcp(127.0.0.1:3306)/agentkit")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Fatalf("expected charset param, got %s", dsn)
	}
	if _, err := normalizeDSN(""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func firstSchemaStatement(t *testing.T) string {
	t.Helper()

	steps, err := loadSchemaSteps(schemaScripts)
	if err != nil || len(steps) == 0 {
		t.Fatalf("load embedded schema: %v", err)
	}
	return steps[0].statements[0]
}
