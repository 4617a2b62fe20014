package mysql

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"time"

	"AgentKit-Chat/deploy/migrations"
)

// transcriptSchemaVersion 是当前代码读写 chat_turns 所需的结构版本。
const transcriptSchemaVersion = 1

const (
	createSchemaTableSQL = `CREATE TABLE IF NOT EXISTS agentkit_schema (
    version INT NOT NULL PRIMARY KEY,
    script VARCHAR(128) NOT NULL,
    applied_at BIGINT NOT NULL
)`
	currentSchemaSQL = `SELECT COALESCE(MAX(version), 0) FROM agentkit_schema`
	recordSchemaSQL  = `INSERT INTO agentkit_schema (version, script, applied_at) VALUES (?, ?, ?)`
)

var schemaScripts fs.FS = migrations.Files

// schemaStep 对应 deploy/migrations 中的一个脚本，文件名以版本号开头。
type schemaStep struct {
	version    int
	script     string
	statements []string
}

// ensureSchema 把数据库升级到 transcriptSchemaVersion，已经更高的版本视为不兼容。
func (s *TranscriptRepository) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSchemaTableSQL); err != nil {
		return fmt.Errorf("创建 agentkit_schema 表失败: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, currentSchemaSQL).Scan(&current); err != nil {
		return fmt.Errorf("查询结构版本失败: %w", err)
	}
	if current > transcriptSchemaVersion {
		return fmt.Errorf("数据库结构版本 %d 高于程序支持的 %d", current, transcriptSchemaVersion)
	}
	if current == transcriptSchemaVersion {
		return nil
	}

	steps, err := loadSchemaSteps(schemaScripts)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if step.version <= current || step.version > transcriptSchemaVersion {
			continue
		}
		if err := s.applySchemaStep(ctx, step); err != nil {
			return err
		}
		current = step.version
	}
	if current != transcriptSchemaVersion {
		return fmt.Errorf("缺少结构版本 %d 的迁移脚本", transcriptSchemaVersion)
	}
	return nil
}

func (s *TranscriptRepository) applySchemaStep(ctx context.Context, step schemaStep) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range step.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行 %s 失败: %w", step.script, err)
		}
	}
	if _, err := tx.ExecContext(ctx, recordSchemaSQL, step.version, step.script, time.Now().Unix()); err != nil {
		return fmt.Errorf("记录结构版本 %d 失败: %w", step.version, err)
	}
	return tx.Commit()
}

// loadSchemaSteps 读取全部 .sql 脚本并按版本号升序返回，版本号重复或缺失时报错。
func loadSchemaSteps(fsys fs.FS) ([]schemaStep, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("读取迁移脚本失败: %w", err)
	}

	steps := make([]schemaStep, 0, len(names))
	seen := make(map[int]string, len(names))
	for _, name := range names {
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.Atoi(strings.TrimSuffix(prefix, ".sql"))
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("迁移脚本 %s 缺少版本号", name)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("迁移脚本 %s 与 %s 版本重复", name, other)
		}
		seen[version] = name

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移脚本 %s 失败: %w", name, err)
		}
		statements := sqlStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		steps = append(steps, schemaStep{version: version, script: name, statements: statements})
	}

	slices.SortFunc(steps, func(a, b schemaStep) int { return a.version - b.version })
	return steps, nil
}

// sqlStatements 去掉 -- 注释行后按分号拆分。
func sqlStatements(content string) []string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}

	var statements []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
