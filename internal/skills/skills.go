// Package skills implements the skill catalog (spec's supplemented
// skill-store feature): prompt templates and structured descriptions
// for reusable skills, backed by SQLite, with an optional YAML
// capability-descriptor overlay for bundled skills.
package skills

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"gopkg.in/yaml.v3"
)

const schema = `
CREATE TABLE IF NOT EXISTS skills (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT     NOT NULL UNIQUE,
    description     TEXT     NOT NULL,
    prompt_template TEXT     NOT NULL,
    parameters      TEXT     DEFAULT '{}',
    tags            TEXT     DEFAULT '[]',
    source          TEXT     NOT NULL DEFAULT 'user',
    usage_count     INTEGER  DEFAULT 0,
    active          INTEGER  DEFAULT 1,
    created_at      TEXT     DEFAULT CURRENT_TIMESTAMP
)`

// Skill is one catalog entry.
type Skill struct {
	ID             int64
	Name           string
	Description    string
	PromptTemplate string
	Parameters     map[string]interface{}
	Tags           []string
	Source         string
	UsageCount     int
	Active         bool
	CreatedAt      string
}

// Catalog stores and retrieves skills.
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite-backed catalog.
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create skills db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open skills db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping skills db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create skills table: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Add inserts a skill and returns its row id.
func (c *Catalog) Add(ctx context.Context, name, description, promptTemplate string, parameters map[string]interface{}, tags []string, source string) (int64, error) {
	if parameters == nil {
		parameters = map[string]interface{}{}
	}
	if tags == nil {
		tags = []string{}
	}
	paramsJSON, err := json.Marshal(parameters)
	if err != nil {
		return 0, fmt.Errorf("marshal parameters: %w", err)
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return 0, fmt.Errorf("marshal tags: %w", err)
	}
	if source == "" {
		source = "user"
	}
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO skills (name, description, prompt_template, parameters, tags, source)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		name, description, promptTemplate, string(paramsJSON), string(tagsJSON), source,
	)
	if err != nil {
		return 0, fmt.Errorf("insert skill: %w", err)
	}
	return res.LastInsertId()
}

// GetByName returns a skill by name, or ok=false if not found.
func (c *Catalog) GetByName(ctx context.Context, name string) (Skill, bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, name, description, prompt_template, parameters, tags, source, usage_count, active, created_at
		 FROM skills WHERE name = ?`, name,
	)
	s, err := scanSkill(row)
	if err == sql.ErrNoRows {
		return Skill{}, false, nil
	}
	if err != nil {
		return Skill{}, false, fmt.Errorf("query skill %q: %w", name, err)
	}
	return s, true, nil
}

// Active returns active skills ordered by usage count descending.
func (c *Catalog) Active(ctx context.Context, limit int) ([]Skill, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, description, prompt_template, parameters, tags, source, usage_count, active, created_at
		 FROM skills WHERE active = 1 ORDER BY usage_count DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query active skills: %w", err)
	}
	defer rows.Close()

	var out []Skill
	for rows.Next() {
		s, err := scanSkillRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// IncrementUsage increments the usage count for name.
func (c *Catalog) IncrementUsage(ctx context.Context, name string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE skills SET usage_count = usage_count + 1 WHERE name = ?`, name)
	return err
}

// Deactivate marks a skill inactive.
func (c *Catalog) Deactivate(ctx context.Context, name string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE skills SET active = 0 WHERE name = ?`, name)
	return err
}

// Count returns the total number of skills.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM skills`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSkill(row *sql.Row) (Skill, error) {
	return scanSkillFrom(row)
}

func scanSkillRows(rows *sql.Rows) (Skill, error) {
	return scanSkillFrom(rows)
}

func scanSkillFrom(sc scanner) (Skill, error) {
	var s Skill
	var paramsJSON, tagsJSON string
	var active int
	if err := sc.Scan(&s.ID, &s.Name, &s.Description, &s.PromptTemplate, &paramsJSON, &tagsJSON, &s.Source, &s.UsageCount, &active, &s.CreatedAt); err != nil {
		return Skill{}, err
	}
	s.Active = active != 0
	_ = json.Unmarshal([]byte(paramsJSON), &s.Parameters)
	_ = json.Unmarshal([]byte(tagsJSON), &s.Tags)
	return s, nil
}

// Descriptor is a bundled skill's YAML capability description, used
// to seed the catalog with built-in skills at startup.
type Descriptor struct {
	Name           string                 `yaml:"name"`
	Description    string                 `yaml:"description"`
	PromptTemplate string                 `yaml:"prompt_template"`
	Parameters     map[string]interface{} `yaml:"parameters"`
	Tags           []string               `yaml:"tags"`
}

// LoadDescriptor parses a single skill descriptor YAML file.
func LoadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read skill descriptor %s: %w", path, err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parse skill descriptor %s: %w", path, err)
	}
	return d, nil
}

// LoadDescriptorsDir parses every *.yaml/*.yml file in dir as a skill
// descriptor.
func LoadDescriptorsDir(dir string) ([]Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read skills dir %s: %w", dir, err)
	}
	var out []Descriptor
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		d, err := LoadDescriptor(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Seed inserts every descriptor not already present (by name) as a
// "builtin" skill.
func (c *Catalog) Seed(ctx context.Context, descriptors []Descriptor) error {
	for _, d := range descriptors {
		_, ok, err := c.GetByName(ctx, d.Name)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := c.Add(ctx, d.Name, d.Description, d.PromptTemplate, d.Parameters, d.Tags, "builtin"); err != nil {
			return fmt.Errorf("seed skill %q: %w", d.Name, err)
		}
	}
	return nil
}
