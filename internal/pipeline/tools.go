package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/retrieval"
	"github.com/tencentyun-labs/cognigate/internal/schema"
	"github.com/tencentyun-labs/cognigate/internal/storage"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// Input structs for the four tools, used only to generate a JSON schema per
// tool (Schemas below) — Dispatch itself reads ToolCall.Args directly since
// the bracketed-tag parser never produces a typed struct.
type GrepInput struct {
	Term string `json:"term" jsonschema:"the keyword search term"`
}
type VectorInput struct {
	Q string `json:"q" jsonschema:"the natural-language query to embed and search"`
}
type SquirrelInput struct {
	SQL string `json:"sql" jsonschema:"a single read-only SELECT statement, no scope columns"`
}
type EpisodicInput struct {
	Q string `json:"q" jsonschema:"the natural-language query to search prior exchanges for"`
}

// Schemas maps each tool name to its generated JSON schema, generated once
// at package init the same way the teacher's BaseTool.schema fields are
// built from utils.GenerateSchema[T]().
var Schemas = map[ToolName]json.RawMessage{
	ToolGrep:     schema.For[GrepInput](),
	ToolVector:   schema.For[VectorInput](),
	ToolSquirrel: schema.For[SquirrelInput](),
	ToolEpisodic: schema.For[EpisodicInput](),
}

// ToolName is one of the bracketed tags the assistant may emit mid-stream
// (§4.9 "Mid-stream tool re-entry").
type ToolName string

const (
	ToolGrep     ToolName = "GREP"
	ToolVector   ToolName = "VECTOR"
	ToolSquirrel ToolName = "SQUIRREL"
	ToolEpisodic ToolName = "EPISODIC"
)

// ToolCall is one parsed, complete bracketed tag.
type ToolCall struct {
	Name ToolName
	Args map[string]string
	Raw  string
}

// tagPattern matches a single complete `[NAME key="value" ...]` tag. Keys
// without a quoted value (e.g. `[GREP term=foo]`) are not matched — an
// unterminated or malformed tag must pass through as plain text per §4.9.
var tagPattern = regexp.MustCompile(`\[(GREP|VECTOR|SQUIRREL|EPISODIC)((?:\s+\w+="[^"]*")*)\s*\]`)
var argPattern = regexp.MustCompile(`(\w+)="([^"]*)"`)

// ExtractTag scans buf for the first complete tag. It returns the call, the
// tag's byte range, and whether one was found. An open `[` with no matching
// `]` yet is left in place for the caller to keep buffering — callers must
// not treat an absent match as "no tag coming", only as "not complete yet".
func ExtractTag(buf string) (call ToolCall, start, end int, found bool) {
	loc := tagPattern.FindStringSubmatchIndex(buf)
	if loc == nil {
		return ToolCall{}, 0, 0, false
	}
	name := buf[loc[2]:loc[3]]
	argsRaw := buf[loc[4]:loc[5]]
	args := make(map[string]string)
	for _, m := range argPattern.FindAllStringSubmatch(argsRaw, -1) {
		args[m[1]] = m[2]
	}
	return ToolCall{Name: ToolName(name), Args: args, Raw: buf[loc[0]:loc[1]]}, loc[0], loc[1], true
}

// HasUnterminatedTag reports whether buf ends mid-tag (an opening bracket
// for one of the known tool names with no closing bracket yet), meaning the
// caller should keep buffering rather than forward buf as plain text.
func HasUnterminatedTag(buf string) bool {
	idx := strings.LastIndexByte(buf, '[')
	if idx == -1 {
		return false
	}
	tail := buf[idx:]
	if strings.ContainsRune(tail, ']') {
		return false
	}
	for _, name := range []ToolName{ToolGrep, ToolVector, ToolSquirrel, ToolEpisodic} {
		if strings.HasPrefix(tail, "["+string(name)) {
			return true
		}
	}
	return len(tail) < 12 // could still be the start of one of the names
}

// SQLQueryable is the optional capability a Backend may expose for the
// SQUIRREL tool; storage/filestore does not implement it, so SQUIRREL is
// unavailable under the file-backed Backend (degrades to an error result
// re-injected into the completion, never a panic).
type SQLQueryable interface {
	QueryReadOnly(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error)
}

// Dispatcher invokes a ToolCall against the Storage Backend, scope-checked,
// and renders the result as plain text for re-injection into the ongoing
// completion as a system message.
type Dispatcher struct {
	backend  storage.Backend
	embedder retrieval.Embedder
}

func NewDispatcher(backend storage.Backend, embedder retrieval.Embedder) *Dispatcher {
	return &Dispatcher{backend: backend, embedder: embedder}
}

// Dispatch runs call under scope and returns the tool result text. Errors
// are rendered as a result string too (never surfaced as a Go error to the
// caller) — a failed tool call degrades the completion, it does not abort
// the query.
func (d *Dispatcher) Dispatch(ctx context.Context, call ToolCall, chunkScope, memoryScope types.Scope) string {
	switch call.Name {
	case ToolGrep:
		return d.grep(ctx, call, chunkScope)
	case ToolVector:
		return d.vector(ctx, call, chunkScope)
	case ToolSquirrel:
		return d.squirrel(ctx, call)
	case ToolEpisodic:
		return d.episodic(ctx, call, memoryScope)
	default:
		return "unsupported tool: " + string(call.Name)
	}
}

func (d *Dispatcher) grep(ctx context.Context, call ToolCall, scope types.Scope) string {
	term := call.Args["term"]
	if term == "" {
		return "GREP requires a term argument"
	}
	hits, err := d.backend.KeywordSearchChunks(ctx, scope, term, 5)
	if err != nil {
		return fmt.Sprintf("GREP failed: %v", apperr.KindOf(err))
	}
	return renderChunkHits(hits)
}

func (d *Dispatcher) vector(ctx context.Context, call ToolCall, scope types.Scope) string {
	q := call.Args["q"]
	if q == "" {
		return "VECTOR requires a q argument"
	}
	vec, err := d.embedder.Embed(ctx, q)
	if err != nil {
		return fmt.Sprintf("VECTOR failed: %v", apperr.KindOf(err))
	}
	hits, err := d.backend.VectorSearchChunks(ctx, scope, vec, 5, 0)
	if err != nil {
		return fmt.Sprintf("VECTOR failed: %v", apperr.KindOf(err))
	}
	return renderChunkHits(hits)
}

func (d *Dispatcher) episodic(ctx context.Context, call ToolCall, scope types.Scope) string {
	q := call.Args["q"]
	if q == "" {
		return "EPISODIC requires a q argument"
	}
	vec, err := d.embedder.Embed(ctx, q)
	if err != nil {
		return fmt.Sprintf("EPISODIC failed: %v", apperr.KindOf(err))
	}
	hits, err := d.backend.VectorSearchNodes(ctx, scope, vec, 5, 0)
	if err != nil {
		return fmt.Sprintf("EPISODIC failed: %v", apperr.KindOf(err))
	}
	if len(hits) == 0 {
		return "no prior exchanges found"
	}
	var sb strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&sb, "- %s -> %s\n", h.Item.HumanContent, h.Item.AssistantContent)
	}
	return sb.String()
}

// squirrel validates call.Args["sql"] is a single read-only SELECT using the
// postgres parser (mirrors the teacher's SQLSecurityValidator), then runs it
// through the optional SQLQueryable capability. No tenant_id condition is
// trusted from the caller-supplied SQL; the statement is rejected outright
// if it references tenant_id/user_id/department_id at all, since scoping
// those columns correctly from free-form tool input is not attempted here —
// SQUIRREL is for read-only aggregate/shape exploration over already-scoped
// views, not arbitrary per-row access.
func (d *Dispatcher) squirrel(ctx context.Context, call ToolCall) string {
	sql := call.Args["sql"]
	if sql == "" {
		return "SQUIRREL requires a sql argument"
	}
	queryable, ok := d.backend.(SQLQueryable)
	if !ok {
		return "SQUIRREL is unavailable on this deployment"
	}
	if err := validateReadOnlySelect(sql); err != nil {
		return fmt.Sprintf("SQUIRREL rejected: %v", err)
	}
	rows, err := queryable.QueryReadOnly(ctx, sql)
	if err != nil {
		return fmt.Sprintf("SQUIRREL failed: %v", apperr.KindOf(err))
	}
	return renderRows(rows)
}

var forbiddenColumns = []string{"tenant_id", "user_id", "department_id"}

func validateReadOnlySelect(sql string) error {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	if len(result.Stmts) != 1 {
		return fmt.Errorf("exactly one statement is required")
	}
	if result.Stmts[0].Stmt.GetSelectStmt() == nil {
		return fmt.Errorf("only SELECT is allowed")
	}
	lower := strings.ToLower(sql)
	for _, col := range forbiddenColumns {
		if strings.Contains(lower, col) {
			return fmt.Errorf("query may not reference %s", col)
		}
	}
	return nil
}

func renderChunkHits(hits []storage.Scored[types.DocumentChunk]) string {
	if len(hits) == 0 {
		return "no matches"
	}
	var sb strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&sb, "- [%s] %s\n", h.Item.SectionTitle, truncate(h.Item.Content, 300))
	}
	return sb.String()
}

func renderRows(rows []map[string]interface{}) string {
	if len(rows) == 0 {
		return "no rows"
	}
	var sb strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&sb, "%v\n", r)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
