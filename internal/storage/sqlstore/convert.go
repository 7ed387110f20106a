package sqlstore

import (
	"encoding/json"

	"github.com/pgvector/pgvector-go"
	"github.com/tencentyun-labs/cognigate/internal/types"
	"gorm.io/gorm/clause"
)

func onConflictDoNothingID() clause.OnConflict {
	return clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}
}

func onConflictDoNothingUniqueKey() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "department_id"}, {Name: "file_hash"}, {Name: "chunk_index"}},
		DoNothing: true,
	}
}

func nodeToRow(n types.MemoryNode) nodeRow {
	tags := make(JSONMap, len(n.HeuristicTags))
	for k, v := range n.HeuristicTags {
		tags[k] = v
	}
	return nodeRow{
		ID: n.ID, UserID: n.UserID, TenantID: n.TenantID, ConversationID: n.ConversationID,
		SequenceIndex: n.SequenceIndex, HumanContent: n.HumanContent, AssistantContent: n.AssistantContent,
		Source: string(n.Source), Embedding: pgvector.NewVector(n.Embedding), HeuristicTags: tags,
		CreatedAt: n.CreatedAt,
	}
}

func rowToNode(r nodeRow) types.MemoryNode {
	tags := make(map[string]string, len(r.HeuristicTags))
	for k, v := range r.HeuristicTags {
		if s, ok := v.(string); ok {
			tags[k] = s
		}
	}
	return types.MemoryNode{
		ID: r.ID, UserID: r.UserID, TenantID: r.TenantID, ConversationID: r.ConversationID,
		SequenceIndex: r.SequenceIndex, HumanContent: r.HumanContent, AssistantContent: r.AssistantContent,
		Source: types.MemorySource(r.Source), Embedding: r.Embedding.Slice(), HeuristicTags: tags,
		CreatedAt: r.CreatedAt,
	}
}

func chunkToRow(c types.DocumentChunk) chunkRow {
	row := chunkRow{
		ID: c.ID, TenantID: c.TenantID, DepartmentID: c.DepartmentID, SourceFile: c.SourceFile,
		FileHash: c.FileHash, SectionTitle: c.SectionTitle, Content: c.Content, ChunkIndex: c.ChunkIndex,
		ParentDocumentID: c.ParentDocumentID, TokenCount: c.TokenCount, Keywords: JSONArray(c.Keywords),
		Category: c.Category, Subcategory: c.Subcategory, Embedding: pgvector.NewVector(c.Embedding),
		Importance: c.Importance, CreatedAt: c.CreatedAt,
	}
	if c.Enrichment != nil {
		if b, err := json.Marshal(c.Enrichment); err == nil {
			var m JSONMap
			_ = json.Unmarshal(b, &m)
			row.Enrichment = m
		}
	}
	return row
}

func rowToQueryRecord(r queryRecordRow) types.QueryRecord {
	dist := make(map[string]float64, len(r.InferredDeptDistribution))
	for k, v := range r.InferredDeptDistribution {
		if f, ok := v.(float64); ok {
			dist[k] = f
		}
	}
	return types.QueryRecord{
		ID: r.ID, UserEmail: r.UserEmail, TenantID: r.TenantID, DepartmentID: r.DepartmentID,
		SessionID: r.SessionID, QueryText: r.QueryText, Status: types.QueryStatus(r.Status),
		ResponseTimeMs: r.ResponseTimeMs, ResponseLength: r.ResponseLength, InputTokens: r.InputTokens,
		OutputTokens: r.OutputTokens, ModelID: r.ModelID, Category: r.Category, Keywords: []string(r.Keywords),
		FrustrationSignals: r.FrustrationSignals, IsRepeat: r.IsRepeat, RepeatOf: r.RepeatOf,
		QueryPositionInSession: r.QueryPositionInSession, TimeSinceLastQueryMs: r.TimeSinceLastQueryMs,
		Complexity: r.Complexity, Intent: types.Intent(r.Intent), Specificity: r.Specificity,
		Urgency: types.Urgency(r.Urgency), MultiPart: r.MultiPart, InferredDepartment: r.InferredDepartment,
		InferredDeptDistribution: dist, SessionPattern: types.SessionPattern(r.SessionPattern),
		CreatedAt: r.CreatedAt,
	}
}

func userToRow(u types.User) userRow {
	return userRow{
		ID: u.ID, TenantID: u.TenantID, Email: u.Email, DisplayName: u.DisplayName,
		ExternalSubjectID: u.ExternalSubjectID, DepartmentAccess: JSONArray(u.DepartmentAccess),
		DeptHeadFor: JSONArray(u.DeptHeadFor), IsSuperUser: u.IsSuperUser, IsActive: u.IsActive,
		CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt, LastLoginAt: u.LastLoginAt,
	}
}

func rowToUser(r userRow) types.User {
	return types.User{
		ID: r.ID, TenantID: r.TenantID, Email: r.Email, DisplayName: r.DisplayName,
		ExternalSubjectID: r.ExternalSubjectID, DepartmentAccess: []string(r.DepartmentAccess),
		DeptHeadFor: []string(r.DeptHeadFor), IsSuperUser: r.IsSuperUser, IsActive: r.IsActive,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, LastLoginAt: r.LastLoginAt,
	}
}

func rowToChunk(r chunkRow) types.DocumentChunk {
	c := types.DocumentChunk{
		ID: r.ID, TenantID: r.TenantID, DepartmentID: r.DepartmentID, SourceFile: r.SourceFile,
		FileHash: r.FileHash, SectionTitle: r.SectionTitle, Content: r.Content, ChunkIndex: r.ChunkIndex,
		ParentDocumentID: r.ParentDocumentID, TokenCount: r.TokenCount, Keywords: []string(r.Keywords),
		Category: r.Category, Subcategory: r.Subcategory, Embedding: r.Embedding.Slice(),
		Importance: r.Importance, CreatedAt: r.CreatedAt,
	}
	if len(r.Enrichment) > 0 {
		b, err := json.Marshal(r.Enrichment)
		if err == nil {
			var e types.ChunkEnrichment
			if json.Unmarshal(b, &e) == nil {
				c.Enrichment = &e
			}
		}
	}
	return c
}
