// Package importer loads family-tree fixtures into a store. Members are
// written directly; every relationship goes through the relationship engine
// so that it is validated, direction-corrected and paired with its reciprocal.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/familytree/internal/engine"
	"github.com/scrypster/familytree/internal/storage"
	"github.com/scrypster/familytree/pkg/types"
)

// ImportResult is the summary of a completed import.
type ImportResult struct {
	MembersImported    int           `json:"members_imported"`
	RelationsCreated   int           `json:"relations_created"`
	RelationsCorrected int           `json:"relations_corrected"`
	RelationsSkipped   int           `json:"relations_skipped"`
	RelationsFailed    int           `json:"relations_failed"`
	Warnings           int           `json:"warnings"`
	Errors             []string      `json:"errors,omitempty"`
	Duration           time.Duration `json:"duration_ms"`
}

// Importer loads Documents through the relationship engine.
type Importer struct {
	engine  *engine.Engine
	members storage.MemberWriter
	logger  *slog.Logger
}

// New creates an importer. members is usually the same store the engine uses.
func New(eng *engine.Engine, members storage.MemberWriter, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{engine: eng, members: members, logger: logger}
}

// ImportFile imports the YAML document at path.
func (imp *Importer) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", path, err)
	}
	defer f.Close()
	return imp.Import(ctx, f)
}

// Import parses and imports a YAML document. Member problems abort the
// import before any relationship is created; relationship problems are
// collected in the result and do not stop the import. Re-importing the same
// document skips relationships that already exist.
func (imp *Importer) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	start := time.Now()

	doc, err := ParseDocument(r)
	if err != nil {
		return nil, err
	}

	ids, err := imp.importMembers(ctx, doc.Members)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{MembersImported: len(doc.Members)}

	for i, entry := range doc.Relations {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled")
			break
		}
		imp.importRelation(ctx, i, entry, ids, result)
	}

	result.Duration = time.Since(start)
	imp.logger.Info("import: finished",
		"members", result.MembersImported,
		"relations_created", result.RelationsCreated,
		"relations_corrected", result.RelationsCorrected,
		"relations_skipped", result.RelationsSkipped,
		"relations_failed", result.RelationsFailed)
	return result, nil
}

// importMembers upserts every member and returns key -> member id.
func (imp *Importer) importMembers(ctx context.Context, entries []MemberEntry) (map[string]string, error) {
	ids := make(map[string]string, len(entries))
	for i, entry := range entries {
		key := entry.key()
		if key == "" {
			return nil, fmt.Errorf("member #%d: key or id is required", i+1)
		}
		id := entry.ID
		if id == "" {
			id = memberIDForKey(key)
		}
		if _, dup := ids[key]; dup {
			return nil, fmt.Errorf("member #%d: duplicate key %q", i+1, key)
		}

		member, err := entry.toMember(id)
		if err != nil {
			return nil, fmt.Errorf("member #%d: %w", i+1, err)
		}
		if err := imp.members.UpsertMember(ctx, member); err != nil {
			return nil, fmt.Errorf("member #%d (%s): %w", i+1, key, err)
		}
		ids[key] = id
	}
	return ids, nil
}

func (imp *Importer) importRelation(ctx context.Context, i int, entry RelationEntry, ids map[string]string, result *ImportResult) {
	label := fmt.Sprintf("relation #%d (%s %s %s)", i+1, entry.From, entry.Type, entry.To)

	fail := func(msg string) {
		result.RelationsFailed++
		result.Errors = append(result.Errors, label+": "+msg)
		imp.logger.Warn("import: relation failed", "relation", label, "error", msg)
	}

	from, okFrom := resolveKey(ids, entry.From)
	to, okTo := resolveKey(ids, entry.To)
	if !okFrom || !okTo {
		fail("from and to are required")
		return
	}
	metadata, err := entry.Metadata.toMetadata()
	if err != nil {
		fail(err.Error())
		return
	}

	res, err := imp.engine.CreateSmart(ctx, engine.RelationRequest{
		FromMemberID: from,
		ToMemberID:   to,
		Type:         types.RelationType(entry.Type),
		Metadata:     metadata,
	})
	if err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) && verr.Has(engine.CodeDuplicateRelationship) {
			result.RelationsSkipped++
			return
		}
		fail(err.Error())
		return
	}

	result.RelationsCreated++
	result.Warnings += len(res.Warnings)
	if res.Corrected {
		result.RelationsCorrected++
		imp.logger.Info("import: relation direction corrected", "relation", label, "actual_type", res.ActualType)
	}
}

// memberNamespace scopes the name-based ids of members declared by key only.
var memberNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("familytree:member"))

// memberIDForKey derives a stable id from a document key, so importing the
// same document again upserts the same members.
func memberIDForKey(key string) string {
	return "mem:" + uuid.NewSHA1(memberNamespace, []byte(key)).String()
}

// resolveKey maps a document key to a member id. Keys not declared in the
// document are taken as ids of members already in the store.
func resolveKey(ids map[string]string, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	if id, ok := ids[key]; ok {
		return id, true
	}
	return key, true
}
