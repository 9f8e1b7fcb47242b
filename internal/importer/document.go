package importer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/familytree/pkg/types"
)

// Document is the YAML family-tree fixture format:
//
//	members:
//	  - key: carlos
//	    first_name: Carlos
//	    last_name: Moura
//	    birth_date: 1950-01-15
//	    gender: male
//	relations:
//	  - from: carlos
//	    to: rita
//	    type: parent
//
// Relations refer to members by key. A member's key defaults to its id; a
// member without an id is given one.
type Document struct {
	Members   []MemberEntry   `yaml:"members"`
	Relations []RelationEntry `yaml:"relations"`
}

// MemberEntry is one member of a Document.
type MemberEntry struct {
	Key       string `yaml:"key"`
	ID        string `yaml:"id"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	BirthDate string `yaml:"birth_date"`
	Gender    string `yaml:"gender"`
}

// RelationEntry is one requested relationship of a Document.
type RelationEntry struct {
	From     string         `yaml:"from"`
	To       string         `yaml:"to"`
	Type     string         `yaml:"type"`
	Metadata *MetadataEntry `yaml:"metadata"`
}

// MetadataEntry carries optional relationship details.
type MetadataEntry struct {
	MarriageDate string `yaml:"marriage_date"`
	DivorceDate  string `yaml:"divorce_date"`
	Notes        string `yaml:"notes"`
}

const dateLayout = "2006-01-02"

// ParseDocument decodes a Document. Unknown fields are rejected.
func ParseDocument(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return &doc, nil
}

// toMember converts the entry, assigning id when the entry has none.
func (m MemberEntry) toMember(id string) (*types.Member, error) {
	if strings.TrimSpace(m.FirstName) == "" {
		return nil, fmt.Errorf("member %q: first_name is required", m.key())
	}
	member := &types.Member{
		ID:        id,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Gender:    types.Gender(strings.ToLower(m.Gender)),
	}
	if !member.Gender.IsValid() {
		return nil, fmt.Errorf("member %q: unknown gender %q", m.key(), m.Gender)
	}
	born, err := parseOptionalDate(m.BirthDate)
	if err != nil {
		return nil, fmt.Errorf("member %q: birth_date: %w", m.key(), err)
	}
	member.BirthDate = born
	return member, nil
}

func (m MemberEntry) key() string {
	if m.Key != "" {
		return m.Key
	}
	return m.ID
}

func (md *MetadataEntry) toMetadata() (*types.RelationMetadata, error) {
	if md == nil {
		return nil, nil
	}
	married, err := parseOptionalDate(md.MarriageDate)
	if err != nil {
		return nil, fmt.Errorf("marriage_date: %w", err)
	}
	divorced, err := parseOptionalDate(md.DivorceDate)
	if err != nil {
		return nil, fmt.Errorf("divorce_date: %w", err)
	}
	return &types.RelationMetadata{MarriageDate: married, DivorceDate: divorced, Notes: md.Notes}, nil
}

func parseOptionalDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("want YYYY-MM-DD, got %q", s)
	}
	return &t, nil
}
