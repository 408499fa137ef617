package store

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

type memberRecord struct {
	ID         string            `dynamodbav:"id"`
	FamilyID   string            `dynamodbav:"family_id"`
	FirstName  string            `dynamodbav:"first_name"`
	MiddleName string            `dynamodbav:"middle_name,omitempty"`
	LastName   string            `dynamodbav:"last_name"`
	Suffix     string            `dynamodbav:"suffix,omitempty"`
	Birthday   string            `dynamodbav:"birthday"`
	Deathday   string            `dynamodbav:"deathday,omitempty"`
	Email      string            `dynamodbav:"email,omitempty"`
	Phones     map[string]string `dynamodbav:"phones,omitempty"`
	Address    []string          `dynamodbav:"address,omitempty"`
	MemberKey  string            `dynamodbav:"member_key"`
	Version    int64             `dynamodbav:"version"`
	UpdatedAt  string            `dynamodbav:"updated_at"`
}

type familyRecord struct {
	ID          string   `dynamodbav:"id"`
	Ancestor    string   `dynamodbav:"ancestor"`
	Spouse      string   `dynamodbav:"spouse,omitempty"`
	Descendants []string `dynamodbav:"descendants,omitempty"`
}

type tokenRecord struct {
	ID      string   `dynamodbav:"id"`
	Next    string   `dynamodbav:"next,omitempty"`
	Members []string `dynamodbav:"members,omitempty"`
	TTL     int64    `dynamodbav:"ttl,omitempty"`
}

func marshalMember(m Member, now time.Time) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(memberRecord{
		ID:         m.ID.String(),
		FamilyID:   m.FamilyID.String(),
		FirstName:  m.FirstName,
		MiddleName: m.MiddleName,
		LastName:   m.LastName,
		Suffix:     m.Suffix,
		Birthday:   m.Birthday,
		Deathday:   m.Deathday,
		Email:      m.Email,
		Phones:     m.Phones,
		Address:    m.Address,
		MemberKey:  m.Key(),
		Version:    m.Version,
		UpdatedAt:  now.UTC().Format(time.RFC3339),
	})
}

func unmarshalMember(raw map[string]types.AttributeValue) (*Member, error) {
	var rec memberRecord
	if err := attributevalue.UnmarshalMap(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal member: %w", err)
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("member id %q: %w", rec.ID, err)
	}
	familyID, err := uuid.Parse(rec.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("member %s family_id %q: %w", id, rec.FamilyID, err)
	}
	return &Member{
		ID:         id,
		FamilyID:   familyID,
		FirstName:  rec.FirstName,
		MiddleName: rec.MiddleName,
		LastName:   rec.LastName,
		Suffix:     rec.Suffix,
		Birthday:   rec.Birthday,
		Deathday:   rec.Deathday,
		Email:      rec.Email,
		Phones:     rec.Phones,
		Address:    rec.Address,
		Version:    rec.Version,
	}, nil
}

func marshalFamily(f Family) (map[string]types.AttributeValue, error) {
	rec := familyRecord{
		ID:          f.ID.String(),
		Ancestor:    f.AncestorID.String(),
		Descendants: uuidStrings(f.DescendantIDs),
	}
	if f.HasSpouse() {
		rec.Spouse = f.SpouseID.String()
	}
	return attributevalue.MarshalMap(rec)
}

func unmarshalFamily(raw map[string]types.AttributeValue) (*Family, error) {
	var rec familyRecord
	if err := attributevalue.UnmarshalMap(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal family: %w", err)
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("family id %q: %w", rec.ID, err)
	}
	f := &Family{ID: id}
	if f.AncestorID, err = uuid.Parse(rec.Ancestor); err != nil {
		return nil, fmt.Errorf("family %s ancestor %q: %w", id, rec.Ancestor, err)
	}
	if rec.Spouse != "" {
		if f.SpouseID, err = uuid.Parse(rec.Spouse); err != nil {
			return nil, fmt.Errorf("family %s spouse %q: %w", id, rec.Spouse, err)
		}
	}
	if f.DescendantIDs, err = parseUUIDs(rec.Descendants); err != nil {
		return nil, fmt.Errorf("family %s descendants: %w", id, err)
	}
	return f, nil
}

func marshalToken(t ChangeToken) (map[string]types.AttributeValue, error) {
	rec := tokenRecord{
		ID:      t.ID.String(),
		Members: uuidStrings(t.Members),
		TTL:     t.TTL,
	}
	if t.Superseded() {
		rec.Next = t.Next.String()
	}
	return attributevalue.MarshalMap(rec)
}

func unmarshalToken(raw map[string]types.AttributeValue) (*ChangeToken, error) {
	var rec tokenRecord
	if err := attributevalue.UnmarshalMap(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("token id %q: %w", rec.ID, err)
	}
	t := &ChangeToken{ID: id, TTL: rec.TTL}
	if rec.Next != "" {
		if t.Next, err = uuid.Parse(rec.Next); err != nil {
			return nil, fmt.Errorf("token %s next %q: %w", id, rec.Next, err)
		}
	}
	if t.Members, err = parseUUIDs(rec.Members); err != nil {
		return nil, fmt.Errorf("token %s members: %w", id, err)
	}
	return t, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, len(values))
	for i, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", v, err)
		}
		out[i] = id
	}
	return out, nil
}

func idKey(id uuid.UUID) PK {
	return PK{"id": &types.AttributeValueMemberS{Value: id.String()}}
}

func uniqueKey(email string) PK {
	return PK{
		"pk": &types.AttributeValueMemberS{Value: EmailKey(email)},
		"sk": &types.AttributeValueMemberS{Value: "CONSTRAINT"},
	}
}
