package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/identity"
)

// fakeClient keeps items per table keyed by their single hash key value.
type fakeClient struct {
	items map[string]map[string]map[string]types.AttributeValue
	keys  map[string]string

	lastPut   *dynamodb.PutItemInput
	lastQuery *dynamodb.QueryInput
	putErr    error
}

func newFakeClient() *fakeClient {
	cfg := identity.DefaultConfig()
	return &fakeClient{
		items: make(map[string]map[string]map[string]types.AttributeValue),
		keys: map[string]string{
			cfg.BindingsTable:   "sub",
			cfg.DeadLetterTable: "member",
		},
	}
}

func sval(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeClient) table(name string) map[string]map[string]types.AttributeValue {
	if f.items[name] == nil {
		f.items[name] = make(map[string]map[string]types.AttributeValue)
	}
	return f.items[name]
}

func (f *fakeClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	table := aws.ToString(in.TableName)
	item := f.table(table)[sval(in.Key[f.keys[table]])]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	table := aws.ToString(in.TableName)
	key := sval(in.Item[f.keys[table]])
	if existing, ok := f.table(table)[key]; ok && in.ConditionExpression != nil {
		if sval(existing["member"]) != sval(in.ExpressionAttributeValues[":member"]) {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}
		}
	}
	f.table(table)[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	table := aws.ToString(in.TableName)
	delete(f.table(table), sval(in.Key[f.keys[table]]))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQuery = in
	want := sval(in.ExpressionAttributeValues[":member"])
	var out []map[string]types.AttributeValue
	for _, item := range f.table(aws.ToString(in.TableName)) {
		if sval(item["member"]) == want {
			out = append(out, item)
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeClient) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	var out []map[string]types.AttributeValue
	for _, item := range f.table(aws.ToString(in.TableName)) {
		out = append(out, item)
	}
	return &dynamodb.ScanOutput{Items: out}, nil
}

func TestDefaultConfig(t *testing.T) {
	cfg := identity.DefaultConfig()
	if cfg.BindingsTable != "familydir_identities" {
		t.Errorf("expected BindingsTable 'familydir_identities', got %q", cfg.BindingsTable)
	}
	if cfg.MemberIndex != "member-index" {
		t.Errorf("expected MemberIndex 'member-index', got %q", cfg.MemberIndex)
	}
	if cfg.DeadLetterTable != "familydir_unbind_dead_letters" {
		t.Errorf("expected DeadLetterTable 'familydir_unbind_dead_letters', got %q", cfg.DeadLetterTable)
	}

	jc := identity.DefaultJanitorConfig()
	if jc.MaxRetries != 5 || jc.RetryBase != 100*time.Millisecond || jc.RetryCap != 5*time.Second {
		t.Errorf("unexpected janitor defaults %+v", jc)
	}
}

func TestDynamoBindings(t *testing.T) {
	client := newFakeClient()
	b := identity.NewDynamoBindings(client, identity.Config{})
	ctx := context.Background()
	m := uuid.New()

	if _, err := b.Lookup(ctx, "alice"); !errors.Is(err, identity.ErrNotBound) {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}

	if err := b.Bind(ctx, "alice", m); err != nil {
		t.Fatal(err)
	}
	if aws.ToString(client.lastPut.ConditionExpression) != "attribute_not_exists(#sub) OR #member = :member" {
		t.Errorf("unexpected bind condition %q", aws.ToString(client.lastPut.ConditionExpression))
	}
	if err := b.Bind(ctx, "alice", m); err != nil {
		t.Errorf("expected rebinding the same member to succeed, got %v", err)
	}
	if err := b.Bind(ctx, "alice", uuid.New()); !errors.Is(err, identity.ErrAlreadyBound) {
		t.Errorf("expected ErrAlreadyBound, got %v", err)
	}

	got, err := b.Lookup(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Errorf("expected %s, got %s", m, got)
	}
}

func TestDynamoBindings_BindRequiresBoth(t *testing.T) {
	b := identity.NewDynamoBindings(newFakeClient(), identity.Config{})
	if err := b.Bind(context.Background(), "", uuid.New()); err == nil {
		t.Error("expected error for empty subject")
	}
	if err := b.Bind(context.Background(), "bob", uuid.Nil); err == nil {
		t.Error("expected error for nil member")
	}
}

func TestDynamoBindings_Unbind(t *testing.T) {
	client := newFakeClient()
	b := identity.NewDynamoBindings(client, identity.Config{})
	ctx := context.Background()
	m, other := uuid.New(), uuid.New()

	for _, sub := range []string{"google|1", "apple|2"} {
		if err := b.Bind(ctx, sub, m); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Bind(ctx, "google|3", other); err != nil {
		t.Fatal(err)
	}

	if err := b.Unbind(ctx, m); err != nil {
		t.Fatal(err)
	}
	if aws.ToString(client.lastQuery.IndexName) != "member-index" {
		t.Errorf("expected query on member-index, got %q", aws.ToString(client.lastQuery.IndexName))
	}
	for _, sub := range []string{"google|1", "apple|2"} {
		if _, err := b.Lookup(ctx, sub); !errors.Is(err, identity.ErrNotBound) {
			t.Errorf("expected %s unbound, got %v", sub, err)
		}
	}
	if got, _ := b.Lookup(ctx, "google|3"); got != other {
		t.Error("expected other member's binding untouched")
	}

	// Idempotent
	if err := b.Unbind(ctx, m); err != nil {
		t.Errorf("expected repeated unbind to succeed, got %v", err)
	}
}

func TestDynamoDeadLetters(t *testing.T) {
	client := newFakeClient()
	d := identity.NewDynamoDeadLetters(client, identity.Config{})
	ctx := context.Background()
	early, late := uuid.New(), uuid.New()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := d.Put(ctx, identity.DeadLetter{MemberID: late, Attempts: 6, LastError: "throttled", FailedAt: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := d.Put(ctx, identity.DeadLetter{MemberID: early, Attempts: 6, FailedAt: base}); err != nil {
		t.Fatal(err)
	}

	got, err := d.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].MemberID != early || got[1].MemberID != late {
		t.Fatalf("expected oldest failure first, got %+v", got)
	}
	if got[1].LastError != "throttled" || got[1].Attempts != 6 || !got[1].FailedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("unexpected round trip %+v", got[1])
	}

	if err := d.Delete(ctx, early); err != nil {
		t.Fatal(err)
	}
	got, _ = d.List(ctx)
	if len(got) != 1 || got[0].MemberID != late {
		t.Errorf("expected only %s left, got %+v", late, got)
	}
}

// flakyUnbinder fails its first failures calls.
type flakyUnbinder struct {
	failures int
	calls    int
}

func (u *flakyUnbinder) Unbind(context.Context, uuid.UUID) error {
	u.calls++
	if u.calls <= u.failures {
		return errors.New("identity provider unavailable")
	}
	return nil
}

func fastJanitor(u identity.Unbinder, dead identity.DeadLetters) *identity.Janitor {
	cfg := identity.JanitorConfig{MaxRetries: 3, RetryBase: time.Millisecond, RetryCap: 2 * time.Millisecond}
	return identity.NewJanitor(u, dead, cfg, nil)
}

func TestJanitor_RetriesTransientFailure(t *testing.T) {
	u := &flakyUnbinder{failures: 2}
	dead := identity.NewMemoryDeadLetters()
	j := fastJanitor(u, dead)

	if err := j.Unbind(context.Background(), uuid.New()); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if u.calls != 3 {
		t.Errorf("expected 3 calls, got %d", u.calls)
	}
	if letters, _ := dead.List(context.Background()); len(letters) != 0 {
		t.Errorf("expected no dead letters, got %+v", letters)
	}
}

func TestJanitor_DeadLettersWhenExhausted(t *testing.T) {
	u := &flakyUnbinder{failures: 100}
	dead := identity.NewMemoryDeadLetters()
	j := fastJanitor(u, dead)
	m := uuid.New()

	if err := j.Unbind(context.Background(), m); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// One initial try plus MaxRetries.
	if u.calls != 4 {
		t.Errorf("expected 4 calls, got %d", u.calls)
	}

	letters, _ := dead.List(context.Background())
	if len(letters) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(letters))
	}
	if letters[0].MemberID != m || letters[0].Attempts != 4 || letters[0].LastError == "" {
		t.Errorf("unexpected dead letter %+v", letters[0])
	}
}

func TestJanitor_Redrive(t *testing.T) {
	ctx := context.Background()
	bindings := identity.NewMemoryBindings()
	dead := identity.NewMemoryDeadLetters()
	j := fastJanitor(bindings, dead)
	m := uuid.New()

	if err := bindings.Bind(ctx, "alice", m); err != nil {
		t.Fatal(err)
	}
	if err := dead.Put(ctx, identity.DeadLetter{MemberID: m, Attempts: 4, FailedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	n, err := j.Redrive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 redriven, got %d", n)
	}
	if _, err := bindings.Lookup(ctx, "alice"); !errors.Is(err, identity.ErrNotBound) {
		t.Errorf("expected binding removed, got %v", err)
	}
	if letters, _ := dead.List(ctx); len(letters) != 0 {
		t.Errorf("expected dead letters drained, got %+v", letters)
	}
}

func TestJanitor_RedriveKeepsFailures(t *testing.T) {
	ctx := context.Background()
	u := &flakyUnbinder{failures: 100}
	dead := identity.NewMemoryDeadLetters()
	j := fastJanitor(u, dead)
	m := uuid.New()

	if err := dead.Put(ctx, identity.DeadLetter{MemberID: m, Attempts: 4, FailedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	n, err := j.Redrive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected nothing redriven, got %d", n)
	}
	letters, _ := dead.List(ctx)
	if len(letters) != 1 || letters[0].Attempts != 8 {
		t.Errorf("expected attempts raised to 8, got %+v", letters)
	}
}

func TestMemoryBindings(t *testing.T) {
	ctx := context.Background()
	b := identity.NewMemoryBindings()
	m := uuid.New()

	if err := b.Bind(ctx, "alice", m); err != nil {
		t.Fatal(err)
	}
	if err := b.Bind(ctx, "alice", uuid.New()); !errors.Is(err, identity.ErrAlreadyBound) {
		t.Errorf("expected ErrAlreadyBound, got %v", err)
	}
	if got, _ := b.Lookup(ctx, "alice"); got != m {
		t.Errorf("expected %s, got %s", m, got)
	}
}
