//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
//
// AWS_PROFILE selects credentials. DYNAMODB_ENDPOINT points the tests at a
// local DynamoDB instead.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/chain"
	"github.com/Kapral67/FamilyDirectory-sub001/config"
	"github.com/Kapral67/FamilyDirectory-sub001/engine"
	"github.com/Kapral67/FamilyDirectory-sub001/identity"
	"github.com/Kapral67/FamilyDirectory-sub001/internal/app"
	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

// Table names are unique per test run to avoid conflicts.
const tablePrefix = "familydir-e2e-test"

var (
	testID string
	cfg    config.Config

	ddbClient   *dynamodb.Client
	testStore   *store.Store
	testChain   *chain.Chain
	bindings    *identity.DynamoBindings
	deadLetters *identity.DynamoDeadLetters
	logger      *slog.Logger
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]
	table := func(name string) string {
		return fmt.Sprintf("%s-%s-%s", tablePrefix, testID, name)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Store.MembersTable = table("members")
	cfg.Store.FamiliesTable = table("families")
	cfg.Store.TokensTable = table("tokens")
	cfg.Store.UniqueTable = table("unique")
	cfg.Identity.BindingsTable = table("identities")
	cfg.Identity.DeadLetterTable = table("dead-letters")
	cfg.Janitor.MaxRetries = 2
	cfg.Janitor.RetryBase = 10 * time.Millisecond

	fmt.Printf("Test ID: %s\n", testID)

	ctx := context.Background()
	ddbClient, err = app.NewDynamoClient(ctx, cfg.AWS)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}

	if err := createTables(ctx); err != nil {
		fmt.Printf("Failed to create tables: %v\n", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	a := app.Build(ddbClient, cfg, logger)
	testStore = a.Store
	testChain = a.Chain
	bindings = a.Bindings
	deadLetters = a.DeadLetters

	code := m.Run()

	if err := deleteTables(ctx); err != nil {
		fmt.Printf("Failed to delete tables: %v\n", err)
	}

	os.Exit(code)
}

func hashTable(name, key string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(key), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(key), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
}

func withIndex(in *dynamodb.CreateTableInput, index, key string) *dynamodb.CreateTableInput {
	in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
		AttributeName: aws.String(key), AttributeType: types.ScalarAttributeTypeS,
	})
	in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
		IndexName: aws.String(index),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(key), KeyType: types.KeyTypeHash},
		},
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	})
	return in
}

func allTables() []string {
	return []string{
		cfg.Store.MembersTable,
		cfg.Store.FamiliesTable,
		cfg.Store.TokensTable,
		cfg.Store.UniqueTable,
		cfg.Identity.BindingsTable,
		cfg.Identity.DeadLetterTable,
	}
}

func createTables(ctx context.Context) error {
	fmt.Println("Creating test tables...")

	unique := hashTable(cfg.Store.UniqueTable, "pk")
	unique.KeySchema = append(unique.KeySchema, types.KeySchemaElement{
		AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange,
	})
	unique.AttributeDefinitions = append(unique.AttributeDefinitions, types.AttributeDefinition{
		AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeS,
	})

	inputs := []*dynamodb.CreateTableInput{
		withIndex(hashTable(cfg.Store.MembersTable, "id"), cfg.Store.EmailIndex, "email"),
		hashTable(cfg.Store.FamiliesTable, "id"),
		hashTable(cfg.Store.TokensTable, "id"),
		unique,
		withIndex(hashTable(cfg.Identity.BindingsTable, "sub"), cfg.Identity.MemberIndex, "member"),
		hashTable(cfg.Identity.DeadLetterTable, "member"),
	}
	for _, in := range inputs {
		if _, err := ddbClient.CreateTable(ctx, in); err != nil {
			return fmt.Errorf("create table %s: %w", aws.ToString(in.TableName), err)
		}
	}

	for _, tableName := range allTables() {
		waiter := dynamodb.NewTableExistsWaiter(ddbClient)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", tableName, err)
		}
	}

	fmt.Println("All tables created and active")
	return nil
}

func deleteTables(ctx context.Context) error {
	fmt.Println("Deleting test tables...")

	for _, tableName := range allTables() {
		_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			fmt.Printf("Warning: failed to delete table %s: %v\n", tableName, err)
		}
	}

	fmt.Println("Tables deleted")
	return nil
}

// --- Helpers ---

// newEngine returns an engine over the shared tables with its own root id, so
// tests do not contend for one root.
func newEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, uuid.UUID) {
	t.Helper()
	rootID := uuid.New()
	ecfg := cfg.Engine
	ecfg.RootID = rootID
	return engine.New(testStore, ecfg, logger, opts...), rootID
}

func person(first, last, birthday string) engine.Attributes {
	return engine.Attributes{FirstName: first, LastName: last, Birthday: birthday}
}

func mustExecute(t *testing.T, e *engine.Engine, req engine.Request, err error) *store.Member {
	t.Helper()
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	m, err := e.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("%s failed: %v", req.Op(), err)
	}
	return m
}

// eventually retries fn until it succeeds, for reads served by a global
// secondary index.
func eventually(t *testing.T, fn func() error) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for {
		err := fn()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// --- Engine Tests ---

func TestCreateRoot(t *testing.T) {
	ctx := context.Background()
	e, rootID := newEngine(t)

	req, err := engine.NewCreateRoot(person("Ada", "Lovelace", "1815-12-10"))
	root := mustExecute(t, e, req, err)
	if root.ID != rootID || root.FamilyID != rootID {
		t.Fatalf("root = %s in %s, want %s", root.ID, root.FamilyID, rootID)
	}

	family, err := testStore.GetFamily(ctx, rootID)
	if err != nil {
		t.Fatalf("GetFamily failed: %v", err)
	}
	if !family.IsRoot() {
		t.Errorf("expected root family, ancestor %s", family.AncestorID)
	}

	if _, err := e.Execute(ctx, req); !errors.Is(err, engine.ErrAlreadyExists) {
		t.Errorf("second root: expected ErrAlreadyExists, got %v", err)
	}
}

func TestFamilyTree(t *testing.T) {
	ctx := context.Background()
	e, rootID := newEngine(t)

	req, err := engine.NewCreateRoot(person("Ada", "Lovelace", "1815-12-10"))
	mustExecute(t, e, req, err)

	spouseReq, err := engine.NewCreateSpouse(rootID, person("William", "King", "1805-02-21"))
	spouse := mustExecute(t, e, spouseReq, err)
	if spouse.FamilyID != rootID || spouse.IsNative() {
		t.Errorf("spouse should be naturalized into %s, got family %s", rootID, spouse.FamilyID)
	}

	childReq, err := engine.NewCreateDescendant(spouse.ID, person("Byron", "King", "1836-05-12"))
	child := mustExecute(t, e, childReq, err)
	if !child.IsNative() {
		t.Error("descendant should head its own family unit")
	}

	family, err := testStore.GetFamily(ctx, rootID)
	if err != nil {
		t.Fatalf("GetFamily failed: %v", err)
	}
	if family.SpouseID != spouse.ID {
		t.Errorf("spouse = %s, want %s", family.SpouseID, spouse.ID)
	}
	if family.IndexOf(child.ID) < 0 {
		t.Errorf("descendants %v missing %s", family.DescendantIDs, child.ID)
	}

	childFamily, err := testStore.GetFamily(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetFamily(child) failed: %v", err)
	}
	if childFamily.AncestorID != rootID {
		t.Errorf("child ancestor = %s, want %s", childFamily.AncestorID, rootID)
	}

	// The root unit cannot be dissolved while it has members.
	delRoot, _ := engine.NewDeleteMember(rootID)
	if _, err := e.Execute(ctx, delRoot); !errors.Is(err, engine.ErrConflict) {
		t.Errorf("delete root: expected ErrConflict, got %v", err)
	}

	delChild, err := engine.NewDeleteMember(child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Execute(ctx, delChild); err != nil {
		t.Fatalf("delete child failed: %v", err)
	}
	if _, err := testStore.GetFamily(ctx, child.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("child family should be gone, got %v", err)
	}

	family, err = testStore.GetFamily(ctx, rootID)
	if err != nil {
		t.Fatalf("GetFamily failed: %v", err)
	}
	if family.HasDescendants() {
		t.Errorf("descendants = %v, want none", family.DescendantIDs)
	}
}

func TestUpdateMember_Email(t *testing.T) {
	ctx := context.Background()
	e, rootID := newEngine(t)

	ada := person("Ada", "Lovelace", "1815-12-10")
	ada.Email = fmt.Sprintf("ada-%s@example.com", testID)
	req, err := engine.NewCreateRoot(ada)
	mustExecute(t, e, req, err)

	// A second member cannot take the same address, in any case.
	william := person("William", "King", "1805-02-21")
	william.Email = "  " + ada.Email
	spouseReq, err := engine.NewCreateSpouse(rootID, william)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Execute(ctx, spouseReq); !errors.Is(err, engine.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	// Releasing the address lets another member claim it.
	ada.Email = ""
	updReq, err := engine.NewUpdateMember(rootID, ada)
	updated := mustExecute(t, e, updReq, err)
	if updated.Email != "" {
		t.Errorf("email = %q, want cleared", updated.Email)
	}
	if updated.Version < 2 {
		t.Errorf("version = %d, want at least 2", updated.Version)
	}

	// The availability pre-check reads the email index, which may lag the
	// release.
	var spouse *store.Member
	eventually(t, func() error {
		spouse, err = e.Execute(ctx, spouseReq)
		return err
	})

	eventually(t, func() error {
		found, err := testStore.FindMembersByEmail(ctx, william.Email)
		if err != nil {
			return err
		}
		if len(found) != 1 || found[0].ID != spouse.ID {
			return fmt.Errorf("found %d members", len(found))
		}
		return nil
	})
}

// --- Chain Tests ---

func TestChain_AppendAndSince(t *testing.T) {
	ctx := context.Background()

	first := uuid.New()
	if _, err := testChain.Append(ctx, []uuid.UUID{first}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	cur, err := testChain.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}

	e, rootID := newEngine(t, engine.WithNotifier(testChain))
	req, err := engine.NewCreateRoot(person("Ada", "Lovelace", "1815-12-10"))
	mustExecute(t, e, req, err)

	d, err := testChain.Since(ctx, cur)
	if err != nil {
		t.Fatalf("Since failed: %v", err)
	}
	if len(d.Members) != 1 || d.Members[0] != rootID {
		t.Errorf("changed = %v, want [%s]", d.Members, rootID)
	}

	report, err := testChain.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !report.OK() {
		t.Errorf("chain damaged: %s", report)
	}
}

// --- Identity Tests ---

func TestBindings_Lifecycle(t *testing.T) {
	ctx := context.Background()
	member := uuid.New()
	sub := "e2e|" + uuid.NewString()

	if err := bindings.Bind(ctx, sub, member); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := bindings.Bind(ctx, sub, uuid.New()); !errors.Is(err, identity.ErrAlreadyBound) {
		t.Errorf("rebind to another member: expected ErrAlreadyBound, got %v", err)
	}

	got, err := bindings.Lookup(ctx, sub)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got != member {
		t.Errorf("Lookup = %s, want %s", got, member)
	}

	eventually(t, func() error {
		if err := bindings.Unbind(ctx, member); err != nil {
			return err
		}
		if _, err := bindings.Lookup(ctx, sub); !errors.Is(err, identity.ErrNotBound) {
			return fmt.Errorf("still bound: %v", err)
		}
		return nil
	})
}

func TestDeleteMember_Unbinds(t *testing.T) {
	ctx := context.Background()
	janitor := identity.NewJanitor(bindings, deadLetters, cfg.Janitor, logger)
	e, rootID := newEngine(t, engine.WithUnbinder(janitor))

	req, err := engine.NewCreateRoot(person("Ada", "Lovelace", "1815-12-10"))
	mustExecute(t, e, req, err)
	childReq, err := engine.NewCreateDescendant(rootID, person("Byron", "King", "1836-05-12"))
	child := mustExecute(t, e, childReq, err)

	sub := "e2e|" + uuid.NewString()
	if err := bindings.Bind(ctx, sub, child.ID); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	// Wait for the member index to see the binding before deleting.
	eventually(t, func() error {
		out, err := ddbClient.Query(ctx, &dynamodb.QueryInput{
			TableName:                aws.String(cfg.Identity.BindingsTable),
			IndexName:                aws.String(cfg.Identity.MemberIndex),
			KeyConditionExpression:   aws.String("#member = :member"),
			ExpressionAttributeNames: map[string]string{"#member": "member"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":member": &types.AttributeValueMemberS{Value: child.ID.String()},
			},
		})
		if err != nil {
			return err
		}
		if len(out.Items) == 0 {
			return errors.New("binding not indexed yet")
		}
		return nil
	})

	del, err := engine.NewDeleteMember(child.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Execute(ctx, del); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := bindings.Lookup(ctx, sub); !errors.Is(err, identity.ErrNotBound) {
		t.Errorf("expected binding removed, got %v", err)
	}
}

func TestDeadLetters_Redrive(t *testing.T) {
	ctx := context.Background()
	member := uuid.New()

	if err := deadLetters.Put(ctx, identity.DeadLetter{
		MemberID:  member,
		Attempts:  3,
		LastError: "throttled",
		FailedAt:  time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	janitor := identity.NewJanitor(bindings, deadLetters, cfg.Janitor, logger)
	n, err := janitor.Redrive(ctx)
	if err != nil {
		t.Fatalf("Redrive failed: %v", err)
	}
	if n < 1 {
		t.Errorf("redriven = %d, want at least 1", n)
	}

	letters, err := deadLetters.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, dl := range letters {
		if dl.MemberID == member {
			t.Errorf("dead letter for %s should be removed", member)
		}
	}
}
