// Package identity binds external account subjects to directory members and
// removes those bindings after a member is deleted.
//
// Deleting a member commits first and unbinds afterwards. The Janitor makes
// that second step at-least-once: it retries the idempotent unbind with
// backoff and parks ids that keep failing in a dead-letter table for a later
// Redrive.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// Client is the subset of the DynamoDB API used by this package. *dynamodb.Client satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Bindings stores subject to member bindings.
type Bindings interface {
	// Bind ties subject to member. Rebinding the same pair is a no-op.
	Bind(ctx context.Context, subject string, member uuid.UUID) error

	// Lookup returns the member bound to subject, or ErrNotBound.
	Lookup(ctx context.Context, subject string) (uuid.UUID, error)

	// Unbind removes every binding to member. It succeeds when none exist.
	Unbind(ctx context.Context, member uuid.UUID) error
}

type bindingRecord struct {
	Subject string `dynamodbav:"sub"`
	Member  string `dynamodbav:"member"`
	BoundAt string `dynamodbav:"bound_at"`
}

// DynamoBindings is the DynamoDB-backed Bindings.
type DynamoBindings struct {
	client Client
	config Config
}

var _ Bindings = (*DynamoBindings)(nil)

// NewDynamoBindings creates bindings over client.
func NewDynamoBindings(client Client, config Config) *DynamoBindings {
	config.validate()
	return &DynamoBindings{client: client, config: config}
}

// Bind links subject to member. Rebinding a subject to the member it already
// has succeeds; binding it elsewhere returns ErrAlreadyBound.
func (b *DynamoBindings) Bind(ctx context.Context, subject string, member uuid.UUID) error {
	if subject == "" || member == uuid.Nil {
		return errors.New("identity: bind requires a subject and a member")
	}

	item, err := attributevalue.MarshalMap(bindingRecord{
		Subject: subject,
		Member:  member.String(),
		BoundAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal binding: %w", err)
	}

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(b.config.BindingsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#sub) OR #member = :member"),
		ExpressionAttributeNames: map[string]string{
			"#sub":    "sub",
			"#member": "member",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":member": &types.AttributeValueMemberS{Value: member.String()},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, subject)
	}
	return err
}

// Lookup returns the member bound to subject, or ErrNotBound.
func (b *DynamoBindings) Lookup(ctx context.Context, subject string) (uuid.UUID, error) {
	result, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.config.BindingsTable),
		Key: map[string]types.AttributeValue{
			"sub": &types.AttributeValueMemberS{Value: subject},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return uuid.Nil, err
	}
	if result.Item == nil {
		return uuid.Nil, ErrNotBound
	}

	var rec bindingRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return uuid.Nil, fmt.Errorf("unmarshal binding: %w", err)
	}
	id, err := uuid.Parse(rec.Member)
	if err != nil {
		return uuid.Nil, fmt.Errorf("binding %s member %q: %w", subject, rec.Member, err)
	}
	return id, nil
}

// Unbind queries the member index and deletes each binding found. Deleting an
// absent item succeeds, so a repeated Unbind is harmless.
func (b *DynamoBindings) Unbind(ctx context.Context, member uuid.UUID) error {
	paginator := dynamodb.NewQueryPaginator(b.client, &dynamodb.QueryInput{
		TableName:              aws.String(b.config.BindingsTable),
		IndexName:              aws.String(b.config.MemberIndex),
		KeyConditionExpression: aws.String("#member = :member"),
		ExpressionAttributeNames: map[string]string{
			"#member": "member",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":member": &types.AttributeValueMemberS{Value: member.String()},
		},
	})

	var subjects []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("query bindings for %s: %w", member, err)
		}
		for _, raw := range page.Items {
			var rec bindingRecord
			if err := attributevalue.UnmarshalMap(raw, &rec); err != nil {
				return fmt.Errorf("unmarshal binding: %w", err)
			}
			subjects = append(subjects, rec.Subject)
		}
	}

	for _, sub := range subjects {
		_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(b.config.BindingsTable),
			Key: map[string]types.AttributeValue{
				"sub": &types.AttributeValueMemberS{Value: sub},
			},
		})
		if err != nil {
			return fmt.Errorf("delete binding %s: %w", sub, err)
		}
	}
	return nil
}
