package identity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DeadLetter is an unbind that exhausted its retries.
type DeadLetter struct {
	MemberID  uuid.UUID
	Attempts  int
	LastError string
	FailedAt  time.Time
}

// DeadLetters parks failed unbinds until they are redriven.
type DeadLetters interface {
	// Put records or replaces the dead letter for its member.
	Put(ctx context.Context, d DeadLetter) error

	// List returns every dead letter, oldest failure first.
	List(ctx context.Context) ([]DeadLetter, error)

	// Delete removes the dead letter for member.
	Delete(ctx context.Context, member uuid.UUID) error
}

type deadLetterRecord struct {
	Member    string `dynamodbav:"member"`
	Attempts  int    `dynamodbav:"attempts"`
	LastError string `dynamodbav:"last_error,omitempty"`
	FailedAt  string `dynamodbav:"failed_at"`
}

// DynamoDeadLetters is the DynamoDB-backed DeadLetters.
type DynamoDeadLetters struct {
	client Client
	config Config
}

var _ DeadLetters = (*DynamoDeadLetters)(nil)

// NewDynamoDeadLetters creates a dead-letter table over client.
func NewDynamoDeadLetters(client Client, config Config) *DynamoDeadLetters {
	config.validate()
	return &DynamoDeadLetters{client: client, config: config}
}

// Put records dl, replacing any earlier entry for the same member.
func (d *DynamoDeadLetters) Put(ctx context.Context, dl DeadLetter) error {
	item, err := attributevalue.MarshalMap(deadLetterRecord{
		Member:    dl.MemberID.String(),
		Attempts:  dl.Attempts,
		LastError: dl.LastError,
		FailedAt:  dl.FailedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.config.DeadLetterTable),
		Item:      item,
	})
	return err
}

// List returns every dead letter, oldest first.
func (d *DynamoDeadLetters) List(ctx context.Context) ([]DeadLetter, error) {
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName: aws.String(d.config.DeadLetterTable),
	})

	var out []DeadLetter
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			dl, err := unmarshalDeadLetter(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, dl)
		}
	}
	sortDeadLetters(out)
	return out, nil
}

// Delete drops the entry for member. Deleting a missing entry succeeds.
func (d *DynamoDeadLetters) Delete(ctx context.Context, member uuid.UUID) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.config.DeadLetterTable),
		Key: map[string]types.AttributeValue{
			"member": &types.AttributeValueMemberS{Value: member.String()},
		},
	})
	return err
}

func unmarshalDeadLetter(raw map[string]types.AttributeValue) (DeadLetter, error) {
	var rec deadLetterRecord
	if err := attributevalue.UnmarshalMap(raw, &rec); err != nil {
		return DeadLetter{}, fmt.Errorf("unmarshal dead letter: %w", err)
	}
	id, err := uuid.Parse(rec.Member)
	if err != nil {
		return DeadLetter{}, fmt.Errorf("dead letter member %q: %w", rec.Member, err)
	}
	failedAt, err := time.Parse(time.RFC3339, rec.FailedAt)
	if err != nil {
		return DeadLetter{}, fmt.Errorf("dead letter %s failed_at %q: %w", id, rec.FailedAt, err)
	}
	return DeadLetter{
		MemberID:  id,
		Attempts:  rec.Attempts,
		LastError: rec.LastError,
		FailedAt:  failedAt,
	}, nil
}

func sortDeadLetters(dls []DeadLetter) {
	sort.Slice(dls, func(i, j int) bool {
		if !dls[i].FailedAt.Equal(dls[j].FailedAt) {
			return dls[i].FailedAt.Before(dls[j].FailedAt)
		}
		return dls[i].MemberID.String() < dls[j].MemberID.String()
	})
}
