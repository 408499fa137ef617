package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/internal/hashkey"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// Client is the subset of the DynamoDB API used by Store. *dynamodb.Client satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store is the DynamoDB-backed ItemStore.
type Store struct {
	client Client
	config Config
}

var _ ItemStore = (*Store)(nil)

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// GetMember retrieves a member by id with a strongly consistent read.
func (s *Store) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	raw, err := s.getItem(ctx, s.config.MembersTable, idKey(id))
	if err != nil {
		return nil, err
	}
	return unmarshalMember(raw)
}

// GetFamily retrieves a family unit by id with a strongly consistent read.
func (s *Store) GetFamily(ctx context.Context, id uuid.UUID) (*Family, error) {
	raw, err := s.getItem(ctx, s.config.FamiliesTable, idKey(id))
	if err != nil {
		return nil, err
	}
	return unmarshalFamily(raw)
}

// GetToken retrieves a change token, returning ErrNotFound if it expired or is missing.
func (s *Store) GetToken(ctx context.Context, id uuid.UUID) (*ChangeToken, error) {
	raw, err := s.getItem(ctx, s.config.TokensTable, idKey(id))
	if err != nil {
		return nil, err
	}

	if IsExpired(raw, time.Now()) {
		return nil, ErrNotFound
	}
	return unmarshalToken(raw)
}

func (s *Store) getItem(ctx context.Context, table string, key PK) (map[string]types.AttributeValue, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	return result.Item, nil
}

// FindMembersByEmail queries the email index. Index reads are eventually consistent;
// the unique constraint table is what enforces uniqueness at write time.
func (s *Store) FindMembersByEmail(ctx context.Context, email string) ([]Member, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.MembersTable),
		IndexName:              aws.String(s.config.EmailIndex),
		KeyConditionExpression: aws.String("#email = :email"),
		ExpressionAttributeNames: map[string]string{
			"#email": "email",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: hashkey.Normalize(email)},
		},
	})

	var members []Member
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			m, err := unmarshalMember(raw)
			if err != nil {
				return nil, err
			}
			members = append(members, *m)
		}
	}
	return members, nil
}

// ListMembers scans the member table.
func (s *Store) ListMembers(ctx context.Context) ([]Member, error) {
	var members []Member
	err := s.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.config.MembersTable)}, func(raw map[string]types.AttributeValue) error {
		m, err := unmarshalMember(raw)
		if err != nil {
			return err
		}
		members = append(members, *m)
		return nil
	})
	return members, err
}

// ListFamilies scans the family unit table.
func (s *Store) ListFamilies(ctx context.Context) ([]Family, error) {
	var families []Family
	err := s.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.config.FamiliesTable)}, func(raw map[string]types.AttributeValue) error {
		f, err := unmarshalFamily(raw)
		if err != nil {
			return err
		}
		families = append(families, *f)
		return nil
	})
	return families, err
}

// ListTokens scans the token table with automatic TTL filtering.
func (s *Store) ListTokens(ctx context.Context) ([]ChangeToken, error) {
	var tokens []ChangeToken
	filter, names, values := LiveFilter(time.Now())
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.config.TokensTable),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	err := s.scan(ctx, input, func(raw map[string]types.AttributeValue) error {
		t, err := unmarshalToken(raw)
		if err != nil {
			return err
		}
		tokens = append(tokens, *t)
		return nil
	})
	return tokens, err
}

func (s *Store) scan(ctx context.Context, input *dynamodb.ScanInput, fn func(map[string]types.AttributeValue) error) error {
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, raw := range page.Items {
			if err := fn(raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// Transact executes tx as a single TransactWriteItems call.
func (s *Store) Transact(ctx context.Context, tx *Tx) error {
	if err := tx.Validate(s.config.MaxTransactItems); err != nil {
		return err
	}

	now := time.Now()
	items := make([]types.TransactWriteItem, 0, tx.Len())
	for i, op := range tx.Ops() {
		item, err := s.transactItem(op, now)
		if err != nil {
			return fmt.Errorf("build item %d (%s): %w", i, op.Kind, err)
		}
		items = append(items, item)
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return mapTransactionError(err, tx.Ops())
}

// transactItem translates one op into a DynamoDB transaction item with its condition.
func (s *Store) transactItem(op Op, now time.Time) (types.TransactWriteItem, error) {
	switch op.Kind {
	case OpCreateMember, OpReplaceMember:
		if op.Member == nil {
			return types.TransactWriteItem{}, errors.New("missing member")
		}
		item, err := marshalMember(*op.Member, now)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		put := &types.Put{
			TableName:           aws.String(s.config.MembersTable),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		}
		if op.Kind == OpReplaceMember {
			put.ConditionExpression = aws.String("#version = :expected_version")
			put.ExpressionAttributeNames = map[string]string{"#version": "version"}
			put.ExpressionAttributeValues = map[string]types.AttributeValue{
				":expected_version": numberAttr(op.Version),
			}
		}
		return types.TransactWriteItem{Put: put}, nil

	case OpDeleteMember:
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName:           aws.String(s.config.MembersTable),
			Key:                 idKey(op.Target),
			ConditionExpression: aws.String("attribute_exists(id)"),
		}}, nil

	case OpCreateFamily:
		if op.Family == nil {
			return types.TransactWriteItem{}, errors.New("missing family")
		}
		item, err := marshalFamily(*op.Family)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Put: &types.Put{
			TableName:           aws.String(s.config.FamiliesTable),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		}}, nil

	case OpDeleteFamily:
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName:           aws.String(s.config.FamiliesTable),
			Key:                 idKey(op.Target),
			ConditionExpression: aws.String("attribute_exists(id) AND attribute_not_exists(#spouse) AND (attribute_not_exists(#descendants) OR size(#descendants) = :zero)"),
			ExpressionAttributeNames: map[string]string{
				"#spouse":      "spouse",
				"#descendants": "descendants",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":zero": numberAttr(0),
			},
		}}, nil

	case OpSetSpouse:
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                 aws.String(s.config.FamiliesTable),
			Key:                       idKey(op.Target),
			UpdateExpression:          aws.String("SET #spouse = :spouse"),
			ConditionExpression:       aws.String("attribute_exists(id) AND attribute_not_exists(#spouse)"),
			ExpressionAttributeNames:  map[string]string{"#spouse": "spouse"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":spouse": stringAttr(op.Ref.String())},
		}}, nil

	case OpClearSpouse:
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                 aws.String(s.config.FamiliesTable),
			Key:                       idKey(op.Target),
			UpdateExpression:          aws.String("REMOVE #spouse"),
			ConditionExpression:       aws.String("#spouse = :spouse"),
			ExpressionAttributeNames:  map[string]string{"#spouse": "spouse"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":spouse": stringAttr(op.Ref.String())},
		}}, nil

	case OpAppendDescendant:
		// Appending server-side means concurrent appends to one parent never lose an id
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                aws.String(s.config.FamiliesTable),
			Key:                      idKey(op.Target),
			UpdateExpression:         aws.String("SET #descendants = list_append(if_not_exists(#descendants, :empty), :new)"),
			ConditionExpression:      aws.String("attribute_exists(id) AND NOT contains(#descendants, :id)"),
			ExpressionAttributeNames: map[string]string{"#descendants": "descendants"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
				":new":   &types.AttributeValueMemberL{Value: []types.AttributeValue{stringAttr(op.Ref.String())}},
				":id":    stringAttr(op.Ref.String()),
			},
		}}, nil

	case OpRemoveDescendant:
		update := &types.Update{
			TableName:                aws.String(s.config.FamiliesTable),
			Key:                      idKey(op.Target),
			ExpressionAttributeNames: map[string]string{"#descendants": "descendants"},
		}
		if op.Observed <= 1 {
			update.UpdateExpression = aws.String("REMOVE #descendants")
			update.ConditionExpression = aws.String("size(#descendants) = :one AND #descendants[0] = :id")
			update.ExpressionAttributeValues = map[string]types.AttributeValue{
				":one": numberAttr(1),
				":id":  stringAttr(op.Ref.String()),
			}
		} else {
			update.UpdateExpression = aws.String(fmt.Sprintf("REMOVE #descendants[%d]", op.Index))
			update.ConditionExpression = aws.String(fmt.Sprintf("#descendants[%d] = :id", op.Index))
			update.ExpressionAttributeValues = map[string]types.AttributeValue{
				":id": stringAttr(op.Ref.String()),
			}
		}
		return types.TransactWriteItem{Update: update}, nil

	case OpClaimEmail:
		key := uniqueKey(op.Email)
		return types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(s.config.UniqueTable),
			Item: map[string]types.AttributeValue{
				"pk":          key["pk"],
				"sk":          key["sk"],
				"entity_type": stringAttr("member"),
				"field_name":  stringAttr("email"),
				"member":      stringAttr(op.Ref.String()),
			},
			// Fails if another member already has this email
			ConditionExpression:       aws.String("attribute_not_exists(pk) OR #member = :member"),
			ExpressionAttributeNames:  map[string]string{"#member": "member"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":member": stringAttr(op.Ref.String())},
		}}, nil

	case OpReleaseEmail:
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName:                 aws.String(s.config.UniqueTable),
			Key:                       uniqueKey(op.Email),
			ConditionExpression:       aws.String("attribute_not_exists(pk) OR #member = :member"),
			ExpressionAttributeNames:  map[string]string{"#member": "member"},
			ExpressionAttributeValues: map[string]types.AttributeValue{":member": stringAttr(op.Ref.String())},
		}}, nil

	case OpCreateToken, OpPutLatest:
		tok := ChangeToken{ID: op.Target, Next: op.Ref}
		if op.Kind == OpCreateToken {
			if op.Token == nil {
				return types.TransactWriteItem{}, errors.New("missing token")
			}
			tok = *op.Token
		}
		item, err := marshalToken(tok)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Put: &types.Put{
			TableName:           aws.String(s.config.TokensTable),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		}}, nil

	case OpLinkToken:
		return types.TransactWriteItem{Update: &types.Update{
			TableName:           aws.String(s.config.TokensTable),
			Key:                 idKey(op.Target),
			UpdateExpression:    aws.String("SET #next = :next, #ttl = :ttl"),
			ConditionExpression: aws.String("attribute_exists(id) AND attribute_not_exists(#next)"),
			ExpressionAttributeNames: map[string]string{
				"#next": "next",
				"#ttl":  "ttl",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":next": stringAttr(op.Ref.String()),
				":ttl":  numberAttr(op.TTL),
			},
		}}, nil

	case OpAdvanceLatest:
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                aws.String(s.config.TokensTable),
			Key:                      idKey(LatestID),
			UpdateExpression:         aws.String("SET #next = :next"),
			ConditionExpression:      aws.String("#next = :prev"),
			ExpressionAttributeNames: map[string]string{"#next": "next"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":next": stringAttr(op.Ref.String()),
				":prev": stringAttr(op.Prev.String()),
			},
		}}, nil
	}

	return types.TransactWriteItem{}, fmt.Errorf("unknown op %s", op.Kind)
}

// mapTransactionError maps DynamoDB transaction errors to a *TxError naming the failed item.
func mapTransactionError(err error, ops []Op) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || i >= len(ops) {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed":
				return &TxError{Index: i, Op: ops[i].Kind, Err: ErrConditionFailed}
			case "TransactionConflict":
				return &TxError{Index: i, Op: ops[i].Kind, Err: ErrTransactionConflict}
			}
		}
	}

	var conflictErr *types.TransactionConflictException
	if errors.As(err, &conflictErr) {
		return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
	}

	return err
}

func stringAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func numberAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}
