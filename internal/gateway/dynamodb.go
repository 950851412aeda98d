package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "coauthor-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// DBClient is the subset of the DynamoDB client the store uses.
type DBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// recordItem is the table layout. One item per aggregate, keyed
// PK=<KIND>#<id>, SK=STATE.
type recordItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Kind      string `dynamodbav:"Kind"`
	ID        string `dynamodbav:"ID"`
	Body      []byte `dynamodbav:"Body"`
	Version   int64  `dynamodbav:"Version"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
}

const stateSortKey = "STATE"

// DynamoStore stores records in a single DynamoDB table.
type DynamoStore struct {
	client    DBClient
	tableName string
	logger    *zap.Logger
}

// NewDynamoStore creates a store over tableName.
func NewDynamoStore(client DBClient, tableName string, logger *zap.Logger) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, logger: logger}
}

func partitionKey(kind Kind, id string) string {
	switch kind {
	case KindDocument:
		return "DOC#" + id
	case KindGraph:
		return "GRAPH#" + id
	default:
		return string(kind) + "#" + id
	}
}

func (s *DynamoStore) key(kind Kind, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: partitionKey(kind, id)},
		"SK": &types.AttributeValueMemberS{Value: stateSortKey},
	}
}

func (s *DynamoStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(kind, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, dynamoError("GetItem", err)
	}
	if result.Item == nil {
		return nil, apperrors.NewNotFoundError(string(kind))
	}

	var item recordItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, apperrors.NewDatabaseError("UnmarshalMap", err)
	}
	updated, _ := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	return &Record{
		Kind:      Kind(item.Kind),
		ID:        item.ID,
		Body:      item.Body,
		Version:   item.Version,
		UpdatedAt: updated,
	}, nil
}

func (s *DynamoStore) Put(ctx context.Context, rec Record, expectedVersion int64) error {
	item, err := attributevalue.MarshalMap(recordItem{
		PK:        partitionKey(rec.Kind, rec.ID),
		SK:        stateSortKey,
		Kind:      string(rec.Kind),
		ID:        rec.ID,
		Body:      rec.Body,
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return apperrors.NewDatabaseError("MarshalMap", err)
	}

	var condition expression.ConditionBuilder
	if expectedVersion == 0 {
		condition = expression.Name("PK").AttributeNotExists()
	} else {
		condition = expression.Name("Version").Equal(expression.Value(expectedVersion))
	}
	expr, err := expression.NewBuilder().WithCondition(condition).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return apperrors.NewConflictError(fmt.Sprintf("%s '%s' version %d is stale", rec.Kind, rec.ID, expectedVersion))
		}
		return dynamoError("PutItem", err)
	}

	s.logger.Debug("Record saved",
		zap.String("kind", string(rec.Kind)),
		zap.String("id", rec.ID),
		zap.Int64("version", rec.Version),
	)
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, kind Kind, id string) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(kind, id),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return apperrors.NewNotFoundError(string(kind))
		}
		return dynamoError("DeleteItem", err)
	}
	return nil
}

func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)})
	if err != nil {
		return dynamoError("DescribeTable", err)
	}
	return nil
}

// dynamoError maps client failures onto the error taxonomy. Throttling and
// a missing table mean the store is unavailable, not that the data is bad.
func dynamoError(operation string, err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
			return apperrors.NewUnavailableError("dynamodb").WithCause(err)
		case "ResourceNotFoundException":
			return apperrors.NewUnavailableError("dynamodb table").WithCause(err)
		}
	}
	return apperrors.NewDatabaseError(operation, err)
}
