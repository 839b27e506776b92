package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"pagespace/application/ports"
	pkgerrors "pagespace/pkg/errors"
)

// DocumentStore implements ports.DocumentStore. Each document holds a
// single binary state item; the distinction between a missing item and an
// item with empty state is load-bearing, because only a missing item
// permits seeding from the page snapshot.
type DocumentStore struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewDocumentStore creates a DynamoDB-backed document store
func NewDocumentStore(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.DocumentStore {
	return &DocumentStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func documentPK(name string) string {
	return fmt.Sprintf("DOC#%s", name)
}

// LoadState returns the stored state, or (nil, nil) when no record exists
func (s *DocumentStore) LoadState(ctx context.Context, name string) ([]byte, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: documentPK(name)},
			"SK": &types.AttributeValueMemberS{Value: "STATE"},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.NewStorageError("get document state", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	state, ok := result.Item["State"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, pkgerrors.NewStorageError("document state attribute malformed", nil)
	}
	// An empty stored state is a real record, not absence. Never return
	// nil for it.
	if state.Value == nil {
		return []byte{}, nil
	}
	return state.Value, nil
}

// SaveState durably replaces the document state
func (s *DocumentStore) SaveState(ctx context.Context, name string, state []byte) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":         &types.AttributeValueMemberS{Value: documentPK(name)},
			"SK":         &types.AttributeValueMemberS{Value: "STATE"},
			"EntityType": &types.AttributeValueMemberS{Value: "DOCUMENT"},
			"State":      &types.AttributeValueMemberB{Value: state},
			"UpdatedAt":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return pkgerrors.NewStorageError("put document state", err)
	}

	s.logger.Debug("document state saved",
		zap.String("document", name),
		zap.Int("bytes", len(state)),
	)
	return nil
}

// DeleteState removes the document record
func (s *DocumentStore) DeleteState(ctx context.Context, name string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: documentPK(name)},
			"SK": &types.AttributeValueMemberS{Value: "STATE"},
		},
	})
	if err != nil {
		return pkgerrors.NewStorageError("delete document state", err)
	}
	return nil
}
