package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"pagespace/application/ports"
	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
	pkgerrors "pagespace/pkg/errors"
)

// MemberRepository implements ports.MemberRepository. Memberships sit in
// the workspace partition for authorization checks and carry GSI1 keys
// for the reverse user-to-workspaces query.
type MemberRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewMemberRepository creates a DynamoDB-backed member repository
func NewMemberRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.MemberRepository {
	return &MemberRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// memberItem represents the DynamoDB item structure for a membership
type memberItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	GSI1PK      string `dynamodbav:"GSI1PK"` // For membership lookups by user
	GSI1SK      string `dynamodbav:"GSI1SK"`
	EntityType  string `dynamodbav:"EntityType"`
	MemberID    string `dynamodbav:"MemberID"`
	UserID      string `dynamodbav:"UserID"`
	WorkspaceID string `dynamodbav:"WorkspaceID"`
	Role        string `dynamodbav:"Role"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
}

func memberSK(userID string) string {
	return fmt.Sprintf("MEMBER#%s", userID)
}

func memberGSI1PK(userID string) string {
	return fmt.Sprintf("USER#%s", userID)
}

// Find returns the membership, or nil when the user is not a member
func (r *MemberRepository) Find(ctx context.Context, userID string, workspaceID valueobjects.WorkspaceID) (*entities.WorkspaceMember, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: workspacePK(workspaceID)},
			"SK": &types.AttributeValueMemberS{Value: memberSK(userID)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewStorageError("get member", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item memberItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewStorageError("unmarshal member", err)
	}
	return item.toEntity()
}

// Add writes the membership, refusing to overwrite an existing one
func (r *MemberRepository) Add(ctx context.Context, member *entities.WorkspaceMember) error {
	item, err := attributevalue.MarshalMap(newMemberItem(member))
	if err != nil {
		return pkgerrors.NewStorageError("marshal member", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return pkgerrors.NewConflictError("user is already a member")
		}
		return pkgerrors.NewStorageError("put member", err)
	}

	r.logger.Info("member added",
		zap.String("workspaceID", member.WorkspaceID.String()),
		zap.String("userID", member.UserID),
		zap.String("role", string(member.Role)),
	)
	return nil
}

func newMemberItem(member *entities.WorkspaceMember) memberItem {
	return memberItem{
		PK:          workspacePK(member.WorkspaceID),
		SK:          memberSK(member.UserID),
		GSI1PK:      memberGSI1PK(member.UserID),
		GSI1SK:      workspacePK(member.WorkspaceID),
		EntityType:  "MEMBER",
		MemberID:    member.ID,
		UserID:      member.UserID,
		WorkspaceID: member.WorkspaceID.String(),
		Role:        string(member.Role),
		CreatedAt:   member.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (item memberItem) toEntity() (*entities.WorkspaceMember, error) {
	workspaceID, err := valueobjects.NewWorkspaceIDFromString(item.WorkspaceID)
	if err != nil {
		return nil, pkgerrors.NewStorageError("invalid stored workspace id", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewStorageError("invalid stored createdAt", err)
	}
	return &entities.WorkspaceMember{
		ID:          item.MemberID,
		UserID:      item.UserID,
		WorkspaceID: workspaceID,
		Role:        entities.Role(item.Role),
		CreatedAt:   createdAt,
	}, nil
}
