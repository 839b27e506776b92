package dynamodb

import (
	"context"
	"fmt"
	"sort"
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

// WorkspaceRepository implements ports.WorkspaceRepository. The workspace
// metadata item shares its partition with the workspace's pages and
// memberships.
type WorkspaceRepository struct {
	client    *dynamodb.Client
	tableName string
	indexName string
	logger    *zap.Logger
}

// NewWorkspaceRepository creates a DynamoDB-backed workspace repository
func NewWorkspaceRepository(client *dynamodb.Client, tableName, indexName string, logger *zap.Logger) ports.WorkspaceRepository {
	return &WorkspaceRepository{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		logger:    logger,
	}
}

// workspaceItem represents the DynamoDB item structure for a workspace
type workspaceItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"EntityType"`
	WorkspaceID string `dynamodbav:"WorkspaceID"`
	Name        string `dynamodbav:"Name"`
	OwnerID     string `dynamodbav:"OwnerID"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
	UpdatedAt   string `dynamodbav:"UpdatedAt"`
}

func workspacePK(id valueobjects.WorkspaceID) string {
	return fmt.Sprintf("WS#%s", id.String())
}

// FindByID fetches a workspace's metadata item
func (r *WorkspaceRepository) FindByID(ctx context.Context, id valueobjects.WorkspaceID) (*entities.Workspace, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: workspacePK(id)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewStorageError("get workspace", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("workspace not found")
	}

	var item workspaceItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewStorageError("unmarshal workspace", err)
	}
	return item.toEntity()
}

// CreateWithOwner writes the workspace metadata, the owner membership and
// the welcome page in one transaction, so a workspace can never exist
// half-provisioned.
func (r *WorkspaceRepository) CreateWithOwner(ctx context.Context, ws *entities.Workspace, owner *entities.WorkspaceMember, welcome *entities.Page) error {
	wsItem, err := attributevalue.MarshalMap(newWorkspaceItem(ws))
	if err != nil {
		return pkgerrors.NewStorageError("marshal workspace", err)
	}
	memberItem, err := attributevalue.MarshalMap(newMemberItem(owner))
	if err != nil {
		return pkgerrors.NewStorageError("marshal member", err)
	}
	welcomeItem, err := attributevalue.MarshalMap(newPageItem(welcome))
	if err != nil {
		return pkgerrors.NewStorageError("marshal welcome page", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(r.tableName),
					Item:                wsItem,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(r.tableName),
					Item:      memberItem,
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(r.tableName),
					Item:      welcomeItem,
				},
			},
		},
	})
	if err != nil {
		return pkgerrors.NewStorageError("create workspace", err)
	}

	r.logger.Info("workspace provisioned",
		zap.String("workspaceID", ws.ID().String()),
		zap.String("ownerID", ws.OwnerID()),
	)
	return nil
}

// ListByUser resolves the user's memberships through GSI1, then loads
// each workspace's metadata
func (r *WorkspaceRepository) ListByUser(ctx context.Context, userID string) ([]*entities.Workspace, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.indexName),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND begins_with(GSI1SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: memberGSI1PK(userID)},
			":sk": &types.AttributeValueMemberS{Value: "WS#"},
		},
	}

	result, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, pkgerrors.NewStorageError("query user memberships", err)
	}

	var workspaces []*entities.Workspace
	for _, raw := range result.Items {
		var member memberItem
		if err := attributevalue.UnmarshalMap(raw, &member); err != nil {
			return nil, pkgerrors.NewStorageError("unmarshal member", err)
		}
		workspaceID, err := valueobjects.NewWorkspaceIDFromString(member.WorkspaceID)
		if err != nil {
			return nil, pkgerrors.NewStorageError("invalid stored workspace id", err)
		}
		ws, err := r.FindByID(ctx, workspaceID)
		if err != nil {
			if pkgerrors.IsNotFound(err) {
				// Dangling membership; skip it rather than failing the list.
				r.logger.Warn("membership points at missing workspace",
					zap.String("workspaceID", member.WorkspaceID),
					zap.String("userID", userID),
				)
				continue
			}
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}

	sort.SliceStable(workspaces, func(i, j int) bool {
		return workspaces[i].CreatedAt().Before(workspaces[j].CreatedAt())
	})
	return workspaces, nil
}

func newWorkspaceItem(ws *entities.Workspace) workspaceItem {
	return workspaceItem{
		PK:          workspacePK(ws.ID()),
		SK:          "METADATA",
		EntityType:  "WORKSPACE",
		WorkspaceID: ws.ID().String(),
		Name:        ws.Name(),
		OwnerID:     ws.OwnerID(),
		CreatedAt:   ws.CreatedAt().UTC().Format(time.RFC3339Nano),
		UpdatedAt:   ws.UpdatedAt().UTC().Format(time.RFC3339Nano),
	}
}

func (item workspaceItem) toEntity() (*entities.Workspace, error) {
	id, err := valueobjects.NewWorkspaceIDFromString(item.WorkspaceID)
	if err != nil {
		return nil, pkgerrors.NewStorageError("invalid stored workspace id", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewStorageError("invalid stored createdAt", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, pkgerrors.NewStorageError("invalid stored updatedAt", err)
	}
	return entities.ReconstructWorkspace(id, item.Name, item.OwnerID, createdAt, updatedAt), nil
}
