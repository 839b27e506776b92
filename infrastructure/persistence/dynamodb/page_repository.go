package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"pagespace/application/ports"
	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
	pkgerrors "pagespace/pkg/errors"
)

// transactLimit is DynamoDB's maximum item count per TransactWriteItems call
const transactLimit = 100

// PageRepository implements ports.PageRepository on the single-table layout.
// Pages live under their workspace partition; GSI1 gives direct lookup by
// page id without knowing the workspace.
type PageRepository struct {
	client    *dynamodb.Client
	tableName string
	indexName string
	logger    *zap.Logger
}

// NewPageRepository creates a DynamoDB-backed page repository
func NewPageRepository(client *dynamodb.Client, tableName, indexName string, logger *zap.Logger) ports.PageRepository {
	return &PageRepository{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		logger:    logger,
	}
}

// pageItem represents the DynamoDB item structure for a page
type pageItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	GSI1PK      string `dynamodbav:"GSI1PK"` // For page lookups by ID
	GSI1SK      string `dynamodbav:"GSI1SK"` // Always "METADATA" for pages
	EntityType  string `dynamodbav:"EntityType"`
	PageID      string `dynamodbav:"PageID"`
	WorkspaceID string `dynamodbav:"WorkspaceID"`
	ParentID    string `dynamodbav:"ParentID,omitempty"` // empty for roots
	Title       string `dynamodbav:"Title"`
	Content     string `dynamodbav:"Content"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
	UpdatedAt   string `dynamodbav:"UpdatedAt"`
}

func pagePK(workspaceID valueobjects.WorkspaceID) string {
	return fmt.Sprintf("WS#%s", workspaceID.String())
}

func pageSK(id valueobjects.PageID) string {
	return fmt.Sprintf("PAGE#%s", id.String())
}

func pageGSI1PK(id valueobjects.PageID) string {
	return fmt.Sprintf("PAGEID#%s", id.String())
}

// FindByID looks the page up through GSI1
func (r *PageRepository) FindByID(ctx context.Context, id valueobjects.PageID) (*entities.Page, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.indexName),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND GSI1SK = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pageGSI1PK(id)},
			":sk": &types.AttributeValueMemberS{Value: "METADATA"},
		},
		Limit: aws.Int32(1),
	}

	result, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, pkgerrors.NewStorageError("query page", err)
	}
	if len(result.Items) == 0 {
		return nil, pkgerrors.NewNotFoundError("page not found")
	}

	var item pageItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, pkgerrors.NewStorageError("unmarshal page", err)
	}
	return item.toEntity()
}

// Save upserts the full page record
func (r *PageRepository) Save(ctx context.Context, page *entities.Page) error {
	item, err := attributevalue.MarshalMap(newPageItem(page))
	if err != nil {
		return pkgerrors.NewStorageError("marshal page", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return pkgerrors.NewStorageError("put page", err)
	}

	r.logger.Debug("page saved",
		zap.String("pageID", page.ID().String()),
		zap.String("workspaceID", page.WorkspaceID().String()),
	)
	return nil
}

// UpdateContent writes only the content and updatedAt attributes, guarded
// so a concurrent delete cannot resurrect the page as a partial item.
func (r *PageRepository) UpdateContent(ctx context.Context, id valueobjects.PageID, content string, updatedAt time.Time) error {
	// The primary key needs the workspace partition, so resolve it first.
	page, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	update := expression.Set(expression.Name("Content"), expression.Value(content)).
		Set(expression.Name("UpdatedAt"), expression.Value(updatedAt.UTC().Format(time.RFC3339Nano)))
	cond := expression.AttributeExists(expression.Name("PK"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return pkgerrors.NewStorageError("build update expression", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pagePK(page.WorkspaceID())},
			"SK": &types.AttributeValueMemberS{Value: pageSK(id)},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return pkgerrors.NewNotFoundError("page not found")
		}
		return pkgerrors.NewStorageError("update page content", err)
	}
	return nil
}

// DeleteSubtree removes the listed pages in TransactWriteItems batches.
// Callers pass ids deepest-first, so even if a later batch fails the
// remaining pages form a valid tree with no orphaned descendants.
func (r *PageRepository) DeleteSubtree(ctx context.Context, workspaceID valueobjects.WorkspaceID, ids []valueobjects.PageID) error {
	for start := 0; start < len(ids); start += transactLimit {
		end := start + transactLimit
		if end > len(ids) {
			end = len(ids)
		}

		items := make([]types.TransactWriteItem, 0, end-start)
		for _, id := range ids[start:end] {
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(r.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: pagePK(workspaceID)},
						"SK": &types.AttributeValueMemberS{Value: pageSK(id)},
					},
				},
			})
		}

		_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		if err != nil {
			return pkgerrors.NewStorageError("delete page subtree", err)
		}
	}

	r.logger.Info("page subtree deleted",
		zap.String("workspaceID", workspaceID.String()),
		zap.Int("pages", len(ids)),
	)
	return nil
}

// ListByWorkspace returns all pages of a workspace, newest update first
func (r *PageRepository) ListByWorkspace(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]*entities.Page, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pagePK(workspaceID)},
			":sk": &types.AttributeValueMemberS{Value: "PAGE#"},
		},
	}

	var pages []*entities.Page
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		result, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewStorageError("query workspace pages", err)
		}
		for _, raw := range result.Items {
			var item pageItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, pkgerrors.NewStorageError("unmarshal page", err)
			}
			page, err := item.toEntity()
			if err != nil {
				return nil, err
			}
			pages = append(pages, page)
		}
	}

	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].UpdatedAt().After(pages[j].UpdatedAt())
	})
	return pages, nil
}

func newPageItem(page *entities.Page) pageItem {
	parentID := ""
	if page.ParentID() != nil {
		parentID = page.ParentID().String()
	}
	return pageItem{
		PK:          pagePK(page.WorkspaceID()),
		SK:          pageSK(page.ID()),
		GSI1PK:      pageGSI1PK(page.ID()),
		GSI1SK:      "METADATA",
		EntityType:  "PAGE",
		PageID:      page.ID().String(),
		WorkspaceID: page.WorkspaceID().String(),
		ParentID:    parentID,
		Title:       page.Title(),
		Content:     page.Content(),
		CreatedAt:   page.CreatedAt().UTC().Format(time.RFC3339Nano),
		UpdatedAt:   page.UpdatedAt().UTC().Format(time.RFC3339Nano),
	}
}

func (item pageItem) toEntity() (*entities.Page, error) {
	id, err := valueobjects.NewPageIDFromString(item.PageID)
	if err != nil {
		return nil, pkgerrors.NewStorageError("invalid stored page id", err)
	}
	workspaceID, err := valueobjects.NewWorkspaceIDFromString(item.WorkspaceID)
	if err != nil {
		return nil, pkgerrors.NewStorageError("invalid stored workspace id", err)
	}

	var parentID *valueobjects.PageID
	if item.ParentID != "" {
		pid, err := valueobjects.NewPageIDFromString(item.ParentID)
		if err != nil {
			return nil, pkgerrors.NewStorageError("invalid stored parent id", err)
		}
		parentID = &pid
	}

	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewStorageError("invalid stored createdAt", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return nil, pkgerrors.NewStorageError("invalid stored updatedAt", err)
	}

	return entities.ReconstructPage(id, workspaceID, parentID, item.Title, item.Content, createdAt, updatedAt), nil
}
