// Package dynamodb stores file records and download events in DynamoDB.
//
// Records live in one table keyed by file_id with a global secondary index
// on filename. Download events go to a second table keyed by download_id.
// DynamoDB cannot enforce a unique active filename without transactions over
// a lock item. The service tombstones superseded records before each write,
// and resolves any remaining duplicate to the newest upload.
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
	"github.com/tendant/simple-files/pkg/simplefiles"
	"github.com/tendant/simple-files/pkg/simplefiles/awsutil"
)

// FilenameIndex is the global secondary index used for filename lookups
const FilenameIndex = "filename-index"

const activeFilter = "attribute_not_exists(delete_date) OR attribute_type(delete_date, :null)"

// Config options for the DynamoDB repository
type Config struct {
	Region          string
	Table           string // records table
	DownloadsTable  string // download events table (default: <Table>_downloads)
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional endpoint for DynamoDB Local

	CreateTableIfNotExist bool
}

// API is the subset of the DynamoDB client used by the repository
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Repository implements simplefiles.MetadataStore on DynamoDB
type Repository struct {
	client         API
	table          string
	downloadsTable string
}

type recordItem struct {
	FileID      string  `dynamodbav:"file_id"`
	Filename    string  `dynamodbav:"filename"`
	Size        int64   `dynamodbav:"size"`
	ContentType string  `dynamodbav:"content_type"`
	UploadDate  string  `dynamodbav:"upload_date"`
	DeleteDate  *string `dynamodbav:"delete_date,omitempty"`
}

type downloadItem struct {
	DownloadID       string `dynamodbav:"download_id"`
	Filename         string `dynamodbav:"filename"`
	DownloadDate     string `dynamodbav:"download_date"`
	RequesterAddress string `dynamodbav:"requester_address"`
	UserAgent        string `dynamodbav:"user_agent,omitempty"`
}

// New creates a DynamoDB client from config and wraps it
func New(ctx context.Context, config Config) (*Repository, error) {
	if config.Table == "" {
		return nil, fmt.Errorf("%w: table name is required", simplefiles.ErrConfiguration)
	}

	awsCfg, err := awsutil.LoadConfig(ctx, awsutil.Credentials{
		Region:          config.Region,
		AccessKeyID:     config.AccessKeyID,
		SecretAccessKey: config.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", simplefiles.ErrConfiguration, err)
	}

	var opts []func(*dynamodb.Options)
	if config.Endpoint != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}

	repo := NewWithClient(dynamodb.NewFromConfig(awsCfg, opts...), config)
	if config.CreateTableIfNotExist {
		if err := repo.CreateTables(ctx); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client API, config Config) *Repository {
	downloads := config.DownloadsTable
	if downloads == "" {
		downloads = config.Table + "_downloads"
	}
	return &Repository{
		client:         client,
		table:          config.Table,
		downloadsTable: downloads,
	}
}

func (r *Repository) PutRecord(ctx context.Context, record *simplefiles.FileRecord) error {
	item, err := attributevalue.MarshalMap(toItem(record))
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(file_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return simplefiles.NewStorageError("dynamodb", "put_record", record.FileID, simplefiles.ErrAlreadyExists, err)
		}
		return classify("put_record", record.FileID, err)
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, fileID string) (*simplefiles.FileRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            fileKey(fileID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, classify("get_record", fileID, err)
	}
	if out.Item == nil {
		return nil, simplefiles.NewStorageError("dynamodb", "get_record", fileID, simplefiles.ErrRecordNotFound, nil)
	}

	var item recordItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return item.toRecord()
}

// SetDeleteDate issues a conditional UpdateItem. On a failed condition the
// old item tells a tombstoned record apart from a missing one.
func (r *Repository) SetDeleteDate(ctx context.Context, fileID string, deletedAt time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 fileKey(fileID),
		UpdateExpression:    aws.String("SET delete_date = :deleted"),
		ConditionExpression: aws.String("attribute_exists(file_id) AND (" + activeFilter + ")"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":deleted": &types.AttributeValueMemberS{Value: formatTime(deletedAt)},
			":null":    &types.AttributeValueMemberS{Value: "NULL"},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if ccf.Item == nil {
			return simplefiles.NewStorageError("dynamodb", "set_delete_date", fileID, simplefiles.ErrRecordNotFound, err)
		}
		return simplefiles.NewStorageError("dynamodb", "set_delete_date", fileID, simplefiles.ErrConditionFailed, err)
	}
	return classify("set_delete_date", fileID, err)
}

// Scan queries the filename index when a filename is given and scans the
// table otherwise. The active filter runs server-side.
func (r *Repository) Scan(ctx context.Context, filter simplefiles.ScanFilter) ([]*simplefiles.FileRecord, error) {
	values := map[string]types.AttributeValue{}
	var filterExpr *string
	if !filter.IncludeDeleted {
		filterExpr = aws.String(activeFilter)
		values[":null"] = &types.AttributeValueMemberS{Value: "NULL"}
	}

	var items []map[string]types.AttributeValue
	if filter.Filename != "" {
		values[":filename"] = &types.AttributeValueMemberS{Value: filter.Filename}
		paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
			TableName:                 aws.String(r.table),
			IndexName:                 aws.String(FilenameIndex),
			KeyConditionExpression:    aws.String("filename = :filename"),
			FilterExpression:          filterExpr,
			ExpressionAttributeValues: values,
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, classify("scan", filter.Filename, err)
			}
			items = append(items, page.Items...)
		}
	} else {
		input := &dynamodb.ScanInput{
			TableName:        aws.String(r.table),
			FilterExpression: filterExpr,
		}
		if len(values) > 0 {
			input.ExpressionAttributeValues = values
		}
		paginator := dynamodb.NewScanPaginator(r.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, classify("scan", "", err)
			}
			items = append(items, page.Items...)
		}
	}

	var decoded []recordItem
	if err := attributevalue.UnmarshalListOfMaps(items, &decoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal records: %w", err)
	}

	result := make([]*simplefiles.FileRecord, 0, len(decoded))
	for _, item := range decoded {
		record, err := item.toRecord()
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, nil
}

func (r *Repository) PutDownloadEvent(ctx context.Context, event *simplefiles.DownloadEvent) error {
	item, err := attributevalue.MarshalMap(downloadItem{
		DownloadID:       event.DownloadID,
		Filename:         event.Filename,
		DownloadDate:     formatTime(event.DownloadDate),
		RequesterAddress: event.RequesterAddress,
		UserAgent:        event.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal download event: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.downloadsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(download_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return simplefiles.NewStorageError("dynamodb", "put_download_event", event.DownloadID, simplefiles.ErrAlreadyExists, err)
		}
		return classify("put_download_event", event.DownloadID, err)
	}
	return nil
}

// CreateTables creates the records and downloads tables when missing and
// waits for them to become active.
func (r *Repository) CreateTables(ctx context.Context) error {
	records := &dynamodb.CreateTableInput{
		TableName:   aws.String(r.table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("file_id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("filename"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("file_id"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: aws.String(FilenameIndex),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("filename"), KeyType: types.KeyTypeHash},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
	}
	downloads := &dynamodb.CreateTableInput{
		TableName:   aws.String(r.downloadsTable),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("download_id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("download_id"), KeyType: types.KeyTypeHash},
		},
	}

	for _, input := range []*dynamodb.CreateTableInput{records, downloads} {
		if err := r.createTable(ctx, input); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) createTable(ctx context.Context, input *dynamodb.CreateTableInput) error {
	name := aws.ToString(input.TableName)

	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName})
	if err == nil {
		return nil
	}
	var rnf *types.ResourceNotFoundException
	if !errors.As(err, &rnf) {
		return classify("describe_table", name, err)
	}

	if _, err := r.client.CreateTable(ctx, input); err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		return classify("create_table", name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(r.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName}, 2*time.Minute); err != nil {
		return classify("create_table", name, err)
	}
	return nil
}

func classify(op, key string, err error) error {
	return simplefiles.NewStorageError("dynamodb", op, key, classifyKind(err), err)
}

func classifyKind(err error) error {
	var ccf *types.ConditionalCheckFailedException
	var rnf *types.ResourceNotFoundException
	switch {
	case errors.As(err, &ccf):
		return simplefiles.ErrConditionFailed
	case errors.As(err, &rnf):
		// A missing table is a deployment problem, not a missing record.
		return simplefiles.ErrConfiguration
	case awsutil.ErrorCode(err) == "ValidationException":
		return simplefiles.ErrConfiguration
	case awsutil.IsCredentialsError(err):
		return simplefiles.ErrConfiguration
	default:
		return simplefiles.ErrTransient
	}
}

func fileKey(fileID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"file_id": &types.AttributeValueMemberS{Value: fileID},
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toItem(record *simplefiles.FileRecord) recordItem {
	item := recordItem{
		FileID:      record.FileID,
		Filename:    record.Filename,
		Size:        record.Size,
		ContentType: record.ContentType,
		UploadDate:  formatTime(record.UploadDate),
	}
	if record.DeleteDate != nil {
		d := formatTime(*record.DeleteDate)
		item.DeleteDate = &d
	}
	return item
}

func (item recordItem) toRecord() (*simplefiles.FileRecord, error) {
	uploaded, err := time.Parse(time.RFC3339Nano, item.UploadDate)
	if err != nil {
		return nil, fmt.Errorf("invalid upload_date for %s: %w", item.FileID, err)
	}
	record := &simplefiles.FileRecord{
		FileID:      item.FileID,
		Filename:    item.Filename,
		Size:        item.Size,
		ContentType: item.ContentType,
		UploadDate:  uploaded,
	}
	if item.DeleteDate != nil {
		deleted, err := time.Parse(time.RFC3339Nano, *item.DeleteDate)
		if err != nil {
			return nil, fmt.Errorf("invalid delete_date for %s: %w", item.FileID, err)
		}
		record.DeleteDate = &deleted
	}
	return record, nil
}
