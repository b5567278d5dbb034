package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-files/pkg/simplefiles"
)

// fakeDynamo records the last request of each kind and returns scripted results
type fakeDynamo struct {
	putInputs   []*dynamodb.PutItemInput
	putErr      error
	getOutput   *dynamodb.GetItemOutput
	updateInput *dynamodb.UpdateItemInput
	updateErr   error
	queryInput  *dynamodb.QueryInput
	scanInput   *dynamodb.ScanInput
	items       []map[string]types.AttributeValue
	readErr     error
	created     []string
	describeErr error
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getOutput, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateInput = in
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInput = in
	if f.readErr != nil {
		return nil, f.readErr
	}
	return &dynamodb.QueryOutput{Items: f.items}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scanInput = in
	if f.readErr != nil {
		return nil, f.readErr
	}
	return &dynamodb.ScanOutput{Items: f.items}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	for _, name := range f.created {
		if name == aws.ToString(in.TableName) {
			return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
				TableName:   in.TableName,
				TableStatus: types.TableStatusActive,
			}}, nil
		}
	}
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")}
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.created = append(f.created, aws.ToString(in.TableName))
	return &dynamodb.CreateTableOutput{}, nil
}

func mustItem(t *testing.T, record *simplefiles.FileRecord) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(toItem(record))
	require.NoError(t, err)
	return item
}

func TestDynamoRepository_PutRecord(t *testing.T) {
	fake := &fakeDynamo{}
	repo := NewWithClient(fake, Config{Table: "files"})

	uploaded := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	record := &simplefiles.FileRecord{
		FileID:      "id-1",
		Filename:    "a.txt",
		Size:        3,
		ContentType: "text/plain",
		UploadDate:  uploaded,
	}
	require.NoError(t, repo.PutRecord(context.Background(), record))

	require.Len(t, fake.putInputs, 1)
	in := fake.putInputs[0]
	assert.Equal(t, "files", aws.ToString(in.TableName))
	assert.Equal(t, "attribute_not_exists(file_id)", aws.ToString(in.ConditionExpression))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "a.txt"}, in.Item["filename"])
	assert.NotContains(t, in.Item, "delete_date")

	fake.putErr = &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	err := repo.PutRecord(context.Background(), record)
	assert.ErrorIs(t, err, simplefiles.ErrAlreadyExists)
}

func TestDynamoRepository_GetRecord(t *testing.T) {
	fake := &fakeDynamo{}
	repo := NewWithClient(fake, Config{Table: "files"})
	ctx := context.Background()

	_, err := repo.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, simplefiles.ErrRecordNotFound)

	deleted := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	stored := &simplefiles.FileRecord{
		FileID:     "id-1",
		Filename:   "a.txt",
		UploadDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		DeleteDate: &deleted,
	}
	fake.getOutput = &dynamodb.GetItemOutput{Item: mustItem(t, stored)}

	got, err := repo.GetRecord(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, stored, got)
	assert.False(t, got.IsActive())
}

func TestDynamoRepository_SetDeleteDate(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		fake := &fakeDynamo{}
		repo := NewWithClient(fake, Config{Table: "files"})
		require.NoError(t, repo.SetDeleteDate(ctx, "id-1", now))

		in := fake.updateInput
		require.NotNil(t, in)
		assert.Contains(t, aws.ToString(in.ConditionExpression), "attribute_exists(file_id)")
		assert.Contains(t, aws.ToString(in.ConditionExpression), "attribute_not_exists(delete_date)")
		assert.Equal(t, types.ReturnValuesOnConditionCheckFailureAllOld, in.ReturnValuesOnConditionCheckFailure)
	})

	t.Run("AlreadyDeleted", func(t *testing.T) {
		fake := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{
			Item: map[string]types.AttributeValue{"file_id": &types.AttributeValueMemberS{Value: "id-1"}},
		}}
		repo := NewWithClient(fake, Config{Table: "files"})
		err := repo.SetDeleteDate(ctx, "id-1", now)
		assert.ErrorIs(t, err, simplefiles.ErrConditionFailed)
		assert.Equal(t, simplefiles.KindNotFound, simplefiles.KindOf(err))
	})

	t.Run("Missing", func(t *testing.T) {
		fake := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
		repo := NewWithClient(fake, Config{Table: "files"})
		err := repo.SetDeleteDate(ctx, "id-1", now)
		assert.ErrorIs(t, err, simplefiles.ErrRecordNotFound)
	})

	t.Run("Throttled", func(t *testing.T) {
		fake := &fakeDynamo{updateErr: &types.ProvisionedThroughputExceededException{}}
		repo := NewWithClient(fake, Config{Table: "files"})
		err := repo.SetDeleteDate(ctx, "id-1", now)
		assert.Equal(t, simplefiles.KindTransient, simplefiles.KindOf(err))
	})
}

func TestDynamoRepository_Scan(t *testing.T) {
	ctx := context.Background()
	active := &simplefiles.FileRecord{FileID: "id-2", Filename: "a.txt", UploadDate: time.Now().UTC()}

	t.Run("ByFilenameUsesIndex", func(t *testing.T) {
		fake := &fakeDynamo{items: []map[string]types.AttributeValue{mustItem(t, active)}}
		repo := NewWithClient(fake, Config{Table: "files"})

		records, err := repo.Scan(ctx, simplefiles.ScanFilter{Filename: "a.txt"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "id-2", records[0].FileID)

		require.NotNil(t, fake.queryInput)
		assert.Nil(t, fake.scanInput)
		assert.Equal(t, FilenameIndex, aws.ToString(fake.queryInput.IndexName))
		assert.Equal(t, activeFilter, aws.ToString(fake.queryInput.FilterExpression))
	})

	t.Run("AllActiveUsesScan", func(t *testing.T) {
		fake := &fakeDynamo{items: []map[string]types.AttributeValue{mustItem(t, active)}}
		repo := NewWithClient(fake, Config{Table: "files"})

		records, err := repo.Scan(ctx, simplefiles.ScanFilter{})
		require.NoError(t, err)
		assert.Len(t, records, 1)
		require.NotNil(t, fake.scanInput)
		assert.Equal(t, activeFilter, aws.ToString(fake.scanInput.FilterExpression))
	})

	t.Run("IncludeDeletedHasNoFilter", func(t *testing.T) {
		fake := &fakeDynamo{}
		repo := NewWithClient(fake, Config{Table: "files"})

		records, err := repo.Scan(ctx, simplefiles.ScanFilter{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.Nil(t, fake.scanInput.FilterExpression)
		assert.Nil(t, fake.scanInput.ExpressionAttributeValues)
	})

	t.Run("MissingTableIsConfiguration", func(t *testing.T) {
		fake := &fakeDynamo{readErr: &types.ResourceNotFoundException{}}
		repo := NewWithClient(fake, Config{Table: "files"})

		_, err := repo.Scan(ctx, simplefiles.ScanFilter{})
		assert.ErrorIs(t, err, simplefiles.ErrConfiguration)
	})
}

func TestDynamoRepository_PutDownloadEvent(t *testing.T) {
	fake := &fakeDynamo{}
	repo := NewWithClient(fake, Config{Table: "files"})

	err := repo.PutDownloadEvent(context.Background(), &simplefiles.DownloadEvent{
		DownloadID:       "dl-1",
		Filename:         "a.txt",
		DownloadDate:     time.Now(),
		RequesterAddress: "198.51.100.7",
	})
	require.NoError(t, err)
	require.Len(t, fake.putInputs, 1)
	assert.Equal(t, "files_downloads", aws.ToString(fake.putInputs[0].TableName))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "198.51.100.7"}, fake.putInputs[0].Item["requester_address"])
}

func TestDynamoRepository_CreateTables(t *testing.T) {
	fake := &fakeDynamo{}
	repo := NewWithClient(fake, Config{Table: "files", DownloadsTable: "downloads"})

	require.NoError(t, repo.CreateTables(context.Background()))
	assert.Equal(t, []string{"files", "downloads"}, fake.created)

	// Existing tables are left alone
	require.NoError(t, repo.CreateTables(context.Background()))
	assert.Len(t, fake.created, 2)
}

func TestClassifyKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want simplefiles.ErrorKind
	}{
		{"condition failed", &types.ConditionalCheckFailedException{}, simplefiles.KindNotFound},
		{"missing table", &types.ResourceNotFoundException{}, simplefiles.KindConfiguration},
		{"bad credentials", &smithy.GenericAPIError{Code: "UnrecognizedClientException"}, simplefiles.KindConfiguration},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDeniedException"}, simplefiles.KindConfiguration},
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, simplefiles.KindTransient},
		{"network", errors.New("i/o timeout"), simplefiles.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("test", "key", tt.err)
			assert.Equal(t, tt.want, simplefiles.KindOf(err))
		})
	}
}
