package conversation

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/agentdesk/internal/bant"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

type fakeDynamo struct {
	items   map[string]map[string]types.AttributeValue
	updates []*dynamodb.UpdateItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	id := in.Item["jobId"].(*types.AttributeValueMemberS).Value
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	id := in.Key["jobId"].(*types.AttributeValueMemberS).Value
	item := f.items[id]
	item["status"] = in.ExpressionAttributeValues[":status"]
	item["result"] = in.ExpressionAttributeValues[":result"]
	item["errorMessage"] = in.ExpressionAttributeValues[":error"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	id := in.Key["jobId"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[id]}, nil
}

func TestDynamoJobStoreLifecycle(t *testing.T) {
	client := newFakeDynamo()
	store := NewDynamoJobStore(client, "qualification-jobs", logging.Discard())
	ctx := context.Background()

	job := &JobRecord{JobID: "job-1", OrgID: "org-1", ConversationID: "conv-1"}
	require.NoError(t, store.PutPending(ctx, job))
	assert.Equal(t, JobStatusPending, job.Status)
	assert.NotZero(t, job.ExpiresAt)

	var stored JobRecord
	require.NoError(t, attributevalue.UnmarshalMap(client.items["job-1"], &stored))
	assert.Equal(t, "conv-1", stored.ConversationID)

	need := "a shared inbox"
	require.NoError(t, store.MarkCompleted(ctx, "job-1", &QualificationResult{
		Changed: []bant.Dimension{bant.Need},
		BANT:    bant.Memory{Need: &need},
		LeadID:  "lead-1",
	}))
	require.Len(t, client.updates, 1)
	assert.Equal(t, "attribute_exists(jobId)", aws.ToString(client.updates[0].ConditionExpression))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	require.NotNil(t, got.Result.BANT.Need)
	assert.Equal(t, need, *got.Result.BANT.Need)

	require.NoError(t, store.MarkFailed(ctx, "job-1", "boom"))
	got, err = store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
	assert.Nil(t, got.Result)

	_, err = store.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryJobStoreRejectsDuplicates(t *testing.T) {
	store := NewMemoryJobStore()
	ctx := context.Background()
	require.NoError(t, store.PutPending(ctx, &JobRecord{JobID: "j"}))
	assert.Error(t, store.PutPending(ctx, &JobRecord{JobID: "j"}))
	assert.ErrorIs(t, store.MarkFailed(ctx, "other", "x"), ErrJobNotFound)
}
