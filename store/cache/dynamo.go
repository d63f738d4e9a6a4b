package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"udl-core/udlerrors"
)

// classifyDynamoErr inspects err for a smithy.APIError code the way the
// prior implementation's repository adapter classifies DynamoDB failures,
// narrowed to the codes GetItem/PutItem can actually return against this
// single-table design. A code with no special meaning here, or an error
// that isn't an APIError at all (a network timeout, a context cancel),
// falls back to TransientIO.
func classifyDynamoErr(op string, err error) error {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return udlerrors.TransientIO("dynamodb "+op+" failed", err)
	}

	switch ae.ErrorCode() {
	case "ConditionalCheckFailedException":
		return udlerrors.AlreadyExists("dynamodb " + op + ": conditional check failed").WithResource("cache")
	case "ProvisionedThroughputExceededException", "RequestLimitExceeded":
		return udlerrors.TransientIO("dynamodb "+op+" throttled", err)
	default:
		return udlerrors.TransientIO("dynamodb "+op+" failed", err)
	}
}

// DynamoStorage is an alternative CacheStorage backend (spec.md §4.3:
// "plugins may substitute an alternative backend (object store,
// key-value store)"). Grounded on the prior implementation's
// infrastructure/persistence/dynamodb.NodeRepository use of
// attributevalue marshaling against a single-table design; here the
// envelope's JSON serialization is stored as one attribute per owner item
// rather than projecting every node field into its own attribute, since the
// cache envelope's payload is opaque from the core's point of view.
type DynamoStorage struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// dynamoItem is the single-table row shape: partition key "owner",
// envelope JSON blob, and the version for a cheap pre-unmarshal check.
type dynamoItem struct {
	Owner   string `dynamodbav:"owner"`
	Version int    `dynamodbav:"version"`
	Blob    string `dynamodbav:"blob"`
}

// NewDynamoStorage creates a DynamoDB-backed CacheStorage against an
// already-provisioned table keyed on a string "owner" partition key.
func NewDynamoStorage(client *dynamodb.Client, tableName string, logger *zap.Logger) *DynamoStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DynamoStorage{client: client, tableName: tableName, logger: logger}
}

// Load fetches and unmarshals an owner's envelope. A missing item, an
// unparseable item or blob, or a version mismatch is advisory (spec.md
// §4.3) and returns ok=false with a nil error; any GetItem error is
// returned, classified by classifyDynamoErr.
func (d *DynamoStorage) Load(ctx context.Context, owner string) (Envelope, bool, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		return Envelope{}, false, classifyDynamoErr("cache load", err)
	}
	if out.Item == nil {
		return Envelope{}, false, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		d.logger.Warn("dynamodb cache item unparseable, discarding", zap.String("owner", owner), zap.Error(err))
		return Envelope{}, false, nil
	}
	if item.Version != CurrentVersion {
		d.logger.Warn("dynamodb cache version mismatch, discarding", zap.String("owner", owner))
		return Envelope{}, false, nil
	}

	var env Envelope
	if err := json.Unmarshal([]byte(item.Blob), &env); err != nil {
		d.logger.Warn("dynamodb cache blob unparseable, discarding", zap.String("owner", owner), zap.Error(err))
		return Envelope{}, false, nil
	}
	return env, true, nil
}

// Save marshals env to JSON and writes one item per owner. DynamoDB's
// PutItem is already atomic at the item level, so no tmp-file/rename dance
// is needed the way the file backend requires.
func (d *DynamoStorage) Save(ctx context.Context, owner string, env Envelope) error {
	for i, n := range env.Nodes {
		n.Fields = asMap(breakCycles(n.Fields))
		env.Nodes[i] = n
	}
	env.Meta.UpdatedAt = time.Now().UnixMilli()

	blob, err := json.Marshal(env)
	if err != nil {
		return err
	}

	item := dynamoItem{Owner: owner, Version: env.Meta.Version, Blob: string(blob)}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	})
	if err != nil {
		return classifyDynamoErr("cache save", err)
	}
	return nil
}
