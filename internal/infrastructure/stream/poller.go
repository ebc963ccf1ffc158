package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/care-notify/internal/pkg/metrics"
	"github.com/rs/zerolog/log"
)

// StreamsAPI is the subset of the DynamoDB Streams client the poller uses.
type StreamsAPI interface {
	DescribeStream(ctx context.Context, in *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, in *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, in *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

// TableDescriber resolves a table's latest stream ARN.
type TableDescriber interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Deliverer receives the paths touched by stream records.
type Deliverer interface {
	Deliver(path string)
}

// shardRefresh is how often open shards are rediscovered; DynamoDB rolls
// shards roughly every four hours.
const shardRefresh = time.Minute

// maxReadFailures is how many consecutive GetRecords errors a reader absorbs
// before it gives the shard back to discovery.
const maxReadFailures = 3

// Poller follows the DynamoDB streams of the watched tables and turns every
// record into change signals for the paths it touches.
type Poller struct {
	streams  StreamsAPI
	tables   TableDescriber
	out      Deliverer
	sources  []Source
	interval time.Duration
	metrics  *metrics.Metrics

	mu     sync.Mutex
	shards map[string]struct{}
	wg     sync.WaitGroup

	// primed holds the stream ARNs whose first discovery pass completed.
	// Only Run's goroutine touches it.
	primed map[string]bool
}

func NewPoller(streams StreamsAPI, tables TableDescriber, out Deliverer, interval time.Duration, m *metrics.Metrics, sources ...Source) *Poller {
	return &Poller{
		streams:  streams,
		tables:   tables,
		out:      out,
		sources:  sources,
		interval: interval,
		metrics:  m,
		shards:   make(map[string]struct{}),
		primed:   make(map[string]bool),
	}
}

// Run polls until ctx is cancelled. A table whose stream cannot be resolved
// fails startup; later errors are logged and retried.
func (p *Poller) Run(ctx context.Context) error {
	arns := make([]string, len(p.sources))
	for i, src := range p.sources {
		out, err := p.tables.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(src.Table)})
		if err != nil {
			return fmt.Errorf("describe table %s: %w", src.Table, err)
		}
		if out.Table == nil || out.Table.LatestStreamArn == nil {
			return fmt.Errorf("table %s has no stream enabled", src.Table)
		}
		arns[i] = *out.Table.LatestStreamArn
	}

	ticker := time.NewTicker(shardRefresh)
	defer ticker.Stop()
	for {
		for i, src := range p.sources {
			if err := p.discover(ctx, src, arns[i]); err != nil {
				log.Warn().Err(err).Str("table", src.Table).Msg("shard discovery failed")
			}
		}
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return nil
		case <-ticker.C:
		}
	}
}

// discover starts a reader for every open shard not yet followed. Shards seen
// on the first pass are read from LATEST; shards that appear later (children
// of a rollover, or shards handed back after failures) are read from
// TRIM_HORIZON so no record between passes is skipped.
func (p *Poller) discover(ctx context.Context, src Source, arn string) error {
	kind := streamtypes.ShardIteratorTypeTrimHorizon
	if !p.primed[arn] {
		kind = streamtypes.ShardIteratorTypeLatest
	}
	var start *string
	for {
		out, err := p.streams.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn:             aws.String(arn),
			ExclusiveStartShardId: start,
		})
		if err != nil {
			return fmt.Errorf("describe stream: %w", err)
		}
		if out.StreamDescription == nil {
			return nil
		}
		for _, sh := range out.StreamDescription.Shards {
			if sh.ShardId == nil || sh.SequenceNumberRange == nil || sh.SequenceNumberRange.EndingSequenceNumber != nil {
				continue // closed
			}
			if !p.claim(*sh.ShardId) {
				continue
			}
			p.wg.Add(1)
			go p.follow(ctx, src, arn, *sh.ShardId, kind)
		}
		start = out.StreamDescription.LastEvaluatedShardId
		if start == nil {
			p.primed[arn] = true
			return nil
		}
	}
}

func (p *Poller) claim(shardID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.shards[shardID]; ok {
		return false
	}
	p.shards[shardID] = struct{}{}
	return true
}

func (p *Poller) release(shardID string) {
	p.mu.Lock()
	delete(p.shards, shardID)
	p.mu.Unlock()
}

// follow reads one shard from kind until it closes or ctx is cancelled. A
// failed read reopens the shard after the last handled record.
func (p *Poller) follow(ctx context.Context, src Source, arn, shardID string, kind streamtypes.ShardIteratorType) {
	defer p.wg.Done()
	defer p.release(shardID)

	iterator, err := p.open(ctx, arn, shardID, kind, "")
	if err != nil {
		log.Warn().Err(err).Str("shard", shardID).Msg("could not open shard")
		return
	}

	var last string
	failures := 0
	for iterator != nil {
		out, err := p.streams.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{ShardIterator: iterator})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if failures >= maxReadFailures {
				log.Warn().Err(err).Str("shard", shardID).Msg("get records keeps failing, releasing shard")
				return // rediscovered on the next refresh
			}
			log.Warn().Err(err).Str("shard", shardID).Str("after", last).Msg("get records failed, reopening shard")
			if !p.wait(ctx) {
				return
			}
			if iterator, err = p.open(ctx, arn, shardID, kind, last); err != nil {
				log.Warn().Err(err).Str("shard", shardID).Msg("could not reopen shard")
				return
			}
			continue
		}
		failures = 0
		for _, rec := range out.Records {
			p.handle(src, rec)
			if rec.Dynamodb != nil && rec.Dynamodb.SequenceNumber != nil {
				last = *rec.Dynamodb.SequenceNumber
			}
		}
		iterator = out.NextShardIterator

		if !p.wait(ctx) {
			return
		}
	}
}

// open returns an iterator of kind, or one positioned after the sequence
// number after when it is set.
func (p *Poller) open(ctx context.Context, arn, shardID string, kind streamtypes.ShardIteratorType, after string) (*string, error) {
	in := &dynamodbstreams.GetShardIteratorInput{
		StreamArn:         aws.String(arn),
		ShardId:           aws.String(shardID),
		ShardIteratorType: kind,
	}
	if after != "" {
		in.ShardIteratorType = streamtypes.ShardIteratorTypeAfterSequenceNumber
		in.SequenceNumber = aws.String(after)
	}
	out, err := p.streams.GetShardIterator(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("shard iterator %s: %w", in.ShardIteratorType, err)
	}
	return out.ShardIterator, nil
}

func (p *Poller) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(p.interval):
		return true
	}
}

func (p *Poller) handle(src Source, rec streamtypes.Record) {
	if rec.Dynamodb == nil {
		return
	}
	seen := map[string]struct{}{}
	for _, side := range []map[string]streamtypes.AttributeValue{rec.Dynamodb.NewImage, rec.Dynamodb.OldImage} {
		if len(side) == 0 {
			continue
		}
		img, err := attributevalue.FromDynamoDBStreamsMap(side)
		if err != nil {
			log.Warn().Err(err).Str("table", src.Table).Msg("unreadable stream image")
			continue
		}
		for _, path := range src.Paths(img) {
			seen[path] = struct{}{}
		}
	}
	for path := range seen {
		p.out.Deliver(path)
	}
	if p.metrics != nil {
		p.metrics.StreamRecords.WithLabelValues(src.Table).Inc()
	}
}
