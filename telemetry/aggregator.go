package telemetry

import (
	"context"
	"errors"
	"fmt"
	"github.com/shimmeringbee/logwrap"
	"github.com/sys0xFF/challange-passabola-sub002/broker"
	"golang.org/x/sync/errgroup"
	"time"
)

type ScoreAttribute string

const (
	ScoreX ScoreAttribute = "scoreX"
	ScoreY ScoreAttribute = "scoreY"
	ScoreZ ScoreAttribute = "scoreZ"
)

var ScoreAttributes = []ScoreAttribute{ScoreX, ScoreY, ScoreZ}

const DefaultReadTimeout = 5 * time.Second

type aggregatorError string

func (e aggregatorError) Error() string {
	return string(e)
}

const ErrAggregationFailed = aggregatorError("telemetry aggregation failed")

type AttributeReader interface {
	ReadAttribute(context.Context, broker.EntityID, string) (broker.Payload, error)
}

// Result holds only the attributes which were read successfully.
type Result map[ScoreAttribute]broker.Payload

type Aggregator struct {
	Reader      AttributeReader
	ReadTimeout time.Duration
	Logger      logwrap.Logger
}

type attributeRead struct {
	payload broker.Payload
	err     error
}

// Aggregate reads every score attribute of the entity concurrently. Individual
// failures are logged and omitted from the result, an error is returned only if
// the caller gave up or the broker could not be reached for any attribute.
func (a *Aggregator) Aggregate(ctx context.Context, id broker.EntityID) (Result, error) {
	reads := make([]attributeRead, len(ScoreAttributes))

	var g errgroup.Group

	for i, attr := range ScoreAttributes {
		g.Go(func() error {
			readCtx, cancel := context.WithTimeout(ctx, a.readTimeout())
			defer cancel()

			p, err := a.Reader.ReadAttribute(readCtx, id, string(attr))
			if err == nil && !p.Valid() {
				err = fmt.Errorf("%w: attribute %s", broker.UnexpectedResponse, attr)
			}

			reads[i] = attributeRead{payload: p, err: err}
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		a.Logger.LogWarn(ctx, "Telemetry aggregation abandoned by caller.", logwrap.Datum("entity", string(id)), logwrap.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrAggregationFailed, err)
	}

	result := Result{}
	var unreachable []error

	for i, attr := range ScoreAttributes {
		read := reads[i]

		if read.err != nil {
			if broker.IsTransport(read.err) {
				unreachable = append(unreachable, read.err)
			}

			a.Logger.LogWarn(ctx, "Failed to read score attribute, omitting from result.", logwrap.Datum("entity", string(id)), logwrap.Datum("attribute", string(attr)), logwrap.Err(read.err))
			continue
		}

		result[attr] = read.payload
	}

	if len(unreachable) == len(ScoreAttributes) {
		err := errors.Join(unreachable...)
		a.Logger.LogError(ctx, "Broker unreachable for all score attributes.", logwrap.Datum("entity", string(id)), logwrap.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrAggregationFailed, err)
	}

	return result, nil
}

func (a *Aggregator) readTimeout() time.Duration {
	if a.ReadTimeout <= 0 {
		return DefaultReadTimeout
	}

	return a.ReadTimeout
}
