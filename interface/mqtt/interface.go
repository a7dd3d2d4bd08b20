package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/shimmeringbee/logwrap"
	"github.com/sys0xFF/challange-passabola-sub002/broker"
	"github.com/sys0xFF/challange-passabola-sub002/command"
	"github.com/sys0xFF/challange-passabola-sub002/roster"
	"github.com/sys0xFF/challange-passabola-sub002/telemetry"
	"github.com/tidwall/gjson"
	"strings"
	"sync"
	"time"
)

type Publisher func(ctx context.Context, topic string, payload []byte) error

type mqttError string

func (m mqttError) Error() string {
	return string(m)
}

const UnknownTopic = mqttError("unknown topic")
const InvalidBand = mqttError("invalid band identifier")

const MaximumPublishTime = 5 * time.Second

type telemetryAggregator interface {
	Aggregate(context.Context, broker.EntityID) (telemetry.Result, error)
}

type rosterLister interface {
	List(context.Context) (roster.Roster, error)
}

type commandDispatcher interface {
	Dispatch(context.Context, broker.EntityID, broker.Payload) error
}

type Interface struct {
	m         sync.RWMutex
	publisher Publisher

	Resolver          broker.Resolver
	StrictIdentifiers bool

	Aggregator telemetryAggregator
	Roster     rosterLister
	Dispatcher commandDispatcher

	Logger logwrap.Logger

	PublishRosterOnConnect bool
	PublishAggregatedState bool
	PublishIndividualState bool
}

type commandResult struct {
	Success bool   `json:"success"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

func (i *Interface) IncomingMessage(ctx context.Context, topic string, payload []byte) error {
	topicParts := strings.Split(strings.Trim(topic, "/"), "/")

	if len(topicParts) > 0 {
		switch topicParts[0] {
		case "bands":
			return i.IncomingMessageBands(ctx, topicParts[1:], payload)
		}
	}

	return fmt.Errorf("%w: %s", UnknownTopic, topic)
}

func (i *Interface) IncomingMessageBands(ctx context.Context, topic []string, payload []byte) error {
	if len(topic) == 2 && topic[0] == "roster" && topic[1] == "poll" {
		return i.publishRoster(ctx)
	}

	if len(topic) == 2 {
		band := broker.BandIdentifier(topic[0])

		if i.StrictIdentifiers && !i.Resolver.Valid(band) {
			return fmt.Errorf("%w: %s", InvalidBand, topic[0])
		}

		switch topic[1] {
		case "command":
			return i.dispatchCommand(ctx, topic[0], i.Resolver.Resolve(band), payload)
		case "poll":
			return i.publishScores(ctx, topic[0], i.Resolver.Resolve(band))
		}
	}

	return fmt.Errorf("%w: bands/%s", UnknownTopic, strings.Join(topic, "/"))
}

func (i *Interface) dispatchCommand(ctx context.Context, band string, id broker.EntityID, payload []byte) error {
	result := commandResult{Success: true}
	err := i.Dispatcher.Dispatch(ctx, id, broker.Payload(payload))

	if err != nil {
		var rejection *command.Rejection

		if errors.Is(err, command.ErrInvalidPayload) {
			result = commandResult{Message: "Command is not valid JSON."}
		} else if errors.As(err, &rejection) {
			result = commandResult{Status: rejection.Status, Message: rejection.Message}
		} else {
			i.Logger.LogError(ctx, "Failed to dispatch band command.", logwrap.Datum("band", band), logwrap.Datum("entity", string(id)), logwrap.Err(err))
			result = commandResult{Message: "Command could not be delivered."}
		}
	}

	data, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal command result: %w", marshalErr)
	}

	if pubErr := i.publish(ctx, fmt.Sprintf("bands/%s/command/result", band), data); pubErr != nil {
		return fmt.Errorf("failed to publish command result: %w", pubErr)
	}

	return err
}

func (i *Interface) publishScores(ctx context.Context, band string, id broker.EntityID) error {
	result, err := i.Aggregator.Aggregate(ctx, id)
	if err != nil {
		return fmt.Errorf("unable to aggregate telemetry for band %s: %w", band, err)
	}

	topic := fmt.Sprintf("bands/%s/scores", band)

	if i.PublishAggregatedState {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal scores: %w", err)
		}

		if err := i.publish(ctx, topic, data); err != nil {
			return fmt.Errorf("failed to publish data to mqtt: %w", err)
		}
	}

	if i.PublishIndividualState {
		for _, attr := range telemetry.ScoreAttributes {
			p, found := result[attr]
			if !found {
				continue
			}

			if err := i.publish(ctx, fmt.Sprintf("%s/%s", topic, attr), scoreValue(p)); err != nil {
				return fmt.Errorf("failed to publish data to mqtt: %w", err)
			}
		}
	}

	return nil
}

func (i *Interface) publishRoster(ctx context.Context) error {
	bands, err := i.Roster.List(ctx)
	if err != nil {
		return fmt.Errorf("unable to list bands: %w", err)
	}

	data, err := json.Marshal(bands)
	if err != nil {
		return fmt.Errorf("failed to marshal roster: %w", err)
	}

	if err := i.publish(ctx, "bands/roster", data); err != nil {
		return fmt.Errorf("failed to publish data to mqtt: %w", err)
	}

	return nil
}

// scoreValue extracts the bare value from an attribute document, falling back
// to the whole document if the broker did not provide one.
func scoreValue(p broker.Payload) []byte {
	if v := gjson.GetBytes(p, "value"); v.Exists() {
		return []byte(v.Raw)
	}

	return p
}

func EmptyPublisher(ctx context.Context, topic string, payload []byte) error {
	return nil
}

func (i *Interface) publish(ctx context.Context, topic string, payload []byte) error {
	i.m.RLock()
	p := i.publisher
	i.m.RUnlock()

	if p == nil {
		p = EmptyPublisher
	}

	return p(ctx, topic, payload)
}

func (i *Interface) Connected(ctx context.Context, publisher Publisher) error {
	i.m.Lock()
	i.publisher = publisher
	i.m.Unlock()

	if i.PublishRosterOnConnect {
		i.Logger.LogInfo(ctx, "MQTT connected, publishing current band roster.")

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), MaximumPublishTime)
			defer cancel()

			if err := i.publishRoster(ctx); err != nil {
				i.Logger.LogError(ctx, "Failed to publish band roster on connect.", logwrap.Err(err))
			}
		}()
	}

	return nil
}

func (i *Interface) Disconnected() {
	i.m.Lock()
	i.publisher = EmptyPublisher
	i.m.Unlock()
}
