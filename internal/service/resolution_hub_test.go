package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chore-dispute-api/internal/models"
)

type publisherStub struct {
	keys []string
	err  error
}

func (p *publisherStub) Publish(ctx context.Context, eventType, key string, value interface{}) error {
	p.keys = append(p.keys, eventType+":"+key)
	return p.err
}

func TestResolutionHubDeliversToSubscribersAndBroker(t *testing.T) {
	publisher := &publisherStub{}
	hub := NewResolutionHub(publisher, nil)
	events, cancel := hub.Subscribe()
	defer cancel()

	evt := models.DisputeResolvedEvent{DisputeID: "d-1", Outcome: models.DisputeStatusApproved}
	require.NoError(t, hub.Notify(context.Background(), evt))

	got := <-events
	assert.Equal(t, "d-1", got.DisputeID)
	assert.Equal(t, []string{"dispute.resolved:d-1"}, publisher.keys)
}

func TestResolutionHubCancelClosesChannel(t *testing.T) {
	hub := NewResolutionHub(nil, nil)
	events, cancel := hub.Subscribe()
	assert.Equal(t, 1, hub.Subscribers())
	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())
	require.NoError(t, hub.Notify(context.Background(), models.DisputeResolvedEvent{DisputeID: "d-2"}))
}

func TestResolutionHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewResolutionHub(&publisherStub{err: errors.New("broker down")}, nil)
	_, cancel := hub.Subscribe()
	defer cancel()

	var err error
	for i := 0; i < subscriberBuffer+5; i++ {
		err = hub.Notify(context.Background(), models.DisputeResolvedEvent{DisputeID: "d-1"})
	}
	assert.Error(t, err)
}
