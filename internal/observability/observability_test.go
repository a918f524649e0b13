package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"project-chat/internal/mocks"
)

func TestPublishEvent(t *testing.T) {
	t.Cleanup(func() { SetPublisher(nil) })

	assert.NoError(t, PublishEvent(context.Background(), WSEventsRoutingKey, EventEnvelope{}, nil))

	pub := &mocks.PublisherMock{}
	pub.On("Publish", mock.Anything, WSEventsRoutingKey,
		mock.MatchedBy(func(e EventEnvelope) bool { return e.EventName == "ws_connect" }),
		map[string]string{"x-request-id": "req-1"}).Return(nil).Once()
	pub.On("Publish", mock.Anything, WSEventsRoutingKey, EventEnvelope{}, mock.Anything).Return(errors.New("closed")).Once()
	SetPublisher(pub)

	require.NoError(t, PublishEvent(context.Background(), WSEventsRoutingKey, EventEnvelope{EventName: "ws_connect"}, BuildHeaders("req-1", "")))
	assert.Error(t, PublishEvent(context.Background(), WSEventsRoutingKey, EventEnvelope{}, nil))
	pub.AssertExpectations(t)
}

func TestClientMetaFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	meta := ClientMetaFromRequest(req)
	assert.Equal(t, "10.0.0.9", meta.IP)
	assert.Empty(t, meta.DeviceID)
	assert.NotEmpty(t, meta.RequestID)

	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("X-Request-Id", "abc")
	req.Header.Set("X-Device-Id", "laptop")
	assert.Equal(t, ClientMeta{DeviceID: "laptop", IP: "203.0.113.7", RequestID: "abc"}, ClientMetaFromRequest(req))
}

func TestTraceIDWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}
