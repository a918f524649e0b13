package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"project-chat/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := &mocks.PublisherMock{}
	emitter := NewAuditEmitter(pub, "audit.project_chat", "project-chat", "test", zap.NewNop())
	user := "user-1"

	var env AuditEnvelope
	pub.On("Publish", mock.Anything, "audit.project_chat", mock.AnythingOfType("telemetry.AuditEnvelope"), mock.Anything).
		Run(func(args mock.Arguments) { env = args.Get(2).(AuditEnvelope) }).
		Return(nil).Once()

	emitter.Emit(context.Background(), LevelWarn, "ws rejected", "req-1", "proj-1", &user)

	pub.AssertExpectations(t)
	assert.Equal(t, 1, env.SchemaVersion)
	assert.Equal(t, "audit_log", env.EventType)
	assert.Equal(t, "project-chat", env.Service)
	assert.Equal(t, "proj-1", env.ProjectID)
	require.NotNil(t, env.UserID)
	assert.Equal(t, user, *env.UserID)
	assert.Equal(t, AuditPayload{Level: LevelWarn, Text: "ws rejected"}, env.Payload)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	pub := &mocks.PublisherMock{}
	pub.On("Publish", mock.Anything, "audit", mock.Anything, mock.Anything).Return(errors.New("channel closed")).Once()
	emitter := NewAuditEmitter(pub, "audit", "svc", "test", zap.NewNop())

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), LevelInfo, "x", "", "", nil)
	})
	pub.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), LevelInfo, "x", "", "", nil)
	})
}
