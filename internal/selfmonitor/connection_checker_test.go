package selfmonitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/stream"
)

type fakeReader struct {
	healthErr error
}

func (f fakeReader) ReadGroup(ctx context.Context, block time.Duration, count int) ([]stream.Message, error) {
	return nil, nil
}
func (f fakeReader) Ack(ctx context.Context, id string) error      { return nil }
func (f fakeReader) Pending(ctx context.Context) ([]string, error) { return nil, nil }
func (f fakeReader) Claim(ctx context.Context, id string) (stream.Message, error) {
	return stream.Message{}, nil
}
func (f fakeReader) Close() error                          { return nil }
func (f fakeReader) HealthCheck(ctx context.Context) error { return f.healthErr }

type fakeBackend struct {
	healthErr error
}

func (f fakeBackend) QueryContext(ctx context.Context, report models.KillReport) (models.IntelContext, error) {
	return models.IntelContext{}, nil
}
func (f fakeBackend) GetHistory(ctx context.Context, module string) ([]models.OutcomeRecord, error) {
	return nil, nil
}
func (f fakeBackend) ReportOutcome(ctx context.Context, outcome models.OutcomeRecord) error {
	return nil
}
func (f fakeBackend) HealthCheck(ctx context.Context) error { return f.healthErr }

func TestLiveConnectionCheckerReportsHealthyWhenNoError(t *testing.T) {
	c := NewLiveConnectionChecker(fakeReader{}, fakeBackend{})
	assert.True(t, c.KillerConnected(context.Background()))
	assert.True(t, c.IntelConnected(context.Background()))
}

func TestLiveConnectionCheckerReportsDisconnectedOnHealthCheckError(t *testing.T) {
	c := NewLiveConnectionChecker(fakeReader{healthErr: errors.New("down")}, fakeBackend{healthErr: errors.New("down")})
	assert.False(t, c.KillerConnected(context.Background()))
	assert.False(t, c.IntelConnected(context.Background()))
}

func TestLiveConnectionCheckerReportsDisconnectedWhenNil(t *testing.T) {
	c := NewLiveConnectionChecker(nil, nil)
	assert.False(t, c.KillerConnected(context.Background()))
	assert.False(t, c.IntelConnected(context.Background()))
}
