package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("append: %w", IOFailure("write entry", context.DeadlineExceeded))
	assert.True(t, Is(err, ErrIOFailure))
	assert.False(t, Is(err, ErrCorruption))
	assert.True(t, Is(err, context.DeadlineExceeded))
	assert.Equal(t, CodeIOFailure, CodeOf(err))
}

func TestReplicationLoggingFailureDetails(t *testing.T) {
	err := ReplicationLoggingFailure("CREATE_OBJECT", "obj/1", IOFailure("commit", nil))
	require.Equal(t, "CREATE_OBJECT", err.Details["op"])
	require.Equal(t, "obj/1", err.Details["object_id"])
	assert.True(t, Is(err, ErrReplicationLogging))
	assert.True(t, Is(err, ErrIOFailure))
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
}

func TestStatusMappings(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NotFound("object", "x").HTTPStatus())
	assert.Equal(t, http.StatusConflict, Frozen("legacy queue").HTTPStatus())
	assert.Equal(t, codes.DataLoss, CorruptionDetected("bad crc", nil).GRPCStatus().Code())
	assert.Equal(t, codes.Unimplemented, UnsupportedCapability("mark").GRPCStatus().Code())
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("plain")))
	assert.Equal(t, CodeOK, CodeOf(nil))
}
