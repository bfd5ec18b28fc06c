package slogger

import (
	"context"
	"edurecovery/internal/application/common/logging"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageFunctionsUseGlobalLogger(t *testing.T) {
	previous := Logger()
	t.Cleanup(func() { SetGlobalLogger(previous) })

	buffer := logging.NewBufferLogger()
	SetGlobalLogger(buffer)

	Info(context.Background(), "serve started", Field("addr", ":8080"))
	WarnNoCtx("breaker opened", Fields{"breaker": "api"})
	ErrorWithErrorNoCtx(errors.New("boom"), "sink failed", nil)
	WithComponent("cmd").Debug(context.Background(), "component message", nil)

	entries := logging.Entries(buffer)
	require.Len(t, entries, 4)
	assert.Equal(t, ":8080", entries[0].Metadata["addr"])
	assert.Equal(t, "WARN", entries[1].Level)
	assert.Equal(t, "boom", entries[2].Error)
	assert.Equal(t, "cmd", entries[3].Component)
}
