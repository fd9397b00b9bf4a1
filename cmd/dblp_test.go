//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/refcheck/refcheck/internal/dblpstore"
)

func TestFormatDBLPStatus_NeverBuilt(t *testing.T) {
	var buf bytes.Buffer
	formatDBLPStatus(&buf, "/data/dblp.db", dblpstore.Info{})

	output := buf.String()
	assert.Contains(t, output, "/data/dblp.db")
	assert.Contains(t, output, "never")
	assert.NotContains(t, output, "Records")
}

func TestFormatDBLPStatus_Fresh(t *testing.T) {
	var buf bytes.Buffer
	formatDBLPStatus(&buf, "/data/dblp.db", dblpstore.Info{
		BuiltAt: time.Now().Add(-48 * time.Hour),
		Records: 7_500_000,
	})

	output := buf.String()
	assert.Contains(t, output, "7500000")
	assert.Contains(t, output, "Age:")
	assert.NotContains(t, output, "stale")
}

func TestFormatDBLPStatus_Stale(t *testing.T) {
	var buf bytes.Buffer
	formatDBLPStatus(&buf, "/data/dblp.db", dblpstore.Info{
		BuiltAt: time.Now().Add(-120 * 24 * time.Hour),
		Records: 7_500_000,
	})

	assert.Contains(t, buf.String(), "stale")
}
