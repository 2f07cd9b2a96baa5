package pipeline

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/artpar/storedeploy/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestChannelSink_DropsWhenFull(t *testing.T) {
	sink := NewChannelSink(2)
	em := newEmitter(sink)

	em.emit(domain.StageConnect, "one")
	em.emit(domain.StageConnect, "two")
	em.emit(domain.StageConnect, "three")
	em.terminal(domain.StageConnect, "four")

	assert.Equal(t, uint64(2), sink.Dropped())
	sink.Close()

	var got []domain.ProgressEvent
	for e := range sink.Events() {
		got = append(got, e)
	}
	assert.Equal(t, []domain.ProgressEvent{
		{Stage: domain.StageConnect, Message: "one", Ordinal: 1},
		{Stage: domain.StageConnect, Message: "two", Ordinal: 2},
	}, got)
}

func TestChannelSink_EmitAfterClose(t *testing.T) {
	sink := NewChannelSink(4)
	sink.Close()
	sink.Close()

	sink.Emit(domain.ProgressEvent{Stage: domain.StageFinalize})
	assert.Equal(t, uint64(1), sink.Dropped())
}

func TestMultiSink(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	em := newEmitter(MultiSink(a, nil, b))

	em.emit(domain.StageVerifyRuntime, "x")
	em.terminal(domain.StageFinalize, "done")

	assert.Equal(t, a.Events(), b.Events())
	assert.Len(t, a.Events(), 2)
	assert.True(t, a.Events()[1].Terminal)
	assert.Equal(t, uint64(2), a.Events()[1].Ordinal)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogSink(logger).Emit(domain.ProgressEvent{Stage: domain.StageSeedDatabase, Message: "catalog seeded", Ordinal: 7})

	out := buf.String()
	assert.Contains(t, out, "stage=seed_database")
	assert.Contains(t, out, "ordinal=7")
	assert.Contains(t, out, `message="catalog seeded"`)
}

func TestSummarize(t *testing.T) {
	report := domain.ReconciliationReport{
		MatchedWithImages:    3,
		MatchedWithoutImages: 1,
		TotalImageFiles:      12,
		MissingFolders:       []string{"X"},
	}
	assert.Equal(t, "3 products with images, 1 without images, 1 missing folders, 0 orphan folders, 12 image files", Summarize(report))
}
