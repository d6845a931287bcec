package graphstore

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/developer-mesh/semantic-graph-search/internal/observability"
)

func newTestAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	size := 4
	sem := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		sem <- struct{}{}
	}

	adapter := &Adapter{
		pool: &pool{
			db:             sqlxDB,
			sem:            sem,
			acquireTimeout: time.Second,
			queryTimeout:   time.Second,
		},
		logger:  observability.NewNoopLogger(),
		metrics: observability.NewMetrics("test", "graphstore"),
	}
	return adapter, mock
}

func TestAdapterUpsertChunkExecutesOnConflictUpsert(t *testing.T) {
	adapter, mock := newTestAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO context_chunks").WillReturnRows(
		sqlmock.NewRows([]string{"xmax"}).AddRow(true),
	)
	mock.ExpectCommit()

	created, err := adapter.UpsertChunk(context.Background(), &Chunk{
		ChunkHash: "h1", Content: "hello", Language: "en", SourceDoc: "doc1",
		Position: 0, Confidence: 0.9, Embedding: []float32{0.1, 0.2},
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapterUpsertChunkRejectsEmptyHash(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	_, err := adapter.UpsertChunk(context.Background(), &Chunk{ChunkHash: ""})
	require.Error(t, err)
}

func TestAdapterVectorQueryScansResults(t *testing.T) {
	adapter, mock := newTestAdapter(t)

	rows := sqlmock.NewRows([]string{"chunk_hash", "score"}).
		AddRow("h1", 0.95).
		AddRow("h2", 0.80)
	mock.ExpectQuery("SELECT chunk_hash, 1 - ").WillReturnRows(rows)

	out, err := adapter.VectorQuery(context.Background(), []float32{0.1, 0.2}, 2, Filter{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "h1", out[0].ChunkHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapterLinkRejectsEmptyFields(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	err := adapter.Link(context.Background(), "", "DETAILS", "intent", "en", nil)
	require.Error(t, err)
}

func TestAdapterUpsertChunkBatchWritesChunksAndLinksInOneTransaction(t *testing.T) {
	adapter, mock := newTestAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO context_chunks").WillReturnRows(sqlmock.NewRows([]string{"xmax"}).AddRow(true))
	mock.ExpectQuery("INSERT INTO context_chunks").WillReturnRows(sqlmock.NewRows([]string{"xmax"}).AddRow(false))
	mock.ExpectExec("INSERT INTO chunk_intent_edges").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := adapter.UpsertChunkBatch(context.Background(),
		[]*Chunk{
			{ChunkHash: "h1", Content: "a", Language: "en", SourceDoc: "d", Embedding: []float32{0.1}},
			{ChunkHash: "h2", Content: "b", Language: "en", SourceDoc: "d", Embedding: []float32{0.2}},
		},
		[]LinkEdge{{SrcChunkHash: "h1", RelType: "DETAILS", DstName: "deploy", DstLang: "en"}},
	)
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapterUpsertChunkBatchRejectsEmptyLinkBeforeOpeningTransaction(t *testing.T) {
	adapter, mock := newTestAdapter(t)

	_, err := adapter.UpsertChunkBatch(context.Background(),
		[]*Chunk{{ChunkHash: "h1", Embedding: []float32{0.1}}},
		[]LinkEdge{{SrcChunkHash: ""}},
	)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapterGetChunksScansResults(t *testing.T) {
	adapter, mock := newTestAdapter(t)

	rows := sqlmock.NewRows([]string{"chunk_hash", "content", "language", "source_doc", "position", "confidence"}).
		AddRow("h1", "hello", "en", "doc1", 0, 0.9)
	mock.ExpectQuery("SELECT chunk_hash, content, language, source_doc, position, confidence").WillReturnRows(rows)

	out, err := adapter.GetChunks(context.Background(), []string{"h1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "hello", out[0].Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapterGetChunksReturnsNilForEmptyInput(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	out, err := adapter.GetChunks(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapterQueryIntentsScansResultsInOrder(t *testing.T) {
	adapter, mock := newTestAdapter(t)

	rows := sqlmock.NewRows([]string{"name", "lang", "description", "confidence", "category", "frequency", "success_rate"}).
		AddRow("deploy service", "en", "", 0.9, "", 5, 0.0)
	mock.ExpectQuery("SELECT name, lang, description, confidence, category, frequency, success_rate FROM intents").WillReturnRows(rows)

	out, err := adapter.QueryIntents(context.Background(), "deploy", "en", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "deploy service", out[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapterChunksDetailingScansResults(t *testing.T) {
	adapter, mock := newTestAdapter(t)

	rows := sqlmock.NewRows([]string{"src_chunk_hash"}).AddRow("h1").AddRow("h2")
	mock.ExpectQuery("SELECT src_chunk_hash FROM chunk_intent_edges").WillReturnRows(rows)

	out, err := adapter.ChunksDetailing(context.Background(), "deploy", "en")
	require.NoError(t, err)
	require.Equal(t, []string{"h1", "h2"}, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapterSuggestIntentsScansResultsInOrder(t *testing.T) {
	adapter, mock := newTestAdapter(t)

	rows := sqlmock.NewRows([]string{"name", "lang", "frequency"}).
		AddRow("deploy", "en", 5).
		AddRow("debug", "en", 2)
	mock.ExpectQuery("SELECT name, lang, frequency FROM intents WHERE name ILIKE").WillReturnRows(rows)

	out, err := adapter.SuggestIntents(context.Background(), "de", "en", 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "deploy", out[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
