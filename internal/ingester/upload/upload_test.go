package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajramk12/market-watcher/internal/ingester/model"
	"github.com/rajramk12/market-watcher/internal/ingester/pricedb"
)

type fakeStore struct {
	upserted    []model.MappedRecord
	failSymbols map[string]error
}

func (s *fakeStore) GetExchangeById(ctx context.Context, id int64) (*pricedb.Exchange, error) {
	if id != 1 {
		return nil, &pricedb.ErrExchangeNotFound{Id: id}
	}
	return &pricedb.Exchange{Id: 1, Code: "NSE"}, nil
}

func (s *fakeStore) UpsertRow(ctx context.Context, exchangeId int64, rec model.MappedRecord) error {
	if err, ok := s.failSymbols[rec.Symbol]; ok {
		return err
	}
	s.upserted = append(s.upserted, rec)
	return nil
}

const uploadHeader = "SYMBOL,SERIES,DATE1,PREV_CLOSE,OPEN_PRICE,HIGH_PRICE,LOW_PRICE,LAST_PRICE,CLOSE_PRICE,AVG_PRICE,TTL_TRD_QNTY,TURNOVER_LACS,NO_OF_TRADES,DELIV_QTY,DELIV_PER"

func uploadRow(symbol string) string {
	return symbol + ",EQ,01-JAN-2026,100,101.5,112.25,99.8,109.95,110,105,1000,10.5,420,650,65"
}

func writeUpload(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eod.csv")
	content := strings.Join(append([]string{uploadHeader}, lines...), "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunUpsertsRows(t *testing.T) {
	store := &fakeStore{}
	path := writeUpload(t, uploadRow("ACME"), uploadRow("BETA"), uploadRow("GAMMA"))

	result, err := New(store).Run(context.Background(), path, 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Upserted: 3, Errored: 0}, result)
	require.Len(t, store.upserted, 3)
	assert.Equal(t, "ACME", store.upserted[0].Symbol)
	assert.True(t, store.upserted[0].ChangePercentage.Equal(store.upserted[1].ChangePercentage))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRunSkipsUnmappableRows(t *testing.T) {
	store := &fakeStore{}
	bad := "BROKEN,EQ,01-JAN-2026,not-a-number,101.5,112.25,99.8,109.95,110,105,1000,10.5,420,650,65"
	path := writeUpload(t, uploadRow("ACME"), bad, uploadRow("BETA"))

	result, err := New(store).Run(context.Background(), path, 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Upserted: 2, Errored: 1}, result)
}

func TestRunCountsRowStoreFailures(t *testing.T) {
	store := &fakeStore{failSymbols: map[string]error{"BETA": assert.AnError}}
	path := writeUpload(t, uploadRow("ACME"), uploadRow("BETA"), uploadRow("GAMMA"))

	result, err := New(store).Run(context.Background(), path, 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Upserted: 2, Errored: 1}, result)
}

func TestRunAbortsWhenStoreUnreachable(t *testing.T) {
	store := &fakeStore{failSymbols: map[string]error{"BETA": io.EOF}}
	path := writeUpload(t, uploadRow("ACME"), uploadRow("BETA"), uploadRow("GAMMA"))

	result, err := New(store).Run(context.Background(), path, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price store unreachable")
	assert.Equal(t, Result{Upserted: 1, Errored: 0}, result)

	// The file is still cleaned up on the failure path
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunUnknownExchange(t *testing.T) {
	store := &fakeStore{}
	path := writeUpload(t, uploadRow("ACME"))

	_, err := New(store).Run(context.Background(), path, 42)
	var notFound *pricedb.ErrExchangeNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Empty(t, store.upserted)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunMissingFile(t *testing.T) {
	store := &fakeStore{}
	_, err := New(store).Run(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), 1)
	var fileErr *FileError
	require.ErrorAs(t, err, &fileErr)
}
