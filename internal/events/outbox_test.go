package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewOutboxStore(mock)

	mock.ExpectExec("INSERT INTO outbound_messages").
		WithArgs(pgxmock.AnyArg(), "agendamento", pgxmock.AnyArg(), "pending").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	_, err = store.Enqueue(context.Background(), "agendamento", WhatsAppPayload{Phone: "5511", Message: "oi"})
	require.NoError(t, err)

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "module", "payload", "attempts", "created_at"}).
		AddRow(id, "agendamento", []byte(`{"phone":"5511"}`), 0, now)
	mock.ExpectQuery("SELECT id, module, payload").WithArgs("pending", int32(10)).WillReturnRows(rows)

	msgs, err := store.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.JSONEq(t, `{"phone":"5511"}`, string(msgs[0].Payload))

	mock.ExpectExec("UPDATE outbound_messages").WithArgs(id, "done").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkDone(context.Background(), id))

	mock.ExpectExec("UPDATE outbound_messages").WithArgs(id, "failed").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkFailed(context.Background(), id))

	require.NoError(t, mock.ExpectationsWereMet())
}
